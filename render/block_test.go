package render

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/RunnersNum40/Kubric-Pallets/camera"
	"github.com/RunnersNum40/Kubric-Pallets/scene"
	"github.com/RunnersNum40/Kubric-Pallets/spatial"
)

// straightDownCamera looks at the origin from five meters above it.
func straightDownCamera(width, height int) (spatial.Pose, camera.Intrinsics) {
	pose := spatial.NewLookAtPose(r3.Vector{Z: 5}, r3.Vector{}, r3.Vector{Z: 1})
	return pose, camera.NewIntrinsics(width, height, 300)
}

func buildCubeScene(t *testing.T, engine Engine) SceneState {
	t.Helper()
	ctx := context.Background()
	state, err := engine.NewScene(ctx)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, state.SetEnvironment("warehouse_gray", [3]float64{1, 1, 1}), test.ShouldBeNil)
	_, err = state.AddObject(ObjectSpec{
		ID:   "cube",
		Mesh: "cube.glb",
		Pose: spatial.NewZeroPose(),
		Dims: r3.Vector{X: 1, Y: 1, Z: 1},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state.AddLight(scene.Light{
		Directional: true,
		Position:    r3.Vector{Z: 10},
		AimedAt:     r3.Vector{},
		Intensity:   5,
	}), test.ShouldBeNil)

	pose, intr := straightDownCamera(200, 200)
	test.That(t, state.SetCamera(pose, intr), test.ShouldBeNil)
	return state
}

func TestBlockEngineRendersCenteredCube(t *testing.T) {
	logger := golog.NewTestLogger(t)
	engine := NewBlockEngine(logger)
	defer func() {
		test.That(t, engine.Close(context.Background()), test.ShouldBeNil)
	}()

	state := buildCubeScene(t, engine)
	defer func() {
		test.That(t, state.Close(), test.ShouldBeNil)
	}()

	frame, err := state.Render(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Image.Bounds().Dx(), test.ShouldEqual, 200)
	test.That(t, frame.Image.Bounds().Dy(), test.ShouldEqual, 200)

	// The cube's top face is 4.5 m from the camera and centered, so the
	// center pixel carries the cube and its depth.
	test.That(t, frame.Segmentation.At(100, 100), test.ShouldEqual, uint16(1))
	test.That(t, frame.Depth.At(100, 100), test.ShouldAlmostEqual, 4.5, 0.01)

	// A corner pixel is background: zero segment, no depth written.
	test.That(t, frame.Segmentation.At(0, 0), test.ShouldEqual, uint16(0))
	test.That(t, float64(frame.Depth.At(0, 0)), test.ShouldBeGreaterThan, 1e30)

	// The cube's top face spans 1 m at 4.5 m with f=300, so about 66 px.
	pixels := frame.Segmentation.CountObject(0)
	test.That(t, pixels, test.ShouldBeGreaterThan, 60*60)
	test.That(t, pixels, test.ShouldBeLessThan, 75*75)

	// The realized camera echoes what was set.
	wantPose, wantIntr := straightDownCamera(200, 200)
	test.That(t, frame.Camera.Intrinsics, test.ShouldResemble, wantIntr)
	test.That(t, spatial.PoseAlmostEqual(frame.Camera.Pose, wantPose, 1e-12), test.ShouldBeTrue)
}

func TestBlockEngineObjectBehindCameraIsNotDrawn(t *testing.T) {
	logger := golog.NewTestLogger(t)
	engine := NewBlockEngine(logger)
	ctx := context.Background()

	state, err := engine.NewScene(ctx)
	test.That(t, err, test.ShouldBeNil)
	_, err = state.AddObject(ObjectSpec{
		ID:   "cube",
		Mesh: "cube.glb",
		Pose: spatial.NewPoseFromPoint(r3.Vector{Z: 20}),
		Dims: r3.Vector{X: 1, Y: 1, Z: 1},
	})
	test.That(t, err, test.ShouldBeNil)
	pose, intr := straightDownCamera(100, 100)
	test.That(t, state.SetCamera(pose, intr), test.ShouldBeNil)

	frame, err := state.Render(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Segmentation.CountObject(0), test.ShouldEqual, 0)
}

func TestBlockEngineRenderErrors(t *testing.T) {
	logger := golog.NewTestLogger(t)
	engine := NewBlockEngine(logger)
	ctx := context.Background()

	// Rendering without a camera fails with a RenderError.
	state, err := engine.NewScene(ctx)
	test.That(t, err, test.ShouldBeNil)
	_, err = state.Render(ctx)
	var renderErr *RenderError
	test.That(t, errors.As(err, &renderErr), test.ShouldBeTrue)

	// A closed scene refuses further use.
	test.That(t, state.Close(), test.ShouldBeNil)
	_, err = state.AddObject(ObjectSpec{ID: "cube", Mesh: "cube.glb", Dims: r3.Vector{X: 1, Y: 1, Z: 1}})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = state.Render(ctx)
	test.That(t, errors.As(err, &renderErr), test.ShouldBeTrue)

	// A canceled context aborts the render.
	state = buildCubeScene(t, engine)
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = state.Render(canceled)
	test.That(t, errors.As(err, &renderErr), test.ShouldBeTrue)
	test.That(t, state.Close(), test.ShouldBeNil)

	// A closed session creates no new scenes.
	test.That(t, engine.Close(ctx), test.ShouldBeNil)
	_, err = engine.NewScene(ctx)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestObjectColorVariesByTexture(t *testing.T) {
	plain := objectColor("pallet_eur1", "")
	oak := objectColor("pallet_eur1", "wood_oak")
	pine := objectColor("pallet_eur1", "wood_pine")
	test.That(t, oak, test.ShouldNotResemble, plain)
	test.That(t, oak, test.ShouldNotResemble, pine)

	// The tint is stable for the same id and texture.
	test.That(t, objectColor("pallet_eur1", "wood_oak"), test.ShouldResemble, oak)
}

func TestBlockEngineInvalidIntrinsics(t *testing.T) {
	logger := golog.NewTestLogger(t)
	engine := NewBlockEngine(logger)
	state, err := engine.NewScene(context.Background())
	test.That(t, err, test.ShouldBeNil)
	err = state.SetCamera(spatial.NewZeroPose(), camera.Intrinsics{})
	test.That(t, err, test.ShouldNotBeNil)
}
