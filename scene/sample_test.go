package scene

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"github.com/RunnersNum40/Kubric-Pallets/spatial"
)

// testOptions returns defaults shrunk to a size that keeps tests fast.
func testOptions() Options {
	o := DefaultOptions()
	o.ObjectCount = IntRange{Min: 1, Max: 3}
	o.ClutterRack = IntRange{Min: 1, Max: 2}
	o.ClutterForklift = IntRange{Min: 0, Max: 1}
	o.ImageWidth = 320
	o.ImageHeight = 240
	return o
}

func TestNewSamplerRequiresPallets(t *testing.T) {
	noPallets, err := NewCatalog(
		Asset{ID: "rack", Kind: KindRack, Dims: r3.Vector{X: 2.7, Y: 1.1, Z: 4.5}},
	)
	test.That(t, err, test.ShouldBeNil)

	_, err = NewSampler(noPallets, testOptions())
	var notFound *NotFoundError
	test.That(t, errors.As(err, &notFound), test.ShouldBeTrue)

	bad := testOptions()
	bad.ObjectCount = IntRange{Min: 3, Max: 1}
	_, err = NewSampler(DemoCatalog(), bad)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSampleIsDeterministic(t *testing.T) {
	sampler, err := NewSampler(DemoCatalog(), testOptions())
	test.That(t, err, test.ShouldBeNil)

	first, err := sampler.Sample(42)
	test.That(t, err, test.ShouldBeNil)
	second, err := sampler.Sample(42)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second, test.ShouldResemble, first)

	other, err := sampler.Sample(43)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, other, test.ShouldNotResemble, first)
}

func TestSampleSceneShape(t *testing.T) {
	opts := testOptions()
	sampler, err := NewSampler(DemoCatalog(), opts)
	test.That(t, err, test.ShouldBeNil)

	for seed := int64(1); seed <= 20; seed++ {
		cfg, err := sampler.Sample(seed)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.Seed, test.ShouldEqual, seed)

		test.That(t, cfg.FloorLength, test.ShouldBeBetweenOrEqual, opts.FloorLength.Min, opts.FloorLength.Max)
		test.That(t, cfg.FloorWidth, test.ShouldBeBetweenOrEqual, opts.FloorWidth.Min, opts.FloorWidth.Max)
		test.That(t, cfg.WallHeight, test.ShouldBeBetweenOrEqual, opts.WallHeight.Min, opts.WallHeight.Max)
		for _, channel := range cfg.Ambient {
			test.That(t, channel, test.ShouldBeBetweenOrEqual, 0.5, 1)
		}

		pallets := 0
		targets := 0
		for i := range cfg.Placements {
			p := &cfg.Placements[i]
			if p.Kind == KindPallet {
				pallets++
			}
			if p.Target {
				targets++
				test.That(t, p.Kind, test.ShouldEqual, KindPallet)
			}
			// Rotations are stored as unit quaternions.
			test.That(t, quat.Abs(p.Pose.Rotation), test.ShouldAlmostEqual, 1, 1e-9)
			// Placements rest on or just above the floor.
			test.That(t, p.Pose.Translation.Z, test.ShouldBeGreaterThan, 0)
		}
		test.That(t, targets, test.ShouldEqual, 1)
		test.That(t, pallets, test.ShouldBeBetweenOrEqual, opts.ObjectCount.Min, opts.ObjectCount.Max)

		test.That(t, len(cfg.Lights), test.ShouldBeBetweenOrEqual, opts.LightCount.Min, opts.LightCount.Max)
		test.That(t, cfg.Lights[0].Directional, test.ShouldBeTrue)
		for _, l := range cfg.Lights[1:] {
			test.That(t, l.Directional, test.ShouldBeFalse)
		}
		test.That(t, opts.Backgrounds, test.ShouldContain, cfg.Background)
		test.That(t, cfg.Camera.Intrinsics.CheckValid(), test.ShouldBeNil)
	}
}

func TestSamplePlacementsDoNotOverlap(t *testing.T) {
	opts := testOptions()
	opts.ObjectCount = IntRange{Min: 4, Max: 6}
	opts.ClutterRack = IntRange{Min: 2, Max: 4}
	sampler, err := NewSampler(DemoCatalog(), opts)
	test.That(t, err, test.ShouldBeNil)

	for seed := int64(100); seed < 110; seed++ {
		cfg, err := sampler.Sample(seed)
		test.That(t, err, test.ShouldBeNil)

		boxes := make([]*spatial.Box, 0, len(cfg.Placements))
		for i := range cfg.Placements {
			box, err := cfg.Placements[i].Box()
			test.That(t, err, test.ShouldBeNil)
			boxes = append(boxes, box)
		}
		for i := range boxes {
			for j := i + 1; j < len(boxes); j++ {
				test.That(t, boxes[i].Overlaps(boxes[j], -opts.OverlapTolerance), test.ShouldBeFalse)
			}
		}
	}
}

func TestSampleFailsOnImpossiblePlacement(t *testing.T) {
	opts := testOptions()
	// A floor smaller than a single pallet footprint cannot host anything.
	opts.FloorLength = Range{Min: 0.5, Max: 0.5}
	opts.FloorWidth = Range{Min: 0.5, Max: 0.5}
	opts.ClutterRack = IntRange{Min: 1, Max: 1}
	sampler, err := NewSampler(DemoCatalog(), opts)
	test.That(t, err, test.ShouldBeNil)

	_, err = sampler.Sample(7)
	var placementErr *PlacementError
	test.That(t, errors.As(err, &placementErr), test.ShouldBeTrue)
}

func TestSampleExhaustsRetriesOnCrowdedFloor(t *testing.T) {
	opts := testOptions()
	// A floor that fits a few pallets but not twenty forces retry exhaustion
	// rather than an endless resampling loop.
	opts.FloorLength = Range{Min: 3, Max: 3}
	opts.FloorWidth = Range{Min: 3, Max: 3}
	opts.ObjectCount = IntRange{Min: 20, Max: 20}
	opts.ClutterRack = IntRange{Min: 0, Max: 0}
	opts.ClutterForklift = IntRange{Min: 0, Max: 0}
	opts.PlacementRetries = 25
	sampler, err := NewSampler(DemoCatalog(), opts)
	test.That(t, err, test.ShouldBeNil)

	_, err = sampler.Sample(7)
	var placementErr *PlacementError
	test.That(t, errors.As(err, &placementErr), test.ShouldBeTrue)
	test.That(t, placementErr.Attempts, test.ShouldEqual, 25)
}

func TestSampleCameraAimsAtTarget(t *testing.T) {
	opts := testOptions()
	sampler, err := NewSampler(DemoCatalog(), opts)
	test.That(t, err, test.ShouldBeNil)

	for seed := int64(1); seed <= 20; seed++ {
		cfg, err := sampler.Sample(seed)
		test.That(t, err, test.ShouldBeNil)

		target := cfg.Target()
		test.That(t, target, test.ShouldNotBeNil)
		focus := target.Pose.Translation
		eye := cfg.Camera.Pose.Translation
		dist := eye.Sub(focus).Norm()
		test.That(t, dist, test.ShouldBeBetweenOrEqual,
			opts.CameraDistance.Min-1e-9, opts.CameraDistance.Max+1e-9)

		// The camera stays above the support surface.
		test.That(t, eye.Z, test.ShouldBeGreaterThan, focus.Z)

		// The target center sits on the camera's -Z axis, so it projects
		// to the principal point and is always framed.
		inCam := cfg.Camera.Pose.Invert().TransformPoint(focus)
		test.That(t, inCam.X, test.ShouldAlmostEqual, 0, 1e-9)
		test.That(t, inCam.Y, test.ShouldAlmostEqual, 0, 1e-9)
		test.That(t, inCam.Z, test.ShouldAlmostEqual, -dist, 1e-9)

		u, v, ok := cfg.Camera.Intrinsics.PointToPixel(inCam)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, u, test.ShouldAlmostEqual, cfg.Camera.Intrinsics.Ppx, 1e-9)
		test.That(t, v, test.ShouldAlmostEqual, cfg.Camera.Intrinsics.Ppy, 1e-9)
	}
}

func TestSampleDrawsTextures(t *testing.T) {
	opts := testOptions()
	sampler, err := NewSampler(DemoCatalog(), opts)
	test.That(t, err, test.ShouldBeNil)

	cfg, err := sampler.Sample(11)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, opts.FloorTextureSet, test.ShouldContain, cfg.FloorTexture)
	test.That(t, opts.WallTextureSet, test.ShouldContain, cfg.WallTexture)
	test.That(t, cfg.FloorTextureScale, test.ShouldBeBetweenOrEqual, opts.TextureScale.Min, opts.TextureScale.Max)
	test.That(t, cfg.WallTextureScale, test.ShouldBeBetweenOrEqual, opts.TextureScale.Min, opts.TextureScale.Max)
	for i := range cfg.Placements {
		p := &cfg.Placements[i]
		test.That(t, opts.TextureSet, test.ShouldContain, p.Texture)
		test.That(t, p.TextureScale, test.ShouldBeBetweenOrEqual, opts.TextureScale.Min, opts.TextureScale.Max)
	}
}

func TestSampleHonorsAssetTextureList(t *testing.T) {
	opts := testOptions()
	opts.ClutterRack = IntRange{Min: 0, Max: 0}
	opts.ClutterForklift = IntRange{Min: 0, Max: 0}
	catalog, err := NewCatalog(Asset{
		ID:       "pallet_painted",
		Kind:     KindPallet,
		Mesh:     "pallet.glb",
		Dims:     r3.Vector{X: 1.2, Y: 0.8, Z: 0.144},
		Textures: []string{"paint_blue"},
	})
	test.That(t, err, test.ShouldBeNil)
	sampler, err := NewSampler(catalog, opts)
	test.That(t, err, test.ShouldBeNil)

	cfg, err := sampler.Sample(3)
	test.That(t, err, test.ShouldBeNil)
	for i := range cfg.Placements {
		test.That(t, cfg.Placements[i].Texture, test.ShouldEqual, "paint_blue")
	}
}

func TestSampleViewsOrbitTheTarget(t *testing.T) {
	opts := testOptions()
	opts.ViewsPerScene = 4
	sampler, err := NewSampler(DemoCatalog(), opts)
	test.That(t, err, test.ShouldBeNil)

	first, err := sampler.SampleView(7, 0)
	test.That(t, err, test.ShouldBeNil)
	second, err := sampler.SampleView(7, 1)
	test.That(t, err, test.ShouldBeNil)

	// Sample is view zero.
	direct, err := sampler.Sample(7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, direct, test.ShouldResemble, first)

	// Views share the scene content and differ only in the camera.
	test.That(t, second.Placements, test.ShouldResemble, first.Placements)
	test.That(t, second.Lights, test.ShouldResemble, first.Lights)
	test.That(t, second.FloorTexture, test.ShouldEqual, first.FloorTexture)
	test.That(t, second.Background, test.ShouldEqual, first.Background)
	test.That(t, second.Camera.Pose.Translation, test.ShouldNotResemble, first.Camera.Pose.Translation)
	test.That(t, second.View, test.ShouldEqual, 1)

	// Both views sit on the same ring around the target.
	focus := first.Target().Pose.Translation
	distFirst := first.Camera.Pose.Translation.Sub(focus).Norm()
	distSecond := second.Camera.Pose.Translation.Sub(focus).Norm()
	test.That(t, distSecond, test.ShouldAlmostEqual, distFirst, 1e-9)
	test.That(t, second.Camera.Pose.Translation.Z, test.ShouldAlmostEqual,
		first.Camera.Pose.Translation.Z, 1e-9)

	// View indices outside the configured count are rejected.
	_, err = sampler.SampleView(7, 4)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = sampler.SampleView(7, -1)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestUniformStaysInRange(t *testing.T) {
	opts := testOptions()
	opts.WallHeight = Range{Min: 8, Max: 8}
	sampler, err := NewSampler(DemoCatalog(), opts)
	test.That(t, err, test.ShouldBeNil)
	cfg, err := sampler.Sample(5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.WallHeight, test.ShouldAlmostEqual, 8)
	test.That(t, math.IsNaN(cfg.FloorLength), test.ShouldBeFalse)
}
