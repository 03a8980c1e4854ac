package render

import (
	"context"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"

	"github.com/RunnersNum40/Kubric-Pallets/scene"
	"github.com/RunnersNum40/Kubric-Pallets/spatial"
)

// shellThickness is the slab thickness of the instantiated floor and walls.
const shellThickness = 0.1

// Build maps a sampled scene configuration onto a fresh engine scene and
// returns the realized state. It performs no randomization of its own: the
// configuration is already fully resolved. Failures are wrapped in a
// BuildError and the partial scene is closed.
func Build(ctx context.Context, eng Engine, catalog *scene.Catalog, cfg *scene.Config) (SceneState, error) {
	state, err := eng.NewScene(ctx)
	if err != nil {
		return nil, &BuildError{Step: "scene creation", Cause: err}
	}

	fail := func(step string, cause error) (SceneState, error) {
		return nil, multierr.Append(&BuildError{Step: step, Cause: cause}, state.Close())
	}

	if err := state.SetEnvironment(cfg.Background, cfg.Ambient); err != nil {
		return fail("environment", err)
	}
	// Placements go in first so their object handles, and the segmentation
	// indices derived from them, line up with placement order.
	for i := range cfg.Placements {
		p := &cfg.Placements[i]
		asset, err := catalog.Get(p.AssetID)
		if err != nil {
			return fail("object "+p.AssetID, err)
		}
		spec := ObjectSpec{
			ID:           p.AssetID,
			Mesh:         asset.Mesh,
			Pose:         p.Pose,
			Dims:         p.Dims,
			Texture:      p.Texture,
			TextureScale: p.TextureScale,
		}
		if _, err := state.AddObject(spec); err != nil {
			return fail("object "+p.AssetID, err)
		}
	}
	for _, spec := range shellSpecs(cfg) {
		if _, err := state.AddObject(spec); err != nil {
			return fail("shell "+spec.ID, err)
		}
	}
	for i := range cfg.Lights {
		if err := state.AddLight(cfg.Lights[i]); err != nil {
			return fail("light", err)
		}
	}
	if err := state.SetCamera(cfg.Camera.Pose, cfg.Camera.Intrinsics); err != nil {
		return fail("camera", err)
	}
	return state, nil
}

// shellSpecs returns the warehouse shell as scene geometry: the floor slab
// under z=0 and the four perimeter walls.
func shellSpecs(cfg *scene.Config) []ObjectSpec {
	l, w, h := cfg.FloorLength, cfg.FloorWidth, cfg.WallHeight
	half := shellThickness / 2
	wall := func(id string, center r3.Vector, dims r3.Vector) ObjectSpec {
		return ObjectSpec{
			ID:           id,
			Mesh:         "shell/wall",
			Pose:         spatial.NewPoseFromPoint(center),
			Dims:         dims,
			Texture:      cfg.WallTexture,
			TextureScale: cfg.WallTextureScale,
		}
	}
	return []ObjectSpec{
		{
			ID:           "floor",
			Mesh:         "shell/floor",
			Pose:         spatial.NewPoseFromPoint(r3.Vector{Z: -half}),
			Dims:         r3.Vector{X: l, Y: w, Z: shellThickness},
			Texture:      cfg.FloorTexture,
			TextureScale: cfg.FloorTextureScale,
		},
		wall("wall_north", r3.Vector{Y: w/2 + half, Z: h / 2}, r3.Vector{X: l, Y: shellThickness, Z: h}),
		wall("wall_south", r3.Vector{Y: -(w/2 + half), Z: h / 2}, r3.Vector{X: l, Y: shellThickness, Z: h}),
		wall("wall_east", r3.Vector{X: l/2 + half, Z: h / 2}, r3.Vector{X: shellThickness, Y: w, Z: h}),
		wall("wall_west", r3.Vector{X: -(l/2 + half), Z: h / 2}, r3.Vector{X: shellThickness, Y: w, Z: h}),
	}
}
