package scene

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/RunnersNum40/Kubric-Pallets/camera"
	"github.com/RunnersNum40/Kubric-Pallets/spatial"
)

// focalRetries bounds resampling of the Gaussian focal length draw.
const focalRetries = 100

// PlacementError is returned when an object cannot be placed without
// violating the no-overlap or support-surface constraints within the retry
// budget.
type PlacementError struct {
	AssetID  string
	Attempts int
	Reason   string
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("cannot place asset %q after %d attempts: %s", e.AssetID, e.Attempts, e.Reason)
}

// RangeError is returned when a sampled value cannot be brought into its
// configured range.
type RangeError struct {
	What  string
	Value float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("sampled %s = %v is out of range", e.What, e.Value)
}

// Sampler draws randomized scene configurations. Sampling is a pure
// function of the seed and the options: every draw comes from one explicit
// generator consumed in a fixed order, so the same seed always reproduces
// the same Config bit for bit.
type Sampler struct {
	catalog *Catalog
	opts    Options
}

// NewSampler validates the options against the catalog and returns a
// sampler.
func NewSampler(catalog *Catalog, opts Options) (*Sampler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(catalog.ByKind(KindPallet)) == 0 {
		return nil, &NotFoundError{ID: string(KindPallet)}
	}
	return &Sampler{catalog: catalog, opts: opts}, nil
}

// Options returns the randomization options the sampler was built with.
func (s *Sampler) Options() Options {
	return s.opts
}

// Sample draws the first camera view of the scene for the given seed.
func (s *Sampler) Sample(seed int64) (*Config, error) {
	return s.SampleView(seed, 0)
}

// SampleView draws one scene configuration for the given seed and camera
// view. Views of the same seed share every draw except the camera azimuth,
// which is rotated by view/views_per_scene of a full turn around the target.
//
// Draw order is fixed: warehouse shell, ambient light, shell textures,
// clutter racks, clutter forklifts, pallets (last one is the target; each
// accepted placement then draws its texture), camera, lights, background.
// Changing this order changes what every seed produces.
func (s *Sampler) SampleView(seed int64, view int) (*Config, error) {
	o := &s.opts
	if view < 0 || view >= o.ViewsPerScene {
		return nil, errors.Errorf("view %d out of range for %d views per scene", view, o.ViewsPerScene)
	}
	rng := rand.New(rand.NewSource(seed))

	cfg := &Config{
		Seed:              seed,
		View:              view,
		FloorLength:       uniform(rng, o.FloorLength),
		FloorWidth:        uniform(rng, o.FloorWidth),
		WallHeight:        uniform(rng, o.WallHeight),
		Ambient:           [3]float64{warm(rng), warm(rng), warm(rng)},
		FloorTexture:      pick(rng, o.FloorTextureSet),
		FloorTextureScale: uniform(rng, o.TextureScale),
		WallTexture:       pick(rng, o.WallTextureSet),
		WallTextureScale:  uniform(rng, o.TextureScale),
	}

	var boxes []*spatial.Box
	if err := s.placeAll(rng, cfg, &boxes); err != nil {
		return nil, err
	}

	if err := s.sampleCamera(rng, cfg); err != nil {
		return nil, err
	}
	s.sampleLights(rng, cfg)
	cfg.Background = o.Backgrounds[rng.Intn(len(o.Backgrounds))]
	return cfg, nil
}

// placeAll draws every placement: clutter first, then the annotated
// pallets, marking the last pallet as the target.
func (s *Sampler) placeAll(rng *rand.Rand, cfg *Config, boxes *[]*spatial.Box) error {
	o := &s.opts
	rackCount := intInRange(rng, o.ClutterRack)
	forkliftCount := intInRange(rng, o.ClutterForklift)
	palletCount := intInRange(rng, o.ObjectCount)

	type group struct {
		kind  Kind
		count int
	}
	for _, g := range []group{
		{KindRack, rackCount},
		{KindForklift, forkliftCount},
		{KindPallet, palletCount},
	} {
		assets := s.catalog.ByKind(g.kind)
		if len(assets) == 0 {
			if g.count == 0 || g.kind != KindPallet {
				continue
			}
			return &NotFoundError{ID: string(g.kind)}
		}
		for i := 0; i < g.count; i++ {
			target := g.kind == KindPallet && i == g.count-1
			asset := assets[rng.Intn(len(assets))]
			p, box, err := s.placeWithRetries(rng, asset, cfg, target, *boxes)
			if err != nil {
				return err
			}
			p.Texture, p.TextureScale = s.textureFor(rng, asset)
			cfg.Placements = append(cfg.Placements, *p)
			*boxes = append(*boxes, box)
		}
	}
	return nil
}

// placeWithRetries rejects and resamples a placement until it neither
// overlaps an accepted placement beyond tolerance nor leaves the support
// surface, up to the retry budget.
func (s *Sampler) placeWithRetries(
	rng *rand.Rand,
	asset Asset,
	cfg *Config,
	target bool,
	accepted []*spatial.Box,
) (*Placement, *spatial.Box, error) {
	o := &s.opts
	for attempt := 0; attempt < o.PlacementRetries; attempt++ {
		p, box, err := s.placeOne(rng, asset, cfg, target)
		if err != nil {
			return nil, nil, err
		}
		collides := false
		for _, other := range accepted {
			if box.Overlaps(other, -o.OverlapTolerance) {
				collides = true
				break
			}
		}
		if !collides {
			return p, box, nil
		}
	}
	return nil, nil, &PlacementError{
		AssetID:  asset.ID,
		Attempts: o.PlacementRetries,
		Reason:   "no non-overlapping position found on the support surface",
	}
}

// placeOne draws a single candidate placement resting on the floor. It
// fails immediately, not after retries, when the asset cannot fit on the
// support surface at all.
func (s *Sampler) placeOne(rng *rand.Rand, asset Asset, cfg *Config, target bool) (*Placement, *spatial.Box, error) {
	o := &s.opts
	scale := uniform(rng, o.ScaleJitter)
	dims := asset.Dims.Mul(scale)

	// The horizontal half-diagonal bounds the footprint for any yaw, which
	// keeps the position draw independent of the rotation draw.
	halfDiag := math.Hypot(dims.X, dims.Y) / 2
	maxX := cfg.FloorLength/2 - halfDiag
	maxY := cfg.FloorWidth/2 - halfDiag
	if maxX <= 0 || maxY <= 0 {
		return nil, nil, &PlacementError{
			AssetID:  asset.ID,
			Attempts: 0,
			Reason: fmt.Sprintf("asset footprint %.2fm exceeds the %.2fx%.2fm support surface",
				2*halfDiag, cfg.FloorLength, cfg.FloorWidth),
		}
	}

	position := r3.Vector{
		X: (2*rng.Float64() - 1) * maxX,
		Y: (2*rng.Float64() - 1) * maxY,
		Z: dims.Z / 2,
	}
	if target && o.PositionJitter > 0 {
		position.Z += rng.Float64() * o.PositionJitter
	}

	yaw := rng.Float64() * 2 * math.Pi
	rotation := quat.Mul(
		spatial.QuatFromAxisAngle(r3.Vector{Z: 1}, yaw),
		asset.UprightRotation(),
	)
	for _, axis := range []r3.Vector{{X: 1}, {Y: 1}, {Z: 1}} {
		jiggle := (2*rng.Float64() - 1) * o.RotationJitter
		rotation = quat.Mul(rotation, spatial.QuatFromAxisAngle(axis, jiggle))
	}

	pose := spatial.NewPose(position, rotation)
	box, err := spatial.NewBox(pose, dims)
	if err != nil {
		return nil, nil, err
	}
	return &Placement{
		AssetID: asset.ID,
		Kind:    asset.Kind,
		Target:  target,
		Scale:   scale,
		Pose:    pose,
		Dims:    dims,
	}, box, nil
}

// sampleCamera places the camera on a sphere segment around the target
// pallet and aims it there, so the target always sits at the principal
// point of the frame. Additional views rotate the azimuth in even steps.
func (s *Sampler) sampleCamera(rng *rand.Rand, cfg *Config) error {
	o := &s.opts
	focus := cfg.Centroid()
	if t := cfg.Target(); t != nil {
		focus = t.Pose.Translation
	}

	azimuth := rng.Float64()*2*math.Pi +
		2*math.Pi*float64(cfg.View)/float64(o.ViewsPerScene)
	elevation := uniform(rng, o.CameraElevation)
	distance := uniform(rng, o.CameraDistance)

	eye := focus.Add(r3.Vector{
		X: distance * math.Cos(elevation) * math.Cos(azimuth),
		Y: distance * math.Cos(elevation) * math.Sin(azimuth),
		Z: distance * math.Sin(elevation),
	})

	var focalPx float64
	ok := false
	for i := 0; i < focalRetries; i++ {
		focalPx = o.FocalLengthMean + o.FocalLengthStdDev*rng.NormFloat64()
		if focalPx > 0 {
			ok = true
			break
		}
	}
	if !ok {
		return &RangeError{What: "focal length", Value: focalPx}
	}

	cfg.Camera = Camera{
		Pose:       spatial.NewLookAtPose(eye, focus, r3.Vector{Z: 1}),
		Intrinsics: camera.NewIntrinsics(o.ImageWidth, o.ImageHeight, focalPx),
	}
	return nil
}

// sampleLights draws the lighting rig: one directional light aimed at the
// scene focus and a number of point lights under the ceiling.
func (s *Sampler) sampleLights(rng *rand.Rand, cfg *Config) {
	o := &s.opts
	count := intInRange(rng, o.LightCount)
	focus := cfg.Centroid()
	for i := 0; i < count; i++ {
		position := r3.Vector{
			X: (2*rng.Float64() - 1) * cfg.FloorLength / 2,
			Y: (2*rng.Float64() - 1) * cfg.FloorWidth / 2,
			Z: cfg.WallHeight * (0.8 + 0.15*rng.Float64()),
		}
		cfg.Lights = append(cfg.Lights, Light{
			Directional: i == 0,
			Position:    position,
			AimedAt:     focus,
			Intensity:   uniform(rng, o.LightIntensity),
			Color:       [3]float64{warm(rng), warm(rng), warm(rng)},
		})
	}
}

// textureFor draws a surface texture for one accepted placement, from the
// asset's own texture list when it has one.
func (s *Sampler) textureFor(rng *rand.Rand, asset Asset) (string, float64) {
	set := asset.Textures
	if len(set) == 0 {
		set = s.opts.TextureSet
	}
	return pick(rng, set), uniform(rng, s.opts.TextureScale)
}

func uniform(rng *rand.Rand, r Range) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// pick draws from a name set, or returns the empty name for an empty set
// without consuming a draw.
func pick(rng *rand.Rand, set []string) string {
	if len(set) == 0 {
		return ""
	}
	return set[rng.Intn(len(set))]
}

func intInRange(rng *rand.Rand, r IntRange) int {
	if r.Max == r.Min {
		return r.Min
	}
	return r.Min + rng.Intn(r.Max-r.Min+1)
}

// warm draws a color channel in [0.5, 1), the original generator's range
// for both ambient light and lamp colors.
func warm(rng *rand.Rand) float64 {
	return 0.5 + 0.5*rng.Float64()
}
