package scene

import (
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"
)

// Range is a closed interval of float64 values.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Validate checks the interval is well formed.
func (r Range) Validate(name string) error {
	if r.Max < r.Min {
		return errors.Errorf("%s: max %v is less than min %v", name, r.Max, r.Min)
	}
	return nil
}

// IntRange is a closed interval of integer values.
type IntRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Validate checks the interval is well formed.
func (r IntRange) Validate(name string) error {
	if r.Max < r.Min {
		return errors.Errorf("%s: max %d is less than min %d", name, r.Max, r.Min)
	}
	return nil
}

// Options enumerates the recognized randomization knobs. All sampling draws
// from these distributions; nothing is clamped silently.
type Options struct {
	// ObjectCount is the number of annotated pallets per scene.
	ObjectCount IntRange `json:"object_count_range"`
	// ClutterRack and ClutterForklift are counts of background clutter.
	ClutterRack     IntRange `json:"rack_count_range"`
	ClutterForklift IntRange `json:"forklift_count_range"`

	// PositionJitter lifts the target pallet off the floor by up to this
	// many meters.
	PositionJitter float64 `json:"position_jitter_m"`
	// RotationJitter is the per-axis rotation jiggle in radians applied on
	// top of a uniformly random yaw.
	RotationJitter float64 `json:"rotation_jitter_rad"`
	// ScaleJitter is the uniform scale factor range applied per object.
	ScaleJitter Range `json:"scale_jitter"`

	// Warehouse shell dimensions, drawn per scene. The floor is the
	// support surface: every placement footprint must stay inside it.
	FloorLength Range `json:"floor_length_range_m"`
	FloorWidth  Range `json:"floor_width_range_m"`
	WallHeight  Range `json:"wall_height_range_m"`

	// Texture names drawn per object and per shell surface. An asset's own
	// texture list, when present, narrows TextureSet for that asset. An
	// empty set leaves the surface untextured.
	TextureSet      []string `json:"texture_set"`
	FloorTextureSet []string `json:"floor_texture_set"`
	WallTextureSet  []string `json:"wall_texture_set"`
	// TextureScale is the UV tiling factor range applied per textured
	// surface.
	TextureScale Range `json:"texture_scale_range"`

	// Camera placement on a sphere around the target pallet. Elevation is
	// radians above the horizontal, so the camera never dips below the
	// support surface.
	CameraDistance  Range `json:"camera_distance_range_m"`
	CameraElevation Range `json:"camera_elevation_range_rad"`
	// ViewsPerScene renders this many camera views of each sampled scene,
	// evenly spaced in azimuth around the target.
	ViewsPerScene int `json:"views_per_scene"`
	// Focal length in pixels, drawn from a Gaussian.
	FocalLengthMean   float64 `json:"focal_length_px_mean"`
	FocalLengthStdDev float64 `json:"focal_length_px_stddev"`
	ImageWidth        int     `json:"image_width_px"`
	ImageHeight       int     `json:"image_height_px"`

	LightCount     IntRange `json:"light_count_range"`
	LightIntensity Range    `json:"light_intensity_range"`

	// Backgrounds is the set of environment backdrops to draw from.
	Backgrounds []string `json:"background_set"`

	// OverlapTolerance is how much bounding-box interpenetration two
	// placements may have before one is rejected and resampled.
	OverlapTolerance float64 `json:"overlap_tolerance_m"`
	// PlacementRetries bounds resampling attempts per object.
	PlacementRetries int `json:"placement_retries"`
	// VisibleAreaThreshold is the projected-area ratio below which an
	// object is flagged occluded.
	VisibleAreaThreshold float64 `json:"visible_area_threshold"`
}

// DefaultOptions mirrors the distribution parameters of the original
// warehouse generator.
func DefaultOptions() Options {
	return Options{
		ObjectCount:          IntRange{Min: 1, Max: 5},
		ClutterRack:          IntRange{Min: 2, Max: 6},
		ClutterForklift:      IntRange{Min: 0, Max: 3},
		PositionJitter:       1.0,
		RotationJitter:       0.05,
		ScaleJitter:          Range{Min: 0.9, Max: 1.1},
		FloorLength:          Range{Min: 30, Max: 100},
		FloorWidth:           Range{Min: 20, Max: 70},
		WallHeight:           Range{Min: 8, Max: 20},
		TextureSet:           []string{"wood_oak", "wood_pine", "plastic_gray", "metal_scuffed"},
		FloorTextureSet:      []string{"concrete_polished", "concrete_worn", "asphalt_scuffed"},
		WallTextureSet:       []string{"drywall_white", "metal_siding", "brick_gray"},
		TextureScale:         Range{Min: 1, Max: 4},
		CameraDistance:       Range{Min: 3, Max: 8},
		CameraElevation:      Range{Min: 0.1, Max: 0.9},
		ViewsPerScene:        1,
		FocalLengthMean:      900,
		FocalLengthStdDev:    150,
		ImageWidth:           1280,
		ImageHeight:          720,
		LightCount:           IntRange{Min: 5, Max: 10},
		LightIntensity:       Range{Min: 1, Max: 10},
		Backgrounds:          []string{"warehouse_gray", "warehouse_tan", "warehouse_green"},
		OverlapTolerance:     0.01,
		PlacementRetries:     100,
		VisibleAreaThreshold: 0.4,
	}
}

// Validate checks that every option is usable before any sampling happens.
func (o *Options) Validate() error {
	for _, check := range []error{
		o.ObjectCount.Validate("object_count_range"),
		o.ClutterRack.Validate("rack_count_range"),
		o.ClutterForklift.Validate("forklift_count_range"),
		o.ScaleJitter.Validate("scale_jitter"),
		o.FloorLength.Validate("floor_length_range_m"),
		o.FloorWidth.Validate("floor_width_range_m"),
		o.WallHeight.Validate("wall_height_range_m"),
		o.TextureScale.Validate("texture_scale_range"),
		o.CameraDistance.Validate("camera_distance_range_m"),
		o.CameraElevation.Validate("camera_elevation_range_rad"),
		o.LightCount.Validate("light_count_range"),
		o.LightIntensity.Validate("light_intensity_range"),
	} {
		if check != nil {
			return check
		}
	}
	if o.ObjectCount.Min < 1 {
		return errors.New("object_count_range must place at least one object")
	}
	if o.ClutterRack.Min < 0 || o.ClutterForklift.Min < 0 {
		return errors.New("clutter count ranges must be non-negative")
	}
	if o.ScaleJitter.Min <= 0 {
		return errors.New("scale_jitter must be positive")
	}
	if o.FloorLength.Min <= 0 || o.FloorWidth.Min <= 0 {
		return errors.New("floor dimensions must be positive")
	}
	if o.TextureScale.Min <= 0 {
		return errors.New("texture_scale_range must be positive")
	}
	if o.CameraDistance.Min <= 0 {
		return errors.New("camera_distance_range_m must be positive")
	}
	if o.CameraElevation.Min < 0 || o.CameraElevation.Max > math.Pi/2 {
		return errors.New("camera_elevation_range_rad must stay within [0, pi/2]")
	}
	if o.ViewsPerScene < 1 {
		return errors.New("views_per_scene must be at least 1")
	}
	if o.PositionJitter < 0 || o.RotationJitter < 0 {
		return errors.New("jitter values must be non-negative")
	}
	if o.FocalLengthMean <= 0 || o.FocalLengthStdDev < 0 {
		return errors.New("focal length distribution must have positive mean and non-negative stddev")
	}
	if o.ImageWidth <= 0 || o.ImageHeight <= 0 {
		return errors.Errorf("invalid image size (%d, %d)", o.ImageWidth, o.ImageHeight)
	}
	if o.LightCount.Min < 1 {
		return errors.New("light_count_range must include at least one light")
	}
	if len(o.Backgrounds) == 0 {
		return errors.New("background_set must not be empty")
	}
	if o.OverlapTolerance < 0 {
		return errors.New("overlap_tolerance_m must be non-negative")
	}
	if o.PlacementRetries < 1 {
		return errors.New("placement_retries must be at least 1")
	}
	if o.VisibleAreaThreshold < 0 || o.VisibleAreaThreshold > 1 {
		return errors.New("visible_area_threshold must be in [0, 1]")
	}
	return nil
}

// LoadOptions reads randomization options from a JSON file and validates
// them.
func LoadOptions(path string) (Options, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, errors.Wrap(err, "error reading scene options")
	}
	opts := DefaultOptions()
	if err := json.Unmarshal(data, &opts); err != nil {
		return Options{}, errors.Wrap(err, "error parsing scene options")
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}
