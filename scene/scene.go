package scene

import (
	"github.com/golang/geo/r3"

	"github.com/RunnersNum40/Kubric-Pallets/camera"
	"github.com/RunnersNum40/Kubric-Pallets/spatial"
)

// Placement is one object instance in a scene: which asset, where, and at
// what scale. Dims are the asset dimensions after scaling, recorded so the
// configuration is self-describing.
type Placement struct {
	AssetID string       `json:"asset_id"`
	Kind    Kind         `json:"kind"`
	Target  bool         `json:"target"`
	Scale   float64      `json:"scale"`
	Pose    spatial.Pose `json:"pose"`
	Dims    r3.Vector    `json:"dims_m"`
	// Texture and TextureScale are the surface material draw for this
	// instance; an empty texture leaves the asset's default material.
	Texture      string  `json:"texture,omitempty"`
	TextureScale float64 `json:"texture_scale,omitempty"`
}

// Box returns the placement's oriented bounding box in world frame.
func (p *Placement) Box() (*spatial.Box, error) {
	return spatial.NewBox(p.Pose, p.Dims)
}

// Light is one light source. The first light in a scene is directional and
// aimed at the scene focus; the rest are point lights.
type Light struct {
	Directional bool       `json:"directional"`
	Position    r3.Vector  `json:"position_m"`
	AimedAt     r3.Vector  `json:"aimed_at_m"`
	Intensity   float64    `json:"intensity"`
	Color       [3]float64 `json:"color_rgb"`
}

// Camera is the sampled camera: its world pose (looking down local -Z) and
// pinhole intrinsics.
type Camera struct {
	Pose       spatial.Pose      `json:"pose"`
	Intrinsics camera.Intrinsics `json:"intrinsics"`
}

// Config is a fully-resolved, serializable description of one scene
// instance. It is created once by the sampler and never mutated: the same
// seed and options always reproduce it bit for bit.
type Config struct {
	Seed int64 `json:"seed"`
	// View distinguishes the camera views of one sampled scene when
	// views_per_scene is above one; seed and view together reproduce the
	// sample.
	View int `json:"view"`

	FloorLength float64    `json:"floor_length_m"`
	FloorWidth  float64    `json:"floor_width_m"`
	WallHeight  float64    `json:"wall_height_m"`
	Ambient     [3]float64 `json:"ambient_rgb"`

	FloorTexture      string  `json:"floor_texture,omitempty"`
	WallTexture       string  `json:"wall_texture,omitempty"`
	FloorTextureScale float64 `json:"floor_texture_scale,omitempty"`
	WallTextureScale  float64 `json:"wall_texture_scale,omitempty"`

	Placements []Placement `json:"placements"`
	Camera     Camera      `json:"camera"`
	Lights     []Light     `json:"lights"`
	Background string      `json:"background"`
}

// Target returns the annotated target placement, or nil when the scene has
// none.
func (c *Config) Target() *Placement {
	for i := range c.Placements {
		if c.Placements[i].Target {
			return &c.Placements[i]
		}
	}
	return nil
}

// Centroid returns the mean position of all placements, or the origin for
// an empty scene.
func (c *Config) Centroid() r3.Vector {
	if len(c.Placements) == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	for i := range c.Placements {
		sum = sum.Add(c.Placements[i].Pose.Translation)
	}
	return sum.Mul(1 / float64(len(c.Placements)))
}
