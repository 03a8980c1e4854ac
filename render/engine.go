// Package render defines the boundary to the scene-construction and
// rasterization engine, the frame types it produces, and a built-in block
// rasterizer used when no external engine is configured.
package render

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r3"

	"github.com/RunnersNum40/Kubric-Pallets/camera"
	"github.com/RunnersNum40/Kubric-Pallets/scene"
	"github.com/RunnersNum40/Kubric-Pallets/spatial"
)

// ObjectHandle is an opaque reference to an object instantiated in an
// engine scene.
type ObjectHandle int

// ObjectSpec describes one object to instantiate: which mesh, where, at
// what size, and which surface texture to apply. An empty texture keeps the
// mesh's authored material.
type ObjectSpec struct {
	ID           string
	Mesh         string
	Pose         spatial.Pose
	Dims         r3.Vector
	Texture      string
	TextureScale float64
}

// Engine is a scoped rendering session. A session is acquired at worker
// start and released at worker shutdown; it is not re-entrant, and only one
// render may be in flight per session.
type Engine interface {
	// NewScene creates an empty scene. The previous scene state of the
	// session, if any, does not leak into it.
	NewScene(ctx context.Context) (SceneState, error)
	// Close releases the session.
	Close(ctx context.Context) error
}

// SceneState is the realized, engine-instantiated scene for one sample. It
// must be closed after the sample to avoid cross-sample contamination.
type SceneState interface {
	// AddObject instantiates an object and returns an opaque handle to it.
	AddObject(spec ObjectSpec) (ObjectHandle, error)
	// SetCamera sets the scene camera. The camera looks down its local -Z
	// axis.
	SetCamera(pose spatial.Pose, intrinsics camera.Intrinsics) error
	// AddLight adds a light source.
	AddLight(light scene.Light) error
	// SetEnvironment sets the backdrop and ambient illumination.
	SetEnvironment(background string, ambient [3]float64) error
	// Render rasterizes the scene. Blocking; not retryable.
	Render(ctx context.Context) (*Frame, error)
	// Close destroys the scene state.
	Close() error
}

// RealizedCamera reports the camera parameters the engine actually used,
// which label derivation must prefer over the requested ones.
type RealizedCamera struct {
	Pose       spatial.Pose      `json:"pose"`
	Intrinsics camera.Intrinsics `json:"intrinsics"`
}

// Frame is the raw output of one render call.
type Frame struct {
	Image *image.NRGBA
	// Depth holds per-pixel distance from the camera in meters, or nil if
	// the engine does not produce a depth buffer.
	Depth *DepthMap
	// Segmentation holds per-pixel object indices, or nil if the engine
	// does not produce a segmentation buffer.
	Segmentation *SegmentMap
	Camera       RealizedCamera
}

// DepthMap is a dense float32 depth buffer.
type DepthMap struct {
	width  int
	height int
	data   []float32
}

// NewDepthMap returns a depth map with every pixel at +Inf (no geometry).
func NewDepthMap(width, height int) *DepthMap {
	data := make([]float32, width*height)
	for i := range data {
		data[i] = noDepth
	}
	return &DepthMap{width: width, height: height, data: data}
}

// noDepth marks pixels no geometry was rasterized to.
const noDepth = float32(math.MaxFloat32)

// Width returns the buffer width in pixels.
func (d *DepthMap) Width() int { return d.width }

// Height returns the buffer height in pixels.
func (d *DepthMap) Height() int { return d.height }

// At returns the depth at a pixel.
func (d *DepthMap) At(x, y int) float32 { return d.data[y*d.width+x] }

// Set stores the depth at a pixel.
func (d *DepthMap) Set(x, y int, v float32) { d.data[y*d.width+x] = v }

// SegmentMap is a dense object-index buffer. Zero means background; object
// n is stored as n+1.
type SegmentMap struct {
	width  int
	height int
	data   []uint16
}

// NewSegmentMap returns an all-background segmentation buffer.
func NewSegmentMap(width, height int) *SegmentMap {
	return &SegmentMap{width: width, height: height, data: make([]uint16, width*height)}
}

// Width returns the buffer width in pixels.
func (s *SegmentMap) Width() int { return s.width }

// Height returns the buffer height in pixels.
func (s *SegmentMap) Height() int { return s.height }

// At returns the stored object index at a pixel.
func (s *SegmentMap) At(x, y int) uint16 { return s.data[y*s.width+x] }

// Set stores an object index at a pixel.
func (s *SegmentMap) Set(x, y int, v uint16) { s.data[y*s.width+x] = v }

// CountObject returns how many pixels belong to placement index n.
func (s *SegmentMap) CountObject(n int) int {
	id := uint16(n + 1)
	count := 0
	for _, v := range s.data {
		if v == id {
			count++
		}
	}
	return count
}

// BuildError wraps a failure to instantiate a scene from its configuration.
type BuildError struct {
	Step  string
	Cause error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("scene build failed at %s: %v", e.Step, e.Cause)
}

// Unwrap returns the underlying engine error.
func (e *BuildError) Unwrap() error { return e.Cause }

// RenderError wraps a failed or malformed render call.
type RenderError struct {
	Cause error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render failed: %v", e.Cause)
}

// Unwrap returns the underlying engine error.
func (e *RenderError) Unwrap() error { return e.Cause }
