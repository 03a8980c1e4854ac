// Package camera holds the pinhole camera model shared by the scene sampler,
// the render engines, and the annotation extractor.
//
// Camera space is right-handed with the camera looking down -Z and +Y up,
// matching the renderer's convention. A point 5 m in front of the camera
// therefore has camera-frame coordinates (0, 0, -5). Pixel coordinates grow
// right and down from the top-left corner.
package camera

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// NearClip is the distance in front of the camera below which points are
// treated as behind the image plane and not projectable.
const NearClip = 1e-6

// ErrNoIntrinsics is returned when intrinsics are absent or unusable.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// Intrinsics holds the parameters of a perspective projection from camera
// space to the image plane.
type Intrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// NewIntrinsics returns centered intrinsics for a square-pixel camera with
// the given focal length in pixels.
func NewIntrinsics(width, height int, focalPx float64) Intrinsics {
	return Intrinsics{
		Width:  width,
		Height: height,
		Fx:     focalPx,
		Fy:     focalPx,
		Ppx:    float64(width) / 2,
		Ppy:    float64(height) / 2,
	}
}

// CheckValid checks if the fields of the intrinsics have valid values.
func (params *Intrinsics) CheckValid() error {
	if params == nil {
		return ErrNoIntrinsics
	}
	if params.Width <= 0 || params.Height <= 0 {
		return errors.Wrap(ErrNoIntrinsics, fmt.Sprintf("invalid size (%d, %d)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return errors.Wrap(ErrNoIntrinsics, fmt.Sprintf("invalid focal length Fx = %v", params.Fx))
	}
	if params.Fy <= 0 {
		return errors.Wrap(ErrNoIntrinsics, fmt.Sprintf("invalid focal length Fy = %v", params.Fy))
	}
	if params.Ppx < 0 {
		return errors.Wrap(ErrNoIntrinsics, fmt.Sprintf("invalid principal point Ppx = %v", params.Ppx))
	}
	if params.Ppy < 0 {
		return errors.Wrap(ErrNoIntrinsics, fmt.Sprintf("invalid principal point Ppy = %v", params.Ppy))
	}
	return nil
}

// PointToPixel projects a camera-frame point to a pixel on the image plane.
// The boolean is false when the point is behind the camera and the returned
// coordinates are meaningless.
func (params *Intrinsics) PointToPixel(pt r3.Vector) (float64, float64, bool) {
	depth := -pt.Z
	if depth <= NearClip {
		return -1, -1, false
	}
	u := params.Ppx + params.Fx*pt.X/depth
	v := params.Ppy - params.Fy*pt.Y/depth
	return u, v, true
}

// PixelToPoint back-projects a pixel at the given positive depth to a
// camera-frame point.
func (params *Intrinsics) PixelToPoint(u, v, depth float64) r3.Vector {
	return r3.Vector{
		X: (u - params.Ppx) / params.Fx * depth,
		Y: (params.Ppy - v) / params.Fy * depth,
		Z: -depth,
	}
}

// NewIntrinsicsFromJSONFile loads intrinsics from a JSON file.
func NewIntrinsicsFromJSONFile(jsonPath string) (*Intrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &Intrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing intrinsics")
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return intrinsics, nil
}
