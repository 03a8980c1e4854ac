// Package scene defines the asset catalog, the randomization options, the
// immutable per-sample scene configuration, and the seeded sampler that
// produces it.
package scene

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"

	"github.com/RunnersNum40/Kubric-Pallets/spatial"
)

// Kind labels the category an asset belongs to.
type Kind string

// Asset categories understood by the sampler.
const (
	KindPallet   Kind = "pallet"
	KindRack     Kind = "rack"
	KindForklift Kind = "forklift"
)

// Asset is an immutable catalog entry describing a 3D model: where its mesh
// lives, its physical bounding box, and the rotation that brings the mesh
// from its authored orientation to upright in the world's Z-up frame.
type Asset struct {
	ID   string    `json:"id"`
	Kind Kind      `json:"kind"`
	Mesh string    `json:"mesh"`
	Dims r3.Vector `json:"dims_m"`
	// UprightTheta is the rotation in radians about UprightAxis applied to
	// every placement of this asset. Meshes authored Y-up use a pi/2
	// rotation about X.
	UprightAxis  [3]float64 `json:"upright_axis,omitempty"`
	UprightTheta float64    `json:"upright_theta,omitempty"`
	// Textures, when present, narrows the sampler's texture_set to names
	// that suit this asset.
	Textures []string `json:"textures,omitempty"`
}

// Validate checks that a catalog entry is usable.
func (a *Asset) Validate() error {
	if a.ID == "" {
		return errors.New("asset is missing an id")
	}
	if a.Kind == "" {
		return errors.Errorf("asset %q is missing a kind", a.ID)
	}
	if a.Dims.X <= 0 || a.Dims.Y <= 0 || a.Dims.Z <= 0 {
		return errors.Errorf("asset %q has non-positive dimensions %v", a.ID, a.Dims)
	}
	return nil
}

// UprightRotation returns the asset's canonical model-to-world rotation.
func (a *Asset) UprightRotation() quat.Number {
	axis := r3.Vector{X: a.UprightAxis[0], Y: a.UprightAxis[1], Z: a.UprightAxis[2]}
	return spatial.QuatFromAxisAngle(axis, a.UprightTheta)
}

// NotFoundError is returned when a catalog lookup fails.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no asset with id %q in catalog", e.ID)
}

// Catalog is a read-only set of assets, loaded once at startup. It is safe
// to share across workers.
type Catalog struct {
	assets map[string]Asset
	ids    []string
}

// NewCatalog builds a catalog from the given assets. IDs must be unique.
func NewCatalog(assets ...Asset) (*Catalog, error) {
	if len(assets) == 0 {
		return nil, errors.New("catalog needs at least one asset")
	}
	byID := make(map[string]Asset, len(assets))
	ids := make([]string, 0, len(assets))
	for i := range assets {
		a := assets[i]
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if _, ok := byID[a.ID]; ok {
			return nil, errors.Errorf("duplicate asset id %q", a.ID)
		}
		byID[a.ID] = a
		ids = append(ids, a.ID)
	}
	// Deterministic iteration order matters: the sampler draws assets by
	// index and must see the same ordering for the same catalog contents.
	sort.Strings(ids)
	return &Catalog{assets: byID, ids: ids}, nil
}

// LoadCatalog reads a catalog from a JSON file containing a list of assets.
func LoadCatalog(path string) (*Catalog, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening asset catalog")
	}
	defer utils.UncheckedErrorFunc(f.Close)
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "error reading asset catalog")
	}
	var assets []Asset
	if err := json.Unmarshal(data, &assets); err != nil {
		return nil, errors.Wrap(err, "error parsing asset catalog")
	}
	return NewCatalog(assets...)
}

// List returns all assets in a stable order.
func (c *Catalog) List() []Asset {
	out := make([]Asset, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.assets[id])
	}
	return out
}

// ByKind returns all assets of the given kind in a stable order.
func (c *Catalog) ByKind(kind Kind) []Asset {
	var out []Asset
	for _, id := range c.ids {
		if a := c.assets[id]; a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// Get returns the asset with the given id.
func (c *Catalog) Get(id string) (Asset, error) {
	a, ok := c.assets[id]
	if !ok {
		return Asset{}, &NotFoundError{ID: id}
	}
	return a, nil
}

// DemoCatalog returns a small built-in catalog with one asset per kind,
// sized like common warehouse equipment. Useful for smoke runs and tests
// that do not care about specific meshes.
func DemoCatalog() *Catalog {
	catalog, err := NewCatalog(
		Asset{
			ID:           "pallet_eur1",
			Kind:         KindPallet,
			Mesh:         "assets/pallet/eur1.glb",
			Dims:         r3.Vector{X: 1.2, Y: 0.8, Z: 0.144},
			UprightAxis:  [3]float64{1, 0, 0},
			UprightTheta: 0,
		},
		Asset{
			ID:   "rack_2bay",
			Kind: KindRack,
			Mesh: "assets/rack/2bay.glb",
			Dims: r3.Vector{X: 2.7, Y: 1.1, Z: 4.5},
		},
		Asset{
			ID:   "forklift_counterbalance",
			Kind: KindForklift,
			Mesh: "assets/forklift/counterbalance.glb",
			Dims: r3.Vector{X: 2.3, Y: 1.2, Z: 2.1},
		},
	)
	if err != nil {
		panic(err) // static contents, cannot fail
	}
	return catalog
}
