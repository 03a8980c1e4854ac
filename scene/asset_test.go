package scene

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/RunnersNum40/Kubric-Pallets/spatial"
)

func TestAssetValidate(t *testing.T) {
	good := Asset{ID: "p", Kind: KindPallet, Dims: r3.Vector{X: 1, Y: 1, Z: 1}}
	test.That(t, good.Validate(), test.ShouldBeNil)

	bad := good
	bad.ID = ""
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = good
	bad.Kind = ""
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = good
	bad.Dims.Z = 0
	test.That(t, bad.Validate(), test.ShouldNotBeNil)
}

func TestAssetUprightRotation(t *testing.T) {
	a := Asset{
		ID:           "yup",
		Kind:         KindPallet,
		Dims:         r3.Vector{X: 1, Y: 1, Z: 1},
		UprightAxis:  [3]float64{1, 0, 0},
		UprightTheta: math.Pi / 2,
	}
	// A Y-up mesh rotated pi/2 about X stands its +Y axis along world +Z.
	up := spatial.RotateVector(a.UprightRotation(), r3.Vector{Y: 1})
	test.That(t, up.Z, test.ShouldAlmostEqual, 1, 1e-9)

	// No upright axis means the identity rotation.
	a.UprightAxis = [3]float64{}
	v := spatial.RotateVector(a.UprightRotation(), r3.Vector{Y: 1})
	test.That(t, v.Y, test.ShouldAlmostEqual, 1, 1e-9)
}

func TestNewCatalog(t *testing.T) {
	_, err := NewCatalog()
	test.That(t, err, test.ShouldNotBeNil)

	a := Asset{ID: "a", Kind: KindPallet, Dims: r3.Vector{X: 1, Y: 1, Z: 1}}
	_, err = NewCatalog(a, a)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "duplicate")
}

func TestCatalogLookups(t *testing.T) {
	catalog := DemoCatalog()

	a, err := catalog.Get("pallet_eur1")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, a.Kind, test.ShouldEqual, KindPallet)

	_, err = catalog.Get("nope")
	var notFound *NotFoundError
	test.That(t, errors.As(err, &notFound), test.ShouldBeTrue)
	test.That(t, notFound.ID, test.ShouldEqual, "nope")

	pallets := catalog.ByKind(KindPallet)
	test.That(t, len(pallets), test.ShouldEqual, 1)
	test.That(t, len(catalog.ByKind(KindRack)), test.ShouldEqual, 1)
	test.That(t, len(catalog.List()), test.ShouldEqual, 3)
}

func TestCatalogListOrderIsStable(t *testing.T) {
	build := func(assets ...Asset) []string {
		catalog, err := NewCatalog(assets...)
		test.That(t, err, test.ShouldBeNil)
		var ids []string
		for _, a := range catalog.List() {
			ids = append(ids, a.ID)
		}
		return ids
	}
	a := Asset{ID: "a", Kind: KindPallet, Dims: r3.Vector{X: 1, Y: 1, Z: 1}}
	b := Asset{ID: "b", Kind: KindPallet, Dims: r3.Vector{X: 1, Y: 1, Z: 1}}
	c := Asset{ID: "c", Kind: KindRack, Dims: r3.Vector{X: 1, Y: 1, Z: 1}}

	// Insertion order must not affect the catalog's stable order.
	test.That(t, build(c, a, b), test.ShouldResemble, build(b, c, a))
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assets.json")
	contents := `[
		{"id": "pallet_test", "kind": "pallet", "mesh": "m.glb", "dims_m": {"X": 1.2, "Y": 0.8, "Z": 0.15}}
	]`
	test.That(t, os.WriteFile(path, []byte(contents), 0o644), test.ShouldBeNil)

	catalog, err := LoadCatalog(path)
	test.That(t, err, test.ShouldBeNil)
	a, err := catalog.Get("pallet_test")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, a.Dims.X, test.ShouldAlmostEqual, 1.2)

	_, err = LoadCatalog(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	badPath := filepath.Join(dir, "bad.json")
	test.That(t, os.WriteFile(badPath, []byte(`[{"id": ""}]`), 0o644), test.ShouldBeNil)
	_, err = LoadCatalog(badPath)
	test.That(t, err, test.ShouldNotBeNil)
}
