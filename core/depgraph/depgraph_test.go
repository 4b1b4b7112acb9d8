package depgraph

import (
	"reflect"
	"testing"

	"github.com/artpar/modreg/core/registry"
	"github.com/artpar/modreg/core/schema"
	"github.com/artpar/modreg/core/schema/schematest"
)

// setup implements acme-types and acme-system and returns a document with a
// record for each.
func setup(t *testing.T) (*registry.Document, *schema.Universe) {
	t.Helper()
	u := schema.NewUniverse(schematest.Source())
	for _, text := range []string{schematest.Types, schematest.System} {
		if _, err := u.Parse([]byte(text)); err != nil {
			t.Fatal(err)
		}
	}
	doc := &registry.Document{Modules: []*registry.Module{
		{Name: "acme-types", Revision: "2024-01-10"},
		{Name: "acme-system", Revision: "2024-03-01"},
	}}
	return doc, u
}

func TestBuild(t *testing.T) {
	doc, u := setup(t)

	if err := Rebuild(doc, u); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	sys := doc.FindModule("acme-system")
	want := registry.Deps{InstIDs: []registry.InstID{{
		XPath: "/acme-system:system/server/target", DefaultModule: "acme-types",
	}}}
	if !reflect.DeepEqual(sys.DataDeps, want) {
		t.Errorf("data deps = %+v, want %+v", sys.DataDeps, want)
	}
	if len(sys.OpDeps) != 3 {
		t.Fatalf("op deps = %d, want 3", len(sys.OpDeps))
	}
	if got := sys.OpDeps[0].In.Modules; !reflect.DeepEqual(got, []string{"acme-types"}) {
		t.Errorf("restart input deps = %v", got)
	}
	if got := doc.FindModule("acme-types").InverseDeps; len(got) != 0 {
		t.Errorf("inverse deps = %v, want none while ntp is disabled", got)
	}
}

func TestRebuildAfterFeatureEnable(t *testing.T) {
	doc, u := setup(t)
	if err := Rebuild(doc, u); err != nil {
		t.Fatal(err)
	}

	if err := u.EnableFeature("acme-system", "ntp"); err != nil {
		t.Fatal(err)
	}
	if err := Rebuild(doc, u); err != nil {
		t.Fatal(err)
	}

	if got := doc.FindModule("acme-system").DataDeps.Modules; !reflect.DeepEqual(got, []string{"acme-types"}) {
		t.Errorf("data deps = %v, want [acme-types]", got)
	}
	if got := doc.FindModule("acme-types").InverseDeps; !reflect.DeepEqual(got, []string{"acme-system"}) {
		t.Errorf("inverse deps = %v, want [acme-system]", got)
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	doc, u := setup(t)
	if err := u.EnableFeature("acme-system", "ntp"); err != nil {
		t.Fatal(err)
	}
	if err := Rebuild(doc, u); err != nil {
		t.Fatal(err)
	}
	first := doc.Clone()

	if err := Rebuild(doc, u); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, doc) {
		t.Errorf("second rebuild changed the document:\n%+v\n%+v", first.Modules[1], doc.Modules[1])
	}
}

func TestCheckAll(t *testing.T) {
	u := schema.NewUniverse(schematest.Source())
	mod, err := u.Parse([]byte(schematest.Logging))
	if err != nil {
		t.Fatal(err)
	}
	doc := &registry.Document{}

	missing, err := CheckAll(doc, u, mod)
	if err != nil {
		t.Fatal(err)
	}
	if missing != "acme-types" {
		t.Errorf("missing = %q, want acme-types", missing)
	}

	doc.Installed = []*registry.Staged{{Name: "acme-types", ModuleYang: schematest.Types}}
	if missing, _ := CheckAll(doc, u, mod); missing != "" {
		t.Errorf("staged dependency reported missing: %q", missing)
	}
}
