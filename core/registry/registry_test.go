package registry

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/modreg/adapters/memory"
	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/core/schema"
	"github.com/artpar/modreg/core/schema/schematest"
	"github.com/artpar/modreg/ports"
)

func sampleDoc() *Document {
	return &Document{
		Modules: []*Module{
			{
				Name:            "acme-types",
				Revision:        "2024-01-10",
				EnabledFeatures: []string{"extended"},
				InverseDeps:     []string{"acme-logging"},
			},
			{
				Name:     "acme-logging",
				Revision: "2024-02-01",
				DataDeps: Deps{Modules: []string{"acme-types"}},
				OpDeps: []*OpDeps{{
					XPath: "/acme-logging:flush",
					In:    Deps{InstIDs: []InstID{{XPath: "/acme-logging:flush/target", DefaultModule: "acme-types"}}},
				}},
				ChangedFeatures: []FeatureChange{{Name: "f", Change: ChangeEnable}},
			},
		},
		Installed: []*Staged{{Name: "base", Revision: "2024-01-01", ModuleYang: schematest.Base}},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "registry.mpk")
	store := NewStore(path, memory.NewLocker())

	ok, err := store.Exists()
	if err != nil || ok {
		t.Fatalf("Exists before save = %v, %v", ok, err)
	}
	if _, err := store.Load(); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Load of missing registry = %v, want not found", err)
	}

	doc := sampleDoc()
	if err := store.Save(doc); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got.Modules) != 2 || got.Modules[1].OpDeps[0].In.InstIDs[0].DefaultModule != "acme-types" {
		t.Errorf("loaded document = %+v", got)
	}
	if got.FindStaged("base") == nil {
		t.Error("staged module lost")
	}
	if got.Modules[1].Pending() != MarkerFeatureChanges {
		t.Errorf("Pending = %v", got.Modules[1].Pending())
	}
}

func TestStoreKeepsFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.mpk")
	store := NewStore(path, memory.NewLocker())

	if err := store.Save(&Document{}); err != nil {
		t.Fatal(err)
	}
	fi, _ := os.Stat(path)
	if fi.Mode().Perm() != 0o666 {
		t.Errorf("initial mode = %v, want 0666", fi.Mode().Perm())
	}

	if err := os.Chmod(path, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(sampleDoc()); err != nil {
		t.Fatal(err)
	}
	fi, _ = os.Stat(path)
	if fi.Mode().Perm() != 0o600 {
		t.Errorf("mode after resave = %v, want 0600", fi.Mode().Perm())
	}
}

func TestStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.mpk")
	if err := os.WriteFile(path, []byte{0xc1, 0xff}, 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewStore(path, memory.NewLocker()).Load()
	if !errors.Is(err, errs.ErrInternal) {
		t.Errorf("Load = %v, want internal error", err)
	}
}

func TestTxnHoldsLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.mpk")
	locker := memory.NewLocker()
	store := NewStore(path, locker)
	if err := store.Save(&Document{}); err != nil {
		t.Fatal(err)
	}

	txn, err := store.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := store.Begin(ctx); err == nil {
		t.Fatal("second transaction should block on the lock")
	}

	txn.Doc().Modules = append(txn.Doc().Modules, &Module{Name: "base"})
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := txn.Close(); err != nil {
		t.Fatal(err)
	}
	if err := txn.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}

	txn2, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin after Close failed: %v", err)
	}
	defer txn2.Close()
	if txn2.Doc().FindModule("base") == nil {
		t.Error("committed module missing")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Document)
		wantErr string
	}{
		{"valid", func(*Document) {}, ""},
		{"duplicate module", func(d *Document) {
			d.Modules = append(d.Modules, &Module{Name: "acme-types"})
		}, "duplicate module"},
		{"staged name clash", func(d *Document) {
			d.Installed = append(d.Installed, &Staged{Name: "acme-logging", ModuleYang: "x"})
		}, "already present"},
		{"two markers", func(d *Document) {
			d.Modules[1].Removed = true
		}, "several schedule markers"},
		{"duplicate dependency", func(d *Document) {
			d.Modules[1].DataDeps.Modules = []string{"acme-types", "acme-types"}
		}, "duplicate data dependency"},
		{"bad change", func(d *Document) {
			d.Modules[1].ChangedFeatures[0].Change = "toggle"
		}, "invalid change"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := sampleDoc()
			tt.mutate(doc)
			err := doc.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestClone(t *testing.T) {
	doc := sampleDoc()
	c := doc.Clone()
	c.Modules[1].DataDeps.Modules[0] = "changed"
	c.Modules[0].EnabledFeatures = nil
	c.Installed[0].Data = "{}"

	if doc.Modules[1].DataDeps.Modules[0] != "acme-types" {
		t.Error("clone shares dependency slice")
	}
	if len(doc.Modules[0].EnabledFeatures) != 1 {
		t.Error("clone shares features")
	}
	if doc.Installed[0].Data != "" {
		t.Error("clone shares staged modules")
	}
}

func TestAddWithImports(t *testing.T) {
	var logs bytes.Buffer
	schemas := memory.NewSchemaStore()
	data := memory.NewDataStore()
	in := &Installer{Schemas: schemas, Data: data, Logger: zerolog.New(&logs)}

	u := schema.NewUniverse(schematest.Source())
	mod, err := u.Parse([]byte(schematest.Owner))
	if err != nil {
		t.Fatal(err)
	}

	doc := &Document{}
	if err := in.AddWithImports(doc, u, mod, LogInstalled); err != nil {
		t.Fatalf("AddWithImports failed: %v", err)
	}

	// acme-types is implemented through the augment, so both get records.
	if len(doc.Modules) != 2 || doc.Modules[0].Name != "acme-owner" || doc.Modules[1].Name != "acme-types" {
		t.Fatalf("modules = %+v", doc.Modules)
	}
	if !schemas.Has("acme-types", "2024-01-10") || !schemas.Has("acme-owner", "2024-04-01") {
		t.Error("schema files not stored")
	}
	if !data.Exists("acme-types", ports.Startup) {
		t.Error("startup data of dependency not created")
	}
	if !strings.Contains(logs.String(), `"message":"module installed"`) ||
		!strings.Contains(logs.String(), `"message":"dependency module installed"`) {
		t.Errorf("logs = %s", logs.String())
	}
}

func TestAddWithImportsSkipsUnimplemented(t *testing.T) {
	schemas := memory.NewSchemaStore()
	in := &Installer{Schemas: schemas, Data: memory.NewDataStore(), Logger: zerolog.Nop()}

	u := schema.NewUniverse(schematest.Source())
	mod, err := u.Parse([]byte(schematest.Logging))
	if err != nil {
		t.Fatal(err)
	}
	doc := &Document{}
	if err := in.AddWithImports(doc, u, mod, LogQuiet); err != nil {
		t.Fatal(err)
	}
	if len(doc.Modules) != 1 {
		t.Errorf("modules = %d, want only acme-logging", len(doc.Modules))
	}
	if !schemas.Has("acme-types", "2024-01-10") {
		t.Error("schema of import not stored")
	}
}

func TestCreate(t *testing.T) {
	in := &Installer{Schemas: memory.NewSchemaStore(), Data: memory.NewDataStore(), Logger: zerolog.Nop()}
	u := schema.NewUniverse(nil)

	doc, err := Create(u, in)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, name := range []string{"ietf-datastores", "ietf-origin", "modreg-monitoring"} {
		if doc.FindModule(name) == nil {
			t.Errorf("built-in %q missing", name)
		}
		if !Internal(name) {
			t.Errorf("Internal(%q) = false", name)
		}
	}
	if Internal("acme-types") {
		t.Error("Internal(acme-types) = true")
	}
	if err := doc.Validate(); err != nil {
		t.Error(err)
	}
}

func TestLoadUniverse(t *testing.T) {
	schemas := memory.NewSchemaStore()
	for name, text := range schematest.Source() {
		def, err := schema.ParseDef(text)
		if err != nil {
			t.Fatal(err)
		}
		schemas.Store(name, def.Revision, text)
	}

	doc := &Document{Modules: []*Module{
		{Name: "acme-types", Revision: "2024-01-10", EnabledFeatures: []string{"extended"}},
		{Name: "acme-logging", Revision: "2024-02-01", Removed: true},
	}}

	u := schema.NewUniverse(schemas)
	if err := LoadUniverse(doc, u, LoadOptions{SkipRemoved: true}); err != nil {
		t.Fatalf("LoadUniverse failed: %v", err)
	}
	if u.Module("acme-logging") != nil {
		t.Error("removed module loaded")
	}
	if !u.Module("acme-types").FeatureEnabled("extended") {
		t.Error("recorded feature not enabled")
	}
}
