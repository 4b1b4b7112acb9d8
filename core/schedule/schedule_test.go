package schedule_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/modreg/adapters/clock"
	"github.com/artpar/modreg/adapters/memory"
	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/core/registry"
	"github.com/artpar/modreg/core/schedule"
	"github.com/artpar/modreg/core/schema"
	"github.com/artpar/modreg/core/schema/schematest"
)

var epoch = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

type opRecord struct {
	op  string
	err error
}

type recorder struct{ ops []opRecord }

func (r *recorder) ScheduleOp(op string, err error) { r.ops = append(r.ops, opRecord{op, err}) }

func (r *recorder) Applied(bool, bool, error, time.Duration) {}

type fixture struct {
	mgr     *schedule.Manager
	store   *registry.Store
	schemas *memory.SchemaStore
	replay  *memory.ReplayIndex
	obs     *recorder
}

// setup creates a registry holding the built-in modules plus a record for
// each installed fixture. Every fixture schema is available for imports.
func setup(t *testing.T, installed ...string) *fixture {
	t.Helper()

	schemas := memory.NewSchemaStore()
	for _, text := range schematest.Source() {
		def, err := schema.ParseDef(text)
		if err != nil {
			t.Fatal(err)
		}
		schemas.Store(def.Name, def.Revision, text)
	}

	u := schema.NewUniverse(schemas)
	doc, err := registry.Create(u, &registry.Installer{
		Schemas: schemas, Data: memory.NewDataStore(), Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("create registry: %v", err)
	}
	for _, text := range installed {
		def, err := schema.ParseDef([]byte(text))
		if err != nil {
			t.Fatal(err)
		}
		doc.Modules = append(doc.Modules, &registry.Module{Name: def.Name, Revision: def.Revision})
	}

	store := registry.NewStore(filepath.Join(t.TempDir(), "registry.mpk"), memory.NewLocker())
	if err := store.Save(doc); err != nil {
		t.Fatalf("save registry: %v", err)
	}

	f := &fixture{
		store:   store,
		schemas: schemas,
		replay:  memory.NewReplayIndex(),
		obs:     &recorder{},
	}
	f.mgr = schedule.NewManager(store, schemas, f.replay, clock.NewFake(epoch), f.obs, zerolog.Nop())
	return f
}

func (f *fixture) doc(t *testing.T) *registry.Document {
	t.Helper()
	doc, err := f.store.Load()
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	return doc
}

func (f *fixture) raw(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(f.store.Path())
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func wantKind(t *testing.T, err error, kind errs.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := errs.KindOf(err); got != kind {
		t.Fatalf("error kind = %s, want %s (%v)", got, kind, err)
	}
}

func TestScheduleInstall(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if err := f.mgr.ScheduleInstall(ctx, []byte(schematest.Base), []string{"f1"}); err != nil {
		t.Fatalf("ScheduleInstall failed: %v", err)
	}

	st := f.doc(t).FindStaged("base")
	if st == nil {
		t.Fatal("base is not staged")
	}
	if st.Revision != "2024-01-01" {
		t.Errorf("staged revision = %q", st.Revision)
	}
	if !reflect.DeepEqual(st.EnabledFeatures, []string{"f1"}) {
		t.Errorf("staged features = %v, want [f1]", st.EnabledFeatures)
	}
	if !strings.Contains(st.ModuleYang, "module: base") {
		t.Errorf("staged schema text = %q", st.ModuleYang)
	}

	err := f.mgr.ScheduleInstall(ctx, []byte(schematest.Base), nil)
	wantKind(t, err, errs.Exists)

	if err := f.mgr.UnscheduleInstall(ctx, "base"); err != nil {
		t.Fatalf("UnscheduleInstall failed: %v", err)
	}
	wantKind(t, f.mgr.UnscheduleInstall(ctx, "base"), errs.NotFound)

	want := []opRecord{
		{schedule.OpInstall, nil},
		{schedule.OpInstall, err},
		{schedule.OpUnschedInstall, nil},
	}
	if len(f.obs.ops) != 4 || !reflect.DeepEqual(f.obs.ops[:3], want) {
		t.Errorf("observed ops = %+v", f.obs.ops)
	}
}

func TestScheduleInstall_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		features []string
		want     errs.Kind
	}{
		{"unknown feature", schematest.Base, []string{"f9"}, errs.NotFound},
		{"malformed text", "module: [", nil, errs.InvalArg},
		{"already installed", schematest.Types, nil, errs.Exists},
		{"missing import", "module: lonely\nimports: [nowhere]\n", nil, errs.InvalArg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, schematest.Types)
			before := f.raw(t)

			err := f.mgr.ScheduleInstall(context.Background(), []byte(tt.text), tt.features)
			wantKind(t, err, tt.want)

			if !bytes.Equal(before, f.raw(t)) {
				t.Error("failed operation modified the registry")
			}
		})
	}
}

func TestScheduleInstall_CancelsRemoval(t *testing.T) {
	f := setup(t, schematest.Types, schematest.Owner)
	ctx := context.Background()

	for _, name := range []string{"acme-types", "acme-owner"} {
		if err := f.mgr.ScheduleRemoval(ctx, name); err != nil {
			t.Fatalf("ScheduleRemoval(%s): %v", name, err)
		}
	}

	if err := f.mgr.ScheduleInstall(ctx, []byte(schematest.Owner), nil); err != nil {
		t.Fatalf("ScheduleInstall failed: %v", err)
	}

	doc := f.doc(t)
	for _, name := range []string{"acme-types", "acme-owner"} {
		if doc.FindModule(name).Removed {
			t.Errorf("%s is still scheduled for removal", name)
		}
	}
	if doc.FindStaged("acme-owner") != nil {
		t.Error("reinstalling a module pending removal staged it")
	}
}

func TestScheduleRemoval(t *testing.T) {
	f := setup(t, schematest.Base)
	ctx := context.Background()

	wantKind(t, f.mgr.ScheduleRemoval(ctx, "ietf-datastores"), errs.Unsupported)
	wantKind(t, f.mgr.ScheduleRemoval(ctx, "nope"), errs.NotFound)
	wantKind(t, f.mgr.UnscheduleRemoval(ctx, "base"), errs.NotFound)

	if err := f.mgr.ScheduleRemoval(ctx, "base"); err != nil {
		t.Fatalf("ScheduleRemoval failed: %v", err)
	}
	if !f.doc(t).FindModule("base").Removed {
		t.Fatal("removal marker not stored")
	}
	wantKind(t, f.mgr.ScheduleRemoval(ctx, "base"), errs.Exists)

	if err := f.mgr.UnscheduleRemoval(ctx, "base"); err != nil {
		t.Fatalf("UnscheduleRemoval failed: %v", err)
	}
	if f.doc(t).FindModule("base").Removed {
		t.Error("removal marker survived unscheduling")
	}
}

func TestUnscheduleRemoval_Imports(t *testing.T) {
	f := setup(t, schematest.Types, schematest.Owner)
	ctx := context.Background()

	for _, name := range []string{"acme-types", "acme-owner"} {
		if err := f.mgr.ScheduleRemoval(ctx, name); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.mgr.UnscheduleRemoval(ctx, "acme-owner"); err != nil {
		t.Fatalf("UnscheduleRemoval failed: %v", err)
	}
	if f.doc(t).FindModule("acme-types").Removed {
		t.Error("implemented import is still scheduled for removal")
	}
}

func TestScheduleUpdate(t *testing.T) {
	f := setup(t, schematest.Base)
	ctx := context.Background()
	newer := strings.Replace(schematest.Base, "2024-01-01", "2024-09-01", 1)

	wantKind(t, f.mgr.ScheduleUpdate(ctx, []byte(schematest.Base)), errs.InvalArg)
	wantKind(t, f.mgr.UnscheduleUpdate(ctx, "base"), errs.NotFound)

	if err := f.mgr.ScheduleUpdate(ctx, []byte(newer)); err != nil {
		t.Fatalf("ScheduleUpdate failed: %v", err)
	}
	rec := f.doc(t).FindModule("base")
	if !strings.Contains(rec.UpdatedYang, "2024-09-01") {
		t.Errorf("updated schema text = %q", rec.UpdatedYang)
	}
	wantKind(t, f.mgr.ScheduleUpdate(ctx, []byte(newer)), errs.Exists)

	if err := f.mgr.UnscheduleUpdate(ctx, "base"); err != nil {
		t.Fatalf("UnscheduleUpdate failed: %v", err)
	}
	if f.doc(t).FindModule("base").UpdatedYang != "" {
		t.Error("update survived unscheduling")
	}
}

func TestScheduleUpdate_Internal(t *testing.T) {
	f := setup(t)
	text := "module: ietf-origin\nrevision: \"2030-01-01\"\n"
	wantKind(t, f.mgr.ScheduleUpdate(context.Background(), []byte(text)), errs.Unsupported)
}

func TestMarkersAreExclusive(t *testing.T) {
	f := setup(t, schematest.Base)
	ctx := context.Background()
	newer := strings.Replace(schematest.Base, "2024-01-01", "2024-09-01", 1)

	if err := f.mgr.ScheduleRemoval(ctx, "base"); err != nil {
		t.Fatal(err)
	}
	wantKind(t, f.mgr.ChangeFeature(ctx, "base", "f1", true), errs.Exists)
	wantKind(t, f.mgr.ScheduleUpdate(ctx, []byte(newer)), errs.Exists)

	if err := f.mgr.UnscheduleRemoval(ctx, "base"); err != nil {
		t.Fatal(err)
	}
	if err := f.mgr.ChangeFeature(ctx, "base", "f1", true); err != nil {
		t.Fatal(err)
	}
	wantKind(t, f.mgr.ScheduleRemoval(ctx, "base"), errs.Exists)
}

func TestChangeFeature(t *testing.T) {
	f := setup(t, schematest.Base)
	ctx := context.Background()

	steps := []struct {
		feature string
		enable  bool
		want    errs.Kind
		changes []registry.FeatureChange
	}{
		{"f1", true, 0, []registry.FeatureChange{{Name: "f1", Change: registry.ChangeEnable}}},
		{"f1", true, errs.Exists, []registry.FeatureChange{{Name: "f1", Change: registry.ChangeEnable}}},
		{"f1", false, 0, nil},
		{"f1", false, errs.Exists, nil},
		{"f7", true, errs.NotFound, nil},
		{"f2", true, 0, []registry.FeatureChange{{Name: "f2", Change: registry.ChangeEnable}}},
	}
	for i, s := range steps {
		err := f.mgr.ChangeFeature(ctx, "base", s.feature, s.enable)
		if got := errs.KindOf(err); got != s.want {
			t.Fatalf("step %d: error kind = %v, want %v (%v)", i, got, s.want, err)
		}
		if got := f.doc(t).FindModule("base").ChangedFeatures; !reflect.DeepEqual(got, s.changes) {
			t.Fatalf("step %d: changed features = %+v, want %+v", i, got, s.changes)
		}
	}

	wantKind(t, f.mgr.ChangeFeature(ctx, "missing", "f1", true), errs.NotFound)
}

func TestAttachSeedData(t *testing.T) {
	f := setup(t, schematest.Types)
	ctx := context.Background()

	seed := []byte(`{"base:settings":{"name":"lab"}}`)
	wantKind(t, f.mgr.AttachSeedData(ctx, "base", seed), errs.NotFound)

	if err := f.mgr.ScheduleInstall(ctx, []byte(schematest.Base), nil); err != nil {
		t.Fatal(err)
	}
	if err := f.mgr.AttachSeedData(ctx, "base", seed); err != nil {
		t.Fatalf("AttachSeedData failed: %v", err)
	}
	if got := f.doc(t).FindStaged("base").Data; got != string(seed) {
		t.Errorf("seed data = %s, want %s", got, seed)
	}

	rejected := []string{
		`{"acme-types:servers":{}}`,
		`{"base:settings":{"extra":"needs f1"}}`,
		`{"base:settings":{"name":1,`,
	}
	for _, data := range rejected {
		wantKind(t, f.mgr.AttachSeedData(ctx, "base", []byte(data)), errs.InvalArg)
	}
	if got := f.doc(t).FindStaged("base").Data; got != string(seed) {
		t.Errorf("rejected seed data replaced the previous one: %s", got)
	}
}

func TestSetReplaySupport(t *testing.T) {
	f := setup(t, schematest.Types, schematest.Base)
	ctx := context.Background()

	earliest := epoch.Add(-48 * time.Hour)
	f.replay.Record(ctx, "acme-types", epoch.Add(-time.Hour))
	f.replay.Record(ctx, "acme-types", earliest)

	wantKind(t, f.mgr.SetReplaySupport(ctx, "nope", true), errs.NotFound)

	if err := f.mgr.SetReplaySupport(ctx, "", true); err != nil {
		t.Fatalf("SetReplaySupport failed: %v", err)
	}
	doc := f.doc(t)
	if got := doc.FindModule("acme-types").ReplaySupport; got != earliest.Unix() {
		t.Errorf("acme-types replay support = %d, want %d", got, earliest.Unix())
	}
	if got := doc.FindModule("base").ReplaySupport; got != epoch.Unix() {
		t.Errorf("base replay support = %d, want %d", got, epoch.Unix())
	}

	if err := f.mgr.SetReplaySupport(ctx, "base", false); err != nil {
		t.Fatal(err)
	}
	doc = f.doc(t)
	if _, on := doc.FindModule("base").ReplaySince(); on {
		t.Error("replay support still on for base")
	}
	if _, on := doc.FindModule("acme-types").ReplaySince(); !on {
		t.Error("disabling base turned off acme-types")
	}
}

func TestLockHeld(t *testing.T) {
	locker := memory.NewLocker()
	store := registry.NewStore(filepath.Join(t.TempDir(), "registry.mpk"), locker)
	if err := store.Save(&registry.Document{}); err != nil {
		t.Fatal(err)
	}
	mgr := schedule.NewManager(store, memory.NewSchemaStore(), memory.NewReplayIndex(), clock.NewFake(epoch), nil, zerolog.Nop())

	if err := locker.Lock(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := mgr.ScheduleRemoval(ctx, "base")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ScheduleRemoval with lock held = %v, want deadline exceeded", err)
	}
}
