// Package apply carries out every scheduled module change at once.
//
// Apply builds a candidate universe with all changes in place, checks that
// each loaded module has its dependencies implemented, that removed modules
// are no longer needed and that the stored configuration still parses and
// validates. Only then are data files rewritten and the registry committed.
// Any incompatibility abandons the whole set and leaves it scheduled.
package apply

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/modreg/core/datatree"
	"github.com/artpar/modreg/core/depgraph"
	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/core/registry"
	"github.com/artpar/modreg/core/schema"
	"github.com/artpar/modreg/ports"
)

// Result reports what an apply run did.
type Result struct {
	// Changed is set when scheduled changes were committed.
	Changed bool
	// Failed is set when the changes were incompatible and left scheduled.
	Failed bool
}

// Engine applies scheduled changes.
type Engine struct {
	store    *registry.Store
	schemas  ports.SchemaStore
	data     ports.DataStore
	ids      ports.IDGenerator
	observer ports.ChangeObserver
	logger   zerolog.Logger
}

// NewEngine creates an apply engine. observer may be nil.
func NewEngine(
	store *registry.Store,
	schemas ports.SchemaStore,
	data ports.DataStore,
	ids ports.IDGenerator,
	observer ports.ChangeObserver,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		store:    store,
		schemas:  schemas,
		data:     data,
		ids:      ids,
		observer: observer,
		logger:   logger,
	}
}

// Init creates the registry with the built-in modules installed.
func (e *Engine) Init(ctx context.Context) error {
	return e.store.Create(ctx, func() (*registry.Document, error) {
		u := schema.NewUniverse(e.schemas)
		doc, err := registry.Create(u, e.installer(e.logger))
		if err != nil {
			return nil, err
		}
		if err := depgraph.Rebuild(doc, u); err != nil {
			return nil, err
		}
		e.logger.Info().Str("path", e.store.Path()).Int("modules", len(doc.Modules)).Msg("registry created")
		return doc, nil
	})
}

func (e *Engine) installer(log zerolog.Logger) *registry.Installer {
	return &registry.Installer{Schemas: e.schemas, Data: e.data, Logger: log}
}

// Apply carries out every scheduled change. An error means the run was
// aborted by an internal failure; incompatible changes are reported through
// Result.Failed instead.
func (e *Engine) Apply(ctx context.Context) (res Result, err error) {
	start := time.Now()
	defer func() {
		if e.observer != nil {
			e.observer.Applied(res.Changed, res.Failed, err, time.Since(start))
		}
	}()

	txn, err := e.store.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer txn.Close()

	log := e.logger.With().Str("apply_id", e.ids.New()).Logger()
	log.Info().Msg("applying scheduled changes")

	r := &run{e: e, doc: txn.Doc(), log: log}
	if err := r.do(); err != nil {
		return Result{}, err
	}

	switch {
	case r.fail:
		log.Warn().Msg("failed to apply some changes, leaving all changes scheduled")
		return Result{Failed: true}, nil
	case r.change:
		if err := txn.Commit(); err != nil {
			return Result{}, err
		}
		log.Info().Msg("scheduled changes applied")
		return Result{Changed: true}, nil
	default:
		log.Info().Msg("no scheduled changes")
		return Result{}, nil
	}
}

// run is the state of one apply. Both universes live only as long as it.
type run struct {
	e   *Engine
	doc *registry.Document
	log zerolog.Logger

	cand *schema.Universe

	change bool
	fail   bool
}

func (r *run) do() error {
	if err := r.buildCandidate(); err != nil || r.fail {
		return err
	}
	if !r.change {
		return nil
	}
	r.checkRemoved()
	if r.fail {
		return nil
	}
	if err := r.migrateData(); err != nil || r.fail {
		return err
	}
	return r.commit()
}

// reject records an incompatibility.
func (r *run) reject(module string, err error, msg string) {
	ev := r.log.Warn()
	if module != "" {
		ev = ev.Str("module", module)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
	r.fail = true
}

// buildCandidate loads updated modules, then the remaining installed ones,
// applies feature changes and parses staged modules. Every implemented
// module must then have its dependencies available.
func (r *run) buildCandidate() error {
	r.cand = schema.NewUniverse(registry.Source{Doc: r.doc, Schemas: r.e.schemas, Updates: true})

	for _, rec := range r.doc.Modules {
		if rec.UpdatedYang == "" {
			continue
		}
		mod, err := r.cand.Parse([]byte(rec.UpdatedYang))
		if err != nil {
			r.reject(rec.Name, err, "updating module failed")
			return nil
		}
		for _, f := range rec.EnabledFeatures {
			if err := r.cand.EnableFeature(mod.Name, f); err != nil {
				r.reject(rec.Name, err, "updated module lacks an enabled feature")
				return nil
			}
		}
		r.change = true
	}

	for _, rec := range r.doc.Modules {
		if rec.Removed || rec.UpdatedYang != "" {
			r.change = true
			continue
		}
		if err := registry.LoadModule(r.cand, rec); err != nil {
			return err
		}
	}

	for _, rec := range r.doc.Modules {
		if len(rec.ChangedFeatures) == 0 {
			continue
		}
		if rec.Removed {
			r.log.Warn().Str("module", rec.Name).Msg("module is scheduled for both removal and feature changes, ignoring them")
			continue
		}
		for _, fc := range rec.ChangedFeatures {
			var err error
			if fc.Change == registry.ChangeEnable {
				err = r.cand.EnableFeature(rec.Name, fc.Name)
			} else {
				err = r.cand.DisableFeature(rec.Name, fc.Name)
			}
			if err != nil {
				return errs.Wrap(errs.Internal, err, "change feature of module %q", rec.Name)
			}
		}
		r.change = true
	}

	for _, st := range r.doc.Installed {
		mod, err := r.cand.Parse([]byte(st.ModuleYang))
		if err != nil {
			r.reject(st.Name, err, "installing module failed")
			return nil
		}
		for _, f := range st.EnabledFeatures {
			if err := r.cand.EnableFeature(mod.Name, f); err != nil {
				return errs.Wrap(errs.Internal, err, "enable feature of staged module %q", st.Name)
			}
		}
		r.change = true
	}

	for _, mod := range r.cand.Modules() {
		if !mod.Implemented {
			continue
		}
		missing, err := depgraph.CheckAll(r.doc, r.cand, mod)
		if err != nil {
			return err
		}
		if missing != "" {
			r.log.Warn().Str("module", mod.Name).Str("dependency", missing).
				Msg("module depends on a module that is not implemented")
			r.fail = true
			return nil
		}
	}
	return nil
}

// checkRemoved fails when a module scheduled for removal is still
// implemented because another module needs it.
func (r *run) checkRemoved() {
	for _, rec := range r.doc.Modules {
		if !rec.Removed {
			continue
		}
		if mod := r.cand.Module(rec.Name); mod != nil && mod.Implemented && mod.Revision == rec.Revision {
			r.reject(rec.Name, nil, "cannot remove module because some other installed module depends on it")
			return
		}
	}
}

// migrateData moves the stored startup and running data of every installed
// module into the candidate universe, adds seed data of staged modules and
// validates the result. Data files are rewritten only when everything
// validates.
func (r *run) migrateData() error {
	old := schema.NewUniverse(r.e.schemas)
	if err := registry.LoadUniverse(r.doc, old, registry.LoadOptions{}); err != nil {
		return err
	}

	var oldStart, oldRun []*datatree.Node
	var targets []string
	for _, mod := range old.Modules() {
		if !mod.Implemented {
			continue
		}
		for _, ds := range []ports.Datastore{ports.Startup, ports.Running} {
			forest, err := r.readData(old, mod.Name, ds)
			if err != nil {
				return err
			}
			if ds == ports.Startup {
				oldStart = append(oldStart, forest...)
			} else {
				oldRun = append(oldRun, forest...)
			}
		}
		if r.cand.Implemented(mod.Name) {
			targets = append(targets, mod.Name)
		}
	}

	start, ok, err := r.reparse(old, oldStart, ports.Startup)
	if err != nil || !ok {
		return err
	}
	running, ok, err := r.reparse(old, oldRun, ports.Running)
	if err != nil || !ok {
		return err
	}

	for _, st := range r.doc.Installed {
		if st.Data == "" {
			continue
		}
		seed, err := datatree.Parse(r.cand, []byte(st.Data), datatree.ParseOptions{Strict: true})
		if err != nil {
			r.reject(st.Name, err, "seed data does not parse")
			return nil
		}
		start = datatree.Merge(r.cand, start, seed)
		running = datatree.Merge(r.cand, running, seed)
		if !contains(targets, st.Name) {
			targets = append(targets, st.Name)
		}
	}

	if err := datatree.Validate(r.cand, start); err != nil {
		r.reject("", err, "startup data is invalid with the scheduled changes")
		return nil
	}
	if err := datatree.Validate(r.cand, running); err != nil {
		r.reject("", err, "running data is invalid with the scheduled changes")
		return nil
	}

	for _, name := range targets {
		if err := r.writeData(name, start, ports.Startup); err != nil {
			return err
		}
		if err := r.writeData(name, running, ports.Running); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) readData(u *schema.Universe, module string, ds ports.Datastore) ([]*datatree.Node, error) {
	raw, err := r.e.data.Read(module, ds)
	if err != nil {
		return nil, err
	}
	forest, err := datatree.Parse(u, raw, datatree.ParseOptions{Strict: true})
	if err != nil {
		return nil, errs.Wrap(errs.OperationFailed, err, "parse stored %s data of module %q", ds, module)
	}
	return forest, nil
}

// reparse prints a forest of the old universe and parses it under the
// candidate, skipping modules the candidate does not implement.
func (r *run) reparse(old *schema.Universe, forest []*datatree.Node, ds ports.Datastore) ([]*datatree.Node, bool, error) {
	text, err := datatree.Print(old, forest)
	if err != nil {
		return nil, false, errs.Wrap(errs.Internal, err, "print %s data", ds)
	}
	out, err := datatree.Parse(r.cand, text, datatree.ParseOptions{})
	if err != nil {
		r.reject("", err, ds.String()+" data does not fit the scheduled changes")
		return nil, false, nil
	}
	return out, true, nil
}

func (r *run) writeData(module string, forest []*datatree.Node, ds ports.Datastore) error {
	mine, _ := datatree.SplitByModule(forest, module)
	text, err := datatree.Print(r.cand, mine)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "print %s data of module %q", ds, module)
	}
	if err := r.e.data.Write(module, ds, text); err != nil {
		return errs.Wrap(errs.Internal, err, "write %s data of module %q", ds, module)
	}
	return nil
}

// commit folds every marker into the document, promotes staged modules and
// rebuilds all dependency records.
func (r *run) commit() error {
	in := r.e.installer(r.log)

	for _, rec := range append([]*registry.Module(nil), r.doc.Modules...) {
		switch {
		case rec.Removed:
			if err := r.dropModule(rec, false); err != nil {
				return err
			}
			r.log.Info().Str("module", rec.Name).Msg("module removed")
		case rec.UpdatedYang != "":
			if err := r.dropModule(rec, true); err != nil {
				return err
			}
			mod := r.cand.Module(rec.Name)
			if err := in.AddWithImports(r.doc, r.cand, mod, registry.LogQuiet); err != nil {
				return err
			}
			r.log.Info().Str("module", mod.Name).Str("revision", mod.Revision).Msg("module updated")
		case len(rec.ChangedFeatures) > 0:
			for _, fc := range rec.ChangedFeatures {
				r.log.Info().Str("module", rec.Name).Str("feature", fc.Name).Str("change", string(fc.Change)).Msg("feature changed")
			}
			rec.ChangedFeatures = nil
			rec.EnabledFeatures = r.cand.Module(rec.Name).EnabledFeatures()
		}
	}

	staged := r.doc.Installed
	r.doc.Installed = nil
	for i, st := range staged {
		if by := importedBy(r.cand, staged[i+1:], st.Name); by != "" {
			r.log.Info().Str("module", st.Name).Str("dependent", by).Msg("module will be installed as a dependency")
			continue
		}
		if err := in.AddWithImports(r.doc, r.cand, r.cand.Module(st.Name), registry.LogInstalled); err != nil {
			return err
		}
	}

	return depgraph.Rebuild(r.doc, r.cand)
}

// dropModule deletes a module record with its schema file, unless some
// module still imports that revision. Data files survive an update.
func (r *run) dropModule(rec *registry.Module, update bool) error {
	if !update {
		if err := r.e.data.RemoveAll(rec.Name); err != nil {
			return errs.Wrap(errs.Internal, err, "remove data of module %q", rec.Name)
		}
	}
	if !importsRevision(r.cand, rec.Name, rec.Revision) {
		if err := r.e.schemas.Remove(rec.Name, rec.Revision); err != nil {
			return errs.Wrap(errs.Internal, err, "remove schema of module %q", rec.Name)
		}
	}
	r.doc.RemoveModule(rec.Name)
	return nil
}

// importedBy returns a staged module among later that imports name as an
// implemented module, or "".
func importedBy(u *schema.Universe, later []*registry.Staged, name string) string {
	for _, st := range later {
		mod := u.Module(st.Name)
		if mod == nil {
			continue
		}
		for _, imp := range mod.Imports {
			if imp.Name == name && imp.Implemented {
				return mod.Name
			}
		}
	}
	return ""
}

// importsRevision reports whether a module of u imports name in revision.
func importsRevision(u *schema.Universe, name, revision string) bool {
	for _, m := range u.Modules() {
		for _, imp := range m.Imports {
			if imp.Name == name && imp.Revision == revision {
				return true
			}
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
