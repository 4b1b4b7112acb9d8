// Package schedule records module changes in the registry for the next
// apply: installs, removals, updates, feature changes, seed data and replay
// support. Every operation is one locked read-modify-write of the registry
// that either fully succeeds or leaves it untouched.
package schedule

import (
	"context"
	"slices"

	"github.com/rs/zerolog"

	"github.com/artpar/modreg/core/datatree"
	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/core/registry"
	"github.com/artpar/modreg/core/schema"
	"github.com/artpar/modreg/ports"
)

// Operation names reported to the observer.
const (
	OpInstall        = "install"
	OpUnschedInstall = "cancel-install"
	OpRemove         = "remove"
	OpUnschedRemove  = "cancel-remove"
	OpUpdate         = "update"
	OpUnschedUpdate  = "cancel-update"
	OpChangeFeature  = "feature"
	OpAttachSeedData = "seed"
	OpReplaySupport  = "replay"
)

// Manager schedules module changes.
type Manager struct {
	store    *registry.Store
	schemas  ports.SchemaStore
	replay   ports.ReplayIndex
	clock    ports.Clock
	observer ports.ChangeObserver
	logger   zerolog.Logger
}

// NewManager creates a schedule manager. observer may be nil.
func NewManager(
	store *registry.Store,
	schemas ports.SchemaStore,
	replay ports.ReplayIndex,
	clock ports.Clock,
	observer ports.ChangeObserver,
	logger zerolog.Logger,
) *Manager {
	return &Manager{
		store:    store,
		schemas:  schemas,
		replay:   replay,
		clock:    clock,
		observer: observer,
		logger:   logger,
	}
}

// update runs fn on the locked registry and commits when it succeeds.
func (m *Manager) update(ctx context.Context, op string, fn func(doc *registry.Document) error) (err error) {
	defer func() {
		if m.observer != nil {
			m.observer.ScheduleOp(op, err)
		}
	}()

	txn, err := m.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer txn.Close()

	if err = fn(txn.Doc()); err != nil {
		return err
	}
	return txn.Commit()
}

// installed loads every installed module of doc into a fresh universe.
func (m *Manager) installed(doc *registry.Document) (*schema.Universe, error) {
	u := schema.NewUniverse(registry.Source{Doc: doc, Schemas: m.schemas})
	if err := registry.LoadUniverse(doc, u, registry.LoadOptions{}); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "load installed modules")
	}
	return u, nil
}

// compile parses schema text in a universe whose imports resolve to
// installed and staged modules, pending updates included.
func (m *Manager) compile(doc *registry.Document, text []byte) (*schema.Universe, *schema.Module, error) {
	u := schema.NewUniverse(registry.Source{Doc: doc, Schemas: m.schemas, Updates: true})
	mod, err := u.Parse(text)
	if err != nil {
		return nil, nil, errs.Wrap(errs.InvalArg, err, "invalid module")
	}
	return u, mod, nil
}

// conflict rejects a new marker on a module that already carries one.
func conflict(rec *registry.Module, want registry.MarkerKind) error {
	have := rec.Pending()
	switch {
	case have == registry.MarkerNone:
		return nil
	case have == want:
		return errs.New(errs.Exists, "module %q already scheduled for %s", rec.Name, want)
	default:
		return errs.New(errs.Exists, "module %q already scheduled for %s", rec.Name, have)
	}
}

// ScheduleInstall stages a module for installation with the given features
// enabled. Installing a module that is scheduled for removal cancels that
// removal together with the removal of its implemented imports.
func (m *Manager) ScheduleInstall(ctx context.Context, text []byte, features []string) error {
	return m.update(ctx, OpInstall, func(doc *registry.Document) error {
		def, err := schema.ParseDef(text)
		if err != nil {
			return errs.Wrap(errs.InvalArg, err, "invalid module")
		}
		if doc.FindStaged(def.Name) != nil {
			return errs.New(errs.Exists, "module %q already scheduled for installation", def.Name)
		}
		if rec := doc.FindModule(def.Name); rec != nil {
			if !rec.Removed {
				return errs.New(errs.Exists, "module %q is already installed", def.Name)
			}
			return m.unscheduleRemoval(doc, def.Name)
		}

		u, mod, err := m.compile(doc, text)
		if err != nil {
			return err
		}
		for _, f := range features {
			if err := u.EnableFeature(mod.Name, f); err != nil {
				return err
			}
		}
		yang, err := u.Print(mod)
		if err != nil {
			return err
		}

		doc.Installed = append(doc.Installed, &registry.Staged{
			Name:            mod.Name,
			Revision:        mod.Revision,
			EnabledFeatures: mod.EnabledFeatures(),
			ModuleYang:      string(yang),
		})
		m.logger.Info().Str("module", mod.Name).Str("revision", mod.Revision).Msg("module scheduled for installation")
		return nil
	})
}

// UnscheduleInstall drops a staged module.
func (m *Manager) UnscheduleInstall(ctx context.Context, name string) error {
	return m.update(ctx, OpUnschedInstall, func(doc *registry.Document) error {
		if !doc.RemoveStaged(name) {
			return errs.New(errs.NotFound, "module %q not scheduled for installation", name)
		}
		m.logger.Info().Str("module", name).Msg("module installation unscheduled")
		return nil
	})
}

// ScheduleRemoval marks an installed module for removal.
func (m *Manager) ScheduleRemoval(ctx context.Context, name string) error {
	return m.update(ctx, OpRemove, func(doc *registry.Document) error {
		rec := doc.FindModule(name)
		if rec == nil {
			return errs.New(errs.NotFound, "module %q is not installed", name)
		}
		if registry.Internal(name) {
			return errs.New(errs.Unsupported, "internal module %q cannot be removed", name)
		}
		if err := conflict(rec, registry.MarkerRemoved); err != nil {
			return err
		}
		rec.Removed = true
		m.logger.Info().Str("module", name).Msg("module scheduled for removal")
		return nil
	})
}

// UnscheduleRemoval cancels the removal of a module and of every
// implemented module it imports, transitively.
func (m *Manager) UnscheduleRemoval(ctx context.Context, name string) error {
	return m.update(ctx, OpUnschedRemove, func(doc *registry.Document) error {
		rec := doc.FindModule(name)
		if rec == nil || !rec.Removed {
			return errs.New(errs.NotFound, "module %q not scheduled for removal", name)
		}
		return m.unscheduleRemoval(doc, name)
	})
}

func (m *Manager) unscheduleRemoval(doc *registry.Document, name string) error {
	u, err := m.installed(doc)
	if err != nil {
		return err
	}

	queue := []string{name}
	seen := make(map[string]bool)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true

		if rec := doc.FindModule(cur); rec != nil && rec.Removed {
			rec.Removed = false
			m.logger.Info().Str("module", cur).Msg("module removal unscheduled")
		}
		mod := u.Module(cur)
		if mod == nil {
			continue
		}
		for _, imp := range mod.Imports {
			if imp.Implemented {
				queue = append(queue, imp.Name)
			}
		}
	}
	return nil
}

// ScheduleUpdate schedules replacing an installed module with a newer
// revision.
func (m *Manager) ScheduleUpdate(ctx context.Context, text []byte) error {
	return m.update(ctx, OpUpdate, func(doc *registry.Document) error {
		def, err := schema.ParseDef(text)
		if err != nil {
			return errs.Wrap(errs.InvalArg, err, "invalid module")
		}
		rec := doc.FindModule(def.Name)
		if rec == nil {
			return errs.New(errs.NotFound, "module %q is not installed", def.Name)
		}
		if registry.Internal(def.Name) {
			return errs.New(errs.Unsupported, "internal module %q cannot be updated", def.Name)
		}
		if err := conflict(rec, registry.MarkerUpdated); err != nil {
			return err
		}
		if def.Revision <= rec.Revision {
			return errs.New(errs.InvalArg, "module %q revision %q is not newer than installed %q",
				def.Name, def.Revision, rec.Revision)
		}

		u, mod, err := m.compile(doc, text)
		if err != nil {
			return err
		}
		yang, err := u.Print(mod)
		if err != nil {
			return err
		}
		rec.UpdatedYang = string(yang)
		m.logger.Info().Str("module", def.Name).Str("revision", def.Revision).Msg("module scheduled for update")
		return nil
	})
}

// UnscheduleUpdate cancels a scheduled update.
func (m *Manager) UnscheduleUpdate(ctx context.Context, name string) error {
	return m.update(ctx, OpUnschedUpdate, func(doc *registry.Document) error {
		rec := doc.FindModule(name)
		if rec == nil || rec.UpdatedYang == "" {
			return errs.New(errs.NotFound, "module %q not scheduled for update", name)
		}
		rec.UpdatedYang = ""
		m.logger.Info().Str("module", name).Msg("module update unscheduled")
		return nil
	})
}

// ChangeFeature schedules enabling or disabling a feature. Requesting the
// opposite of an already scheduled change cancels that change.
func (m *Manager) ChangeFeature(ctx context.Context, module, feature string, enable bool) error {
	return m.update(ctx, OpChangeFeature, func(doc *registry.Document) error {
		rec := doc.FindModule(module)
		if rec == nil {
			return errs.New(errs.NotFound, "module %q is not installed", module)
		}
		if rec.Removed || rec.UpdatedYang != "" {
			return conflict(rec, registry.MarkerFeatureChanges)
		}
		def, err := m.installedDef(rec)
		if err != nil {
			return err
		}
		if !slices.Contains(def.Features, feature) {
			return errs.New(errs.NotFound, "feature %q not found in module %q", feature, module)
		}

		want := registry.ChangeDisable
		verb := "disabl"
		if enable {
			want = registry.ChangeEnable
			verb = "enabl"
		}
		log := m.logger.Info().Str("module", module).Str("feature", feature)

		for i, fc := range rec.ChangedFeatures {
			if fc.Name != feature {
				continue
			}
			if fc.Change == want {
				return errs.New(errs.Exists, "module %q feature %q already scheduled to be %sed", module, feature, verb)
			}
			rec.ChangedFeatures = append(rec.ChangedFeatures[:i], rec.ChangedFeatures[i+1:]...)
			log.Msg("feature change unscheduled")
			return nil
		}

		if rec.FeatureEnabled(feature) == enable {
			return errs.New(errs.Exists, "module %q feature %q is already %sed", module, feature, verb)
		}
		rec.ChangedFeatures = append(rec.ChangedFeatures, registry.FeatureChange{Name: feature, Change: want})
		log.Msg("feature " + verb + "ing scheduled")
		return nil
	})
}

// installedDef reads the stored definition of an installed module.
func (m *Manager) installedDef(rec *registry.Module) (*schema.ModuleDef, error) {
	text, err := m.schemas.Find(rec.Name, rec.Revision)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "schema of installed module %q", rec.Name)
	}
	def, err := schema.ParseDef(text)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "schema of installed module %q", rec.Name)
	}
	return def, nil
}

// AttachSeedData sets the configuration a staged module starts with. The
// data must belong to that module and validate against the installed and
// staged modules. Previously attached data is replaced.
func (m *Manager) AttachSeedData(ctx context.Context, module string, data []byte) error {
	return m.update(ctx, OpAttachSeedData, func(doc *registry.Document) error {
		st := doc.FindStaged(module)
		if st == nil {
			return errs.New(errs.NotFound, "module %q not scheduled for installation", module)
		}

		u, err := m.installed(doc)
		if err != nil {
			return err
		}
		if err := registry.LoadStaged(doc, u); err != nil {
			return errs.Wrap(errs.Internal, err, "load staged modules")
		}

		forest, err := datatree.Parse(u, data, datatree.ParseOptions{Strict: true})
		if err != nil {
			return errs.Wrap(errs.InvalArg, err, "parse seed data of %q", module)
		}
		if _, rest := datatree.SplitByModule(forest, module); len(rest) > 0 {
			return errs.New(errs.InvalArg, "seed data of %q contains nodes of module %q", module, rest[0].Module)
		}
		if err := datatree.ValidateModule(u, forest, module); err != nil {
			return errs.Wrap(errs.InvalArg, err, "validate seed data of %q", module)
		}
		out, err := datatree.Print(u, forest)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "print seed data of %q", module)
		}

		st.Data = string(out)
		m.logger.Info().Str("module", module).Msg("seed data attached")
		return nil
	})
}

// SetReplaySupport turns notification replay on or off for a module, or
// for every installed module when module is empty. Replay starts at the
// earliest stored notification, or now when there is none.
func (m *Manager) SetReplaySupport(ctx context.Context, module string, enable bool) error {
	return m.update(ctx, OpReplaySupport, func(doc *registry.Document) error {
		recs := doc.Modules
		if module != "" {
			rec := doc.FindModule(module)
			if rec == nil {
				return errs.New(errs.NotFound, "module %q is not installed", module)
			}
			recs = []*registry.Module{rec}
		}

		for _, rec := range recs {
			switch {
			case !enable:
				rec.ReplaySupport = 0
			case rec.ReplaySupport == 0:
				from, ok, err := m.replay.Earliest(ctx, rec.Name)
				if err != nil {
					return errs.Wrap(errs.Internal, err, "find earliest notification of %q", rec.Name)
				}
				if !ok {
					from = m.clock.Now()
				}
				rec.ReplaySupport = from.Unix()
			}
		}
		m.logger.Info().Str("module", module).Bool("enabled", enable).Msg("replay support updated")
		return nil
	})
}
