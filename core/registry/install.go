package registry

import (
	"github.com/rs/zerolog"

	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/core/schema"
	"github.com/artpar/modreg/ports"
)

// LogMode selects how AddWithImports reports new records.
type LogMode int

const (
	// LogQuiet logs nothing.
	LogQuiet LogMode = iota
	// LogInstalled logs the module and each implemented dependency.
	LogInstalled
)

// Installer adds compiled modules to a document together with their schema
// files and startup data files.
type Installer struct {
	Schemas ports.SchemaStore
	Data    ports.DataStore
	Logger  zerolog.Logger
}

// AddWithImports stores the schema text of mod and everything it imports,
// transitively, and adds a record for every implemented module that has
// none yet.
func (in *Installer) AddWithImports(doc *Document, u *schema.Universe, mod *schema.Module, mode LogMode) error {
	queue := []*schema.Module{mod}
	seen := make(map[string]bool)

	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true

		text, err := u.Print(m)
		if err != nil {
			return err
		}
		if err := in.Schemas.Store(m.Name, m.Revision, text); err != nil {
			return errs.Wrap(errs.Internal, err, "store schema of %q", m.Name)
		}

		if m.Implemented && doc.FindModule(m.Name) == nil {
			doc.Modules = append(doc.Modules, &Module{
				Name:            m.Name,
				Revision:        m.Revision,
				EnabledFeatures: m.EnabledFeatures(),
			})
			if err := in.Data.CreateStartup(m.Name); err != nil {
				return errs.Wrap(errs.Internal, err, "create startup data of %q", m.Name)
			}
			if mode == LogInstalled {
				if m == mod {
					in.Logger.Info().Str("module", m.Name).Str("revision", m.Revision).Msg("module installed")
				} else {
					in.Logger.Info().Str("module", m.Name).Str("revision", m.Revision).Msg("dependency module installed")
				}
			}
		}

		queue = append(queue, m.Imports...)
	}
	return nil
}
