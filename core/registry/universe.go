package registry

import (
	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/core/schema"
)

// Source resolves staged modules from the document before falling back to
// the schema store, so staged modules can import each other.
type Source struct {
	Doc     *Document
	Schemas schema.Source

	// Updates resolves modules scheduled for update to their replacement
	// text, so importers see the revision they will run against.
	Updates bool
}

// Find implements schema.Source.
func (s Source) Find(name, revision string) ([]byte, error) {
	if st := s.Doc.FindStaged(name); st != nil && (revision == "" || revision == st.Revision) {
		return []byte(st.ModuleYang), nil
	}
	if s.Updates {
		if m := s.Doc.FindModule(name); m != nil && m.UpdatedYang != "" {
			if revision == "" {
				return []byte(m.UpdatedYang), nil
			}
			if def, err := schema.ParseDef([]byte(m.UpdatedYang)); err == nil && def.Revision == revision {
				return []byte(m.UpdatedYang), nil
			}
		}
	}
	return s.Schemas.Find(name, revision)
}

// LoadOptions select the module records LoadUniverse skips.
type LoadOptions struct {
	SkipRemoved bool
	SkipUpdated bool
}

// LoadUniverse loads every installed module of the document into u in
// registry order and enables its recorded features.
func LoadUniverse(doc *Document, u *schema.Universe, opts LoadOptions) error {
	for _, m := range doc.Modules {
		if (opts.SkipRemoved && m.Removed) || (opts.SkipUpdated && m.UpdatedYang != "") {
			continue
		}
		if err := LoadModule(u, m); err != nil {
			return err
		}
	}
	return nil
}

// LoadModule loads one installed module into u with its recorded features.
func LoadModule(u *schema.Universe, m *Module) error {
	if _, err := u.Load(m.Name, m.Revision); err != nil {
		return errs.Wrap(errs.KindOf(err), err, "load module %q", m.Name)
	}
	for _, f := range m.EnabledFeatures {
		if err := u.EnableFeature(m.Name, f); err != nil {
			return errs.Wrap(errs.Internal, err, "module %q", m.Name)
		}
	}
	return nil
}

// LoadStaged parses every staged module into u and enables its features.
func LoadStaged(doc *Document, u *schema.Universe) error {
	for _, s := range doc.Installed {
		if _, err := u.Parse([]byte(s.ModuleYang)); err != nil {
			return errs.Wrap(errs.KindOf(err), err, "staged module %q", s.Name)
		}
		for _, f := range s.EnabledFeatures {
			if err := u.EnableFeature(s.Name, f); err != nil {
				return err
			}
		}
	}
	return nil
}
