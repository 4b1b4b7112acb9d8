// Package depgraph turns analyzer facts into the dependency records of the
// module registry and checks that every dependency can be satisfied.
package depgraph

import (
	"github.com/artpar/modreg/core/analysis"
	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/core/registry"
	"github.com/artpar/modreg/core/schema"
)

// Build computes the data and operation dependencies of the module record
// called name from its compiled form in u, then records name as an inverse
// dependency of every module its data references. Existing records of the
// module are replaced.
func Build(doc *registry.Document, u *schema.Universe, name string) error {
	rec := doc.FindModule(name)
	if rec == nil {
		return errs.New(errs.Internal, "module %q has no registry record", name)
	}
	mod := u.Module(name)
	if mod == nil || !mod.Implemented {
		return errs.New(errs.Internal, "module %q is not implemented", name)
	}

	mf, err := analysis.Analyze(u, mod)
	if err != nil {
		return err
	}

	rec.DataDeps = toDeps(&mf.Data)
	rec.OpDeps = nil
	for _, op := range mf.Ops {
		rec.OpDeps = append(rec.OpDeps, &registry.OpDeps{
			XPath: op.Path,
			In:    toDeps(&op.In),
			Out:   toDeps(&op.Out),
		})
	}

	for _, dep := range rec.DataDeps.Modules {
		target := doc.FindModule(dep)
		if target == nil {
			return errs.New(errs.Internal, "module %q depends on %q, which has no registry record", name, dep)
		}
		target.AddInverse(name)
	}
	return nil
}

// Rebuild wipes the dependency records of every module and rebuilds them
// from u. Running it twice yields the same document.
func Rebuild(doc *registry.Document, u *schema.Universe) error {
	for _, m := range doc.Modules {
		m.ClearDeps()
	}
	for _, m := range doc.Modules {
		if err := Build(doc, u, m.Name); err != nil {
			return err
		}
	}
	return nil
}

// CheckAll verifies that every module mod references is implemented in u or
// staged for installation. It returns the first module that is neither, or
// "" when all are satisfied.
func CheckAll(doc *registry.Document, u *schema.Universe, mod *schema.Module) (string, error) {
	deps, err := analysis.CheckModule(u, mod)
	if err != nil {
		return "", err
	}
	for _, dep := range deps {
		if u.Implemented(dep) || doc.FindStaged(dep) != nil {
			continue
		}
		return dep, nil
	}
	return "", nil
}

func toDeps(f *analysis.Facts) registry.Deps {
	var d registry.Deps
	for _, fact := range f.List() {
		switch fact.Kind {
		case analysis.FactModuleRef:
			d.Modules = append(d.Modules, fact.Module)
		case analysis.FactInstID:
			d.InstIDs = append(d.InstIDs, registry.InstID{XPath: fact.Path, DefaultModule: fact.Module})
		}
	}
	return d
}
