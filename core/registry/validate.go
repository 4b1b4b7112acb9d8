package registry

import (
	"fmt"
	"strings"

	"github.com/artpar/modreg/core/errs"
)

// Validate checks the document invariants: module names are unique across
// installed and staged modules, each module carries at most one marker
// kind, and dependency lists hold no duplicates.
func (d *Document) Validate() error {
	var problems []string
	names := make(map[string]bool)

	for _, m := range d.Modules {
		if m.Name == "" {
			problems = append(problems, "module with empty name")
			continue
		}
		if names[m.Name] {
			problems = append(problems, fmt.Sprintf("duplicate module %q", m.Name))
		}
		names[m.Name] = true

		if ks := m.markers(); len(ks) > 1 {
			problems = append(problems, fmt.Sprintf("module %q has several schedule markers", m.Name))
		}
		problems = append(problems, dupes(m.Name, "enabled feature", m.EnabledFeatures)...)
		problems = append(problems, dupes(m.Name, "data dependency", m.DataDeps.Modules)...)
		problems = append(problems, dupes(m.Name, "inverse dependency", m.InverseDeps)...)

		var ops, changed []string
		for _, op := range m.OpDeps {
			ops = append(ops, op.XPath)
		}
		problems = append(problems, dupes(m.Name, "operation", ops)...)
		for _, fc := range m.ChangedFeatures {
			changed = append(changed, fc.Name)
			if fc.Change != ChangeEnable && fc.Change != ChangeDisable {
				problems = append(problems, fmt.Sprintf("module %q: feature %q has invalid change %q", m.Name, fc.Name, fc.Change))
			}
		}
		problems = append(problems, dupes(m.Name, "feature change", changed)...)
	}

	for _, s := range d.Installed {
		if s.Name == "" {
			problems = append(problems, "staged module with empty name")
			continue
		}
		if names[s.Name] {
			problems = append(problems, fmt.Sprintf("staged module %q is already present", s.Name))
		}
		names[s.Name] = true
		if s.ModuleYang == "" {
			problems = append(problems, fmt.Sprintf("staged module %q has no schema text", s.Name))
		}
	}

	if len(problems) > 0 {
		return errs.New(errs.Internal, "invalid registry:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func dupes(module, what string, list []string) []string {
	var out []string
	seen := make(map[string]bool, len(list))
	for _, x := range list {
		if seen[x] {
			out = append(out, fmt.Sprintf("module %q: duplicate %s %q", module, what, x))
		}
		seen[x] = true
	}
	return out
}
