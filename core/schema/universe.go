package schema

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/artpar/modreg/core/errs"
)

// Source resolves module names to schema text.
type Source interface {
	// Find returns the schema text of a module. An empty revision selects
	// the newest revision available.
	Find(name, revision string) ([]byte, error)
}

// Module is a module loaded into a universe.
type Module struct {
	Name     string
	Revision string
	Def      *ModuleDef

	// Imports are the directly imported modules, in declaration order.
	Imports []*Module

	// Implemented modules contribute data trees; imported-only modules
	// provide nodes and features for references but hold no data.
	Implemented bool

	Data          []NodeID
	RPCs          []NodeID
	Notifications []NodeID

	enabled map[string]bool
}

// HasFeature reports whether the module declares feature f.
func (m *Module) HasFeature(f string) bool {
	for _, x := range m.Def.Features {
		if x == f {
			return true
		}
	}
	return false
}

// FeatureEnabled reports whether feature f is currently enabled.
func (m *Module) FeatureEnabled(f string) bool { return m.enabled[f] }

// EnabledFeatures returns the enabled features in declaration order.
func (m *Module) EnabledFeatures() []string {
	var out []string
	for _, f := range m.Def.Features {
		if m.enabled[f] {
			out = append(out, f)
		}
	}
	return out
}

// ImportsModule reports whether the module directly imports name.
func (m *Module) ImportsModule(name string) bool {
	for _, imp := range m.Imports {
		if imp.Name == name {
			return true
		}
	}
	return false
}

// Universe is a set of compiled modules sharing one node arena.
// A universe is not safe for concurrent use, and must be discarded after
// Parse or Load returns an error.
type Universe struct {
	source  Source
	modules []*Module
	byName  map[string]*Module
	nodes   []Node
	loading map[string]bool
}

// NewUniverse creates an empty universe that resolves imports through src.
// src may be nil when every import is parsed explicitly first.
func NewUniverse(src Source) *Universe {
	return &Universe{
		source:  src,
		byName:  make(map[string]*Module),
		loading: make(map[string]bool),
	}
}

// Parse compiles schema text and marks the module implemented. Imported
// modules are loaded through the source and stay imported-only.
func (u *Universe) Parse(text []byte) (*Module, error) {
	def, err := ParseDef(text)
	if err != nil {
		return nil, errs.Wrap(errs.OperationFailed, err, "parse module")
	}
	return u.add(def, true)
}

// Load loads a module through the source and implements it. A module
// already present is implemented in place.
func (u *Universe) Load(name, revision string) (*Module, error) {
	if m := u.byName[name]; m != nil {
		if revision != "" && m.Revision != revision {
			return nil, errs.New(errs.OperationFailed, "module %q is loaded in revision %q, not %q", name, m.Revision, revision)
		}
		if err := u.implement(m); err != nil {
			return nil, err
		}
		return m, nil
	}
	def, err := u.find(name, revision)
	if err != nil {
		return nil, err
	}
	return u.add(def, true)
}

// Modules returns the loaded modules in load order.
func (u *Universe) Modules() []*Module { return u.modules }

// Module returns the loaded module called name, or nil.
func (u *Universe) Module(name string) *Module { return u.byName[name] }

// Implemented reports whether module name is loaded and implemented.
func (u *Universe) Implemented(name string) bool {
	m := u.byName[name]
	return m != nil && m.Implemented
}

// Node returns the node with the given ID. The pointer is valid until the
// next Parse or Load.
func (u *Universe) Node(id NodeID) *Node { return &u.nodes[id] }

// EnableFeature enables a feature of a loaded module.
func (u *Universe) EnableFeature(module, feature string) error {
	return u.setFeature(module, feature, true)
}

// DisableFeature disables a feature of a loaded module.
func (u *Universe) DisableFeature(module, feature string) error {
	return u.setFeature(module, feature, false)
}

func (u *Universe) setFeature(module, feature string, on bool) error {
	m := u.byName[module]
	if m == nil {
		return errs.New(errs.NotFound, "module %q is not loaded", module)
	}
	if !m.HasFeature(feature) {
		return errs.New(errs.NotFound, "feature %q not found in module %q", feature, module)
	}
	m.enabled[feature] = on
	return nil
}

// Disabled reports whether a node or any of its ancestors carries an
// unsatisfied if-feature condition.
func (u *Universe) Disabled(id NodeID) bool {
	for id != NoNode {
		n := &u.nodes[id]
		for _, cond := range n.IfFeature {
			if !u.featureSatisfied(n.Module, cond) {
				return true
			}
		}
		id = n.Parent
	}
	return false
}

// Print serializes a module back to canonical schema text.
func (u *Universe) Print(m *Module) ([]byte, error) {
	out, err := yaml.Marshal(m.Def)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "print module %q", m.Name)
	}
	return out, nil
}

func (u *Universe) find(name, revision string) (*ModuleDef, error) {
	if u.source == nil {
		return nil, errs.New(errs.NotFound, "no schema source to load module %q", name)
	}
	text, err := u.source.Find(name, revision)
	if err != nil {
		return nil, errs.Wrap(errs.KindOf(err), err, "find module %q", name)
	}
	def, err := ParseDef(text)
	if err != nil {
		return nil, errs.Wrap(errs.OperationFailed, err, "parse module %q", name)
	}
	if def.Name != name {
		return nil, errs.New(errs.OperationFailed, "schema text for %q declares module %q", name, def.Name)
	}
	if revision != "" && def.Revision != revision {
		return nil, errs.New(errs.OperationFailed, "schema text for %q has revision %q, not %q", name, def.Revision, revision)
	}
	return def, nil
}

func (u *Universe) add(def *ModuleDef, implement bool) (*Module, error) {
	if m := u.byName[def.Name]; m != nil {
		if m.Revision != def.Revision {
			return nil, errs.New(errs.OperationFailed, "module %q revision %q conflicts with loaded revision %q",
				def.Name, def.Revision, m.Revision)
		}
		if implement {
			if err := u.implement(m); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
	if u.loading[def.Name] {
		return nil, errs.New(errs.OperationFailed, "import cycle through module %q", def.Name)
	}
	u.loading[def.Name] = true
	defer delete(u.loading, def.Name)

	m := &Module{
		Name:     def.Name,
		Revision: def.Revision,
		Def:      def,
		enabled:  make(map[string]bool),
	}
	for _, name := range def.Imports {
		imp := u.byName[name]
		if imp == nil {
			idef, err := u.find(name, "")
			if err != nil {
				return nil, fmt.Errorf("module %q: import: %w", def.Name, err)
			}
			if imp, err = u.add(idef, false); err != nil {
				return nil, err
			}
		}
		m.Imports = append(m.Imports, imp)
	}

	if err := u.compile(m); err != nil {
		return nil, errs.Wrap(errs.OperationFailed, err, "compile module %q", m.Name)
	}
	u.modules = append(u.modules, m)
	u.byName[m.Name] = m

	if implement {
		if err := u.implement(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// implement marks m implemented, applies its augments and checks every
// expression it defines.
func (u *Universe) implement(m *Module) error {
	if m.Implemented {
		return nil
	}
	m.Implemented = true
	for _, a := range m.Def.Augments {
		if err := u.augment(m, a); err != nil {
			return errs.Wrap(errs.OperationFailed, err, "module %q: augment %q", m.Name, a.Target)
		}
	}
	if err := u.checkExpressions(m); err != nil {
		return errs.Wrap(errs.OperationFailed, err, "module %q", m.Name)
	}
	return nil
}

// resolvePrefix maps a prefix used inside module m to a module: m itself or
// one of its imports.
func (u *Universe) resolvePrefix(m *Module, prefix string) (*Module, error) {
	if prefix == "" || prefix == m.Name {
		return m, nil
	}
	for _, imp := range m.Imports {
		if imp.Name == prefix {
			return imp, nil
		}
	}
	return nil, fmt.Errorf("module %q is not imported by %q", prefix, m.Name)
}

// featureSatisfied evaluates an if-feature condition of the form
// "[not ]feature" or "[not ]module:feature".
func (u *Universe) featureSatisfied(m *Module, cond string) bool {
	neg := false
	if rest, ok := strings.CutPrefix(cond, "not "); ok {
		neg = true
		cond = strings.TrimSpace(rest)
	}
	prefix, name := splitQName(cond)
	fm, err := u.resolvePrefix(m, prefix)
	if err != nil {
		return false
	}
	return fm.enabled[name] != neg
}

func splitQName(s string) (prefix, name string) {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}
