// Package analysis derives cross-module dependency facts from compiled
// schema trees.
package analysis

import "github.com/artpar/modreg/core/schema"

// FactKind distinguishes dependency facts.
type FactKind uint8

const (
	// FactModuleRef records that data references another module.
	FactModuleRef FactKind = iota + 1
	// FactInstID records an instance-identifier node.
	FactInstID
)

// Fact is one dependency fact.
type Fact struct {
	Kind FactKind

	// Module is the referenced module of a module-ref fact, or the
	// default-target module of an inst-id fact (possibly empty).
	Module string

	// Path is the data path of an inst-id node.
	Path string
}

// Facts is an insertion-ordered, duplicate-free set of facts.
type Facts struct {
	list []Fact
}

// AddRef adds a module-ref fact.
func (f *Facts) AddRef(module string) {
	f.add(Fact{Kind: FactModuleRef, Module: module})
}

// AddInstID adds an inst-id fact.
func (f *Facts) AddInstID(path, defaultModule string) {
	f.add(Fact{Kind: FactInstID, Path: path, Module: defaultModule})
}

func (f *Facts) add(fact Fact) {
	for _, x := range f.list {
		if x == fact {
			return
		}
	}
	f.list = append(f.list, fact)
}

// List returns the facts in insertion order.
func (f *Facts) List() []Fact { return f.list }

// Len returns the number of facts.
func (f *Facts) Len() int { return len(f.list) }

// Modules returns the referenced modules of module-ref facts.
func (f *Facts) Modules() []string {
	var out []string
	for _, x := range f.list {
		if x.Kind == FactModuleRef {
			out = append(out, x.Module)
		}
	}
	return out
}

// InstIDs returns the inst-id facts.
func (f *Facts) InstIDs() []Fact {
	var out []Fact
	for _, x := range f.list {
		if x.Kind == FactInstID {
			out = append(out, x)
		}
	}
	return out
}

// OpFacts are the dependency facts of one rpc, action or notification.
// Notifications only have In.
type OpFacts struct {
	Path string
	Kind schema.Kind
	In   Facts
	Out  Facts
}

// ModuleFacts are the facts of a whole module.
type ModuleFacts struct {
	Data Facts
	Ops  []*OpFacts
}

func (m *ModuleFacts) op(path string) *OpFacts {
	for _, o := range m.Ops {
		if o.Path == path {
			return o
		}
	}
	return nil
}
