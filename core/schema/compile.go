package schema

import (
	"fmt"
	"strings"
)

// compile creates the arena nodes of m's own trees. Augments are applied
// when the module is implemented.
func (u *Universe) compile(m *Module) error {
	seen := make(map[string]bool)
	top := func(defs []NodeDef, into *[]NodeID) error {
		for _, d := range defs {
			if seen[d.Name] {
				return fmt.Errorf("duplicate top-level node %q", d.Name)
			}
			seen[d.Name] = true
			id, err := u.compileNode(m, d, NoNode, nil, nil)
			if err != nil {
				return err
			}
			*into = append(*into, id)
		}
		return nil
	}
	if err := top(m.Def.Data, &m.Data); err != nil {
		return err
	}
	if err := top(m.Def.RPCs, &m.RPCs); err != nil {
		return err
	}
	return top(m.Def.Notifications, &m.Notifications)
}

func (u *Universe) compileNode(m *Module, d NodeDef, parent NodeID, when, ifFeature []string) (NodeID, error) {
	for _, cond := range append(append([]string{}, ifFeature...), d.IfFeature...) {
		if err := u.checkFeatureRef(m, cond); err != nil {
			return NoNode, fmt.Errorf("node %q: %w", d.Name, err)
		}
	}
	if parent != NoNode {
		for _, sib := range u.nodes[parent].Children {
			if s := &u.nodes[sib]; s.Name == d.Name && s.Module == m {
				return NoNode, fmt.Errorf("duplicate node %q under %s", d.Name, u.SchemaPath(parent))
			}
		}
	}

	id := NodeID(len(u.nodes))
	n := Node{
		ID:        id,
		Kind:      d.Kind,
		Name:      d.Name,
		Module:    m,
		Parent:    parent,
		Top:       id,
		Type:      d.Type,
		Defaults:  d.Default,
		Musts:     d.Must,
		IfFeature: append(append([]string{}, ifFeature...), d.IfFeature...),
		Mandatory: d.Mandatory,
		Presence:  d.Presence,
		Keys:      d.Key,
	}
	n.When = append(n.When, when...)
	if d.When != "" {
		n.When = append(n.When, d.When)
	}
	if parent != NoNode {
		n.Top = u.nodes[parent].Top
	}
	u.nodes = append(u.nodes, n)
	if parent != NoNode {
		u.nodes[parent].Children = append(u.nodes[parent].Children, id)
	}

	if d.Kind == KindRPC || d.Kind == KindAction {
		if err := u.compileSide(m, KindInput, d.Input, id); err != nil {
			return NoNode, err
		}
		if err := u.compileSide(m, KindOutput, d.Output, id); err != nil {
			return NoNode, err
		}
		return id, nil
	}
	for _, c := range d.Children {
		if _, err := u.compileNode(m, c, id, nil, nil); err != nil {
			return NoNode, err
		}
	}
	return id, nil
}

func (u *Universe) compileSide(m *Module, kind Kind, defs []NodeDef, op NodeID) error {
	id := NodeID(len(u.nodes))
	u.nodes = append(u.nodes, Node{
		ID:     id,
		Kind:   kind,
		Name:   kind.String(),
		Module: m,
		Parent: op,
		Top:    u.nodes[op].Top,
	})
	u.nodes[op].Children = append(u.nodes[op].Children, id)
	for _, c := range defs {
		if _, err := u.compileNode(m, c, id, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func (u *Universe) checkFeatureRef(m *Module, cond string) error {
	cond = strings.TrimSpace(strings.TrimPrefix(cond, "not "))
	prefix, name := splitQName(cond)
	fm, err := u.resolvePrefix(m, prefix)
	if err != nil {
		return err
	}
	if !fm.HasFeature(name) {
		return fmt.Errorf("if-feature %q: feature not declared by module %q", cond, fm.Name)
	}
	return nil
}

func (u *Universe) augment(m *Module, a AugmentDef) error {
	target, err := u.resolveSchemaPath(m, a.Target)
	if err != nil {
		return err
	}
	switch u.nodes[target].Kind {
	case KindContainer, KindList, KindChoice, KindCase, KindInput, KindOutput, KindNotification:
	default:
		return fmt.Errorf("cannot augment %s %s", u.nodes[target].Kind, a.Target)
	}
	if tm := u.nodes[target].Module; !tm.Implemented {
		if err := u.implement(tm); err != nil {
			return err
		}
	}
	var when []string
	if a.When != "" {
		when = []string{a.When}
	}
	for _, c := range a.Children {
		if u.nodes[target].Kind == KindChoice && c.Kind != KindCase {
			return fmt.Errorf("augment of choice %s must add cases", a.Target)
		}
		if _, err := u.compileNode(m, c, target, when, a.IfFeature); err != nil {
			return err
		}
	}
	return nil
}

// resolveSchemaPath resolves an absolute schema node path such as
// "/mod:a/b/input/c", where choice, case, input and output are explicit
// steps. An unprefixed first step belongs to module m, a later one to the
// module of the step before it.
func (u *Universe) resolveSchemaPath(m *Module, path string) (NodeID, error) {
	steps := strings.Split(strings.TrimPrefix(path, "/"), "/")
	cur := NoNode
	for _, step := range steps {
		prefix, name := splitQName(step)
		var sm *Module
		if prefix == "" && cur != NoNode {
			sm = u.nodes[cur].Module
		} else {
			var err error
			if sm, err = u.resolvePrefix(m, prefix); err != nil {
				return NoNode, err
			}
		}
		next := NoNode
		if cur == NoNode {
			for _, list := range [][]NodeID{sm.Data, sm.RPCs, sm.Notifications} {
				for _, id := range list {
					if u.nodes[id].Name == name {
						next = id
					}
				}
			}
		} else {
			for _, id := range u.nodes[cur].Children {
				if n := &u.nodes[id]; n.Name == name && (n.Module == sm || n.Kind == KindInput || n.Kind == KindOutput) {
					next = id
				}
			}
		}
		if next == NoNode {
			return NoNode, fmt.Errorf("schema node %q not found", path)
		}
		cur = next
	}
	return cur, nil
}

// checkExpressions resolves every when, must, leafref path and
// instance-identifier default defined by m.
func (u *Universe) checkExpressions(m *Module) error {
	for i := range u.nodes {
		n := &u.nodes[i]
		if n.Module != m {
			continue
		}
		id := n.ID
		exprs := append(append([]string{}, n.When...), n.Musts...)
		for _, e := range exprs {
			if _, err := u.Atomize(id, e, false); err != nil {
				return fmt.Errorf("%s: expression %q: %w", u.SchemaPath(id), e, err)
			}
		}
		if n.Type != nil {
			if err := u.checkType(id, *n.Type, n.Defaults); err != nil {
				return fmt.Errorf("%s: %w", u.SchemaPath(id), err)
			}
		}
	}
	return nil
}

func (u *Universe) checkType(id NodeID, t TypeDef, defaults []string) error {
	switch t.Base {
	case TypeLeafref:
		if _, err := u.LeafrefTarget(id, t.Path); err != nil {
			return err
		}
	case TypeInstanceID:
		for _, d := range defaults {
			if _, err := u.Atomize(id, d, false); err != nil {
				return fmt.Errorf("default %q: %w", d, err)
			}
		}
	case TypeUnion:
		for _, mt := range t.Types {
			if err := u.checkType(id, mt, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// LeafrefTarget resolves a leafref path to the leaf or leaf-list it points to.
func (u *Universe) LeafrefTarget(id NodeID, path string) (NodeID, error) {
	atoms, err := u.atomize(id, path, false)
	if err != nil {
		return NoNode, fmt.Errorf("leafref path %q: %w", path, err)
	}
	if atoms.last == NoNode {
		return NoNode, fmt.Errorf("leafref path %q selects no node", path)
	}
	if k := u.nodes[atoms.last].Kind; k != KindLeaf && k != KindLeafList {
		return NoNode, fmt.Errorf("leafref path %q targets a %s", path, k)
	}
	return atoms.last, nil
}
