package schema

import "strings"

// DataParent returns the nearest ancestor that appears in data trees,
// skipping choice, case, input and output. Operations count as data parents.
func (u *Universe) DataParent(id NodeID) NodeID {
	p := u.nodes[id].Parent
	for p != NoNode {
		switch u.nodes[p].Kind {
		case KindChoice, KindCase, KindInput, KindOutput:
			p = u.nodes[p].Parent
		default:
			return p
		}
	}
	return NoNode
}

// DataChildren returns the data-level children of a node: children of
// choices and cases are flattened, and an rpc or action yields the children
// of its input, or of its output when output is set.
func (u *Universe) DataChildren(id NodeID, output bool) []NodeID {
	var out []NodeID
	var walk func(NodeID)
	walk = func(p NodeID) {
		for _, c := range u.nodes[p].Children {
			switch u.nodes[c].Kind {
			case KindChoice, KindCase:
				walk(c)
			case KindInput:
				if !output {
					walk(c)
				}
			case KindOutput:
				if output {
					walk(c)
				}
			default:
				out = append(out, c)
			}
		}
	}
	walk(id)
	return out
}

// TopData returns the top-level data nodes of every loaded module.
func (u *Universe) TopData() []NodeID {
	var out []NodeID
	for _, m := range u.modules {
		out = append(out, m.Data...)
	}
	return out
}

// FindTop returns the top-level data node called name in module, or NoNode.
func (u *Universe) FindTop(module, name string) NodeID {
	m := u.byName[module]
	if m == nil {
		return NoNode
	}
	for _, id := range m.Data {
		if u.nodes[id].Name == name {
			return id
		}
	}
	return NoNode
}

// FindDataChild returns the data-level child of parent matching module and
// name, or NoNode.
func (u *Universe) FindDataChild(parent NodeID, module, name string) NodeID {
	if parent == NoNode {
		return u.FindTop(module, name)
	}
	for _, c := range u.DataChildren(parent, false) {
		if n := &u.nodes[c]; n.Name == name && n.Module.Name == module {
			return c
		}
	}
	return NoNode
}

// InOutput reports whether the node lies in the output side of an operation.
func (u *Universe) InOutput(id NodeID) bool {
	for id != NoNode {
		switch u.nodes[id].Kind {
		case KindOutput:
			return true
		case KindInput:
			return false
		}
		id = u.nodes[id].Parent
	}
	return false
}

// DataPath returns the data path of a node, e.g. "/acme-system:system/server/name".
// The module name prefixes the first step and every step whose module differs
// from its data parent's.
func (u *Universe) DataPath(id NodeID) string {
	var steps []NodeID
	for n := id; n != NoNode; n = u.DataParent(n) {
		steps = append(steps, n)
	}
	return u.joinPath(steps)
}

// SchemaPath is like DataPath but keeps choice, case, input and output steps.
func (u *Universe) SchemaPath(id NodeID) string {
	var steps []NodeID
	for n := id; n != NoNode; n = u.nodes[n].Parent {
		steps = append(steps, n)
	}
	return u.joinPath(steps)
}

func (u *Universe) joinPath(rev []NodeID) string {
	var b strings.Builder
	var prev *Module
	for i := len(rev) - 1; i >= 0; i-- {
		n := &u.nodes[rev[i]]
		b.WriteByte('/')
		if n.Module != prev {
			b.WriteString(n.Module.Name)
			b.WriteByte(':')
			prev = n.Module
		}
		b.WriteString(n.Name)
	}
	return b.String()
}
