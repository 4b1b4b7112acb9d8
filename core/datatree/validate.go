package datatree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/artpar/modreg/core/schema"
)

// Validate checks a forest against its universe: value types, list keys and
// their uniqueness, leaf-list uniqueness, mandatory nodes, choice exclusivity
// and leafref targets. When and must conditions are not evaluated.
// Mandatory top-level nodes of every implemented module must be present.
func Validate(u *schema.Universe, forest []*Node) error {
	v := &validator{u: u, forest: forest, targets: make(map[schema.NodeID]map[string]bool)}
	return v.siblings(forest, nil)
}

// ValidateModule is Validate with the top-level mandatory check limited to
// module. It suits data that holds the nodes of one module only.
func ValidateModule(u *schema.Universe, forest []*Node, module string) error {
	v := &validator{u: u, forest: forest, only: module, targets: make(map[schema.NodeID]map[string]bool)}
	return v.siblings(forest, nil)
}

type validator struct {
	u       *schema.Universe
	forest  []*Node
	only    string
	targets map[schema.NodeID]map[string]bool
}

func (v *validator) siblings(nodes []*Node, parent *Node) error {
	parentSchema := schema.NoNode
	if parent != nil {
		parentSchema = parent.Schema
	}

	present := make(map[schema.NodeID]bool)
	values := make(map[schema.NodeID]map[string]bool)
	cases := make(map[schema.NodeID]schema.NodeID)

	for _, n := range nodes {
		sn := v.u.Node(n.Schema)
		at := v.path(n)

		switch sn.Kind {
		case schema.KindLeaf, schema.KindContainer, schema.KindAnydata, schema.KindAnyxml:
			if present[n.Schema] {
				return fmt.Errorf("%s: duplicate instance", at)
			}
			present[n.Schema] = true
		case schema.KindLeafList, schema.KindList:
			present[n.Schema] = true
			id := n.Value
			if sn.Kind == schema.KindList {
				var err error
				if id, err = v.listKey(n, sn); err != nil {
					return fmt.Errorf("%s: %w", at, err)
				}
			}
			if values[n.Schema] == nil {
				values[n.Schema] = make(map[string]bool)
			}
			if values[n.Schema][id] {
				return fmt.Errorf("%s: duplicate entry %q", at, id)
			}
			values[n.Schema][id] = true
		}

		for choice, cs := range v.caseChain(n.Schema, parentSchema) {
			if prev, ok := cases[choice]; ok && prev != cs {
				return fmt.Errorf("%s: data from several cases of choice %q", at, v.u.Node(choice).Name)
			}
			cases[choice] = cs
		}

		if sn.Type != nil {
			if err := v.checkValue(n.Schema, *sn.Type, n.Value); err != nil {
				return fmt.Errorf("%s: %w", at, err)
			}
		}
		if err := v.siblings(n.Children, n); err != nil {
			return err
		}
	}

	if parent != nil {
		return v.mandatory(v.path(parent), v.u.Node(parent.Schema).Children, cases, present)
	}
	var top []schema.NodeID
	for _, m := range v.u.Modules() {
		if m.Implemented && (v.only == "" || m.Name == v.only) {
			top = append(top, m.Data...)
		}
	}
	return v.mandatory("/", top, cases, present)
}

// caseChain maps each choice between a node and its data parent to the case
// the node belongs to.
func (v *validator) caseChain(id, parent schema.NodeID) map[schema.NodeID]schema.NodeID {
	out := make(map[schema.NodeID]schema.NodeID)
	child := id
	for p := v.u.Node(id).Parent; p != schema.NoNode && p != parent; p = v.u.Node(p).Parent {
		if v.u.Node(p).Kind == schema.KindChoice {
			out[p] = child
		}
		child = p
	}
	return out
}

// mandatory checks the mandatory nodes among children of the node at path.
// Absent non-presence containers are checked as if present and empty.
func (v *validator) mandatory(at string, children []schema.NodeID, cases map[schema.NodeID]schema.NodeID, present map[schema.NodeID]bool) error {
	for _, c := range children {
		sn := v.u.Node(c)
		if v.u.Disabled(c) {
			continue
		}
		switch {
		case sn.Kind == schema.KindContainer && !sn.Presence && !present[c]:
			if err := v.mandatory(v.u.DataPath(c), sn.Children, nil, nil); err != nil {
				return err
			}
		case !sn.Mandatory:
		case sn.Kind == schema.KindChoice:
			if _, ok := cases[c]; !ok {
				return fmt.Errorf("%s: mandatory choice %q has no data", at, sn.Name)
			}
		default:
			if !present[c] {
				return fmt.Errorf("%s: missing mandatory %s %q", at, sn.Kind, sn.Name)
			}
		}
	}
	return nil
}

func (v *validator) listKey(n *Node, sn *schema.Node) (string, error) {
	parts := make([]string, 0, len(sn.Keys))
	for _, k := range sn.Keys {
		kn := n.Child(k)
		if kn == nil {
			return "", fmt.Errorf("missing key %q", k)
		}
		parts = append(parts, kn.Value)
	}
	return strings.Join(parts, ","), nil
}

func (v *validator) checkValue(id schema.NodeID, t schema.TypeDef, value string) error {
	switch t.Base {
	case schema.TypeString:
		return nil
	case schema.TypeInt:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return fmt.Errorf("invalid int %q", value)
		}
	case schema.TypeUint:
		if _, err := strconv.ParseUint(value, 10, 64); err != nil {
			return fmt.Errorf("invalid uint %q", value)
		}
	case schema.TypeDecimal:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("invalid decimal64 %q", value)
		}
	case schema.TypeBoolean:
		if value != "true" && value != "false" {
			return fmt.Errorf("invalid boolean %q", value)
		}
	case schema.TypeEmpty:
		if value != "" {
			return fmt.Errorf("empty leaf has value %q", value)
		}
	case schema.TypeEnum:
		for _, e := range t.Enums {
			if e == value {
				return nil
			}
		}
		return fmt.Errorf("invalid enumeration value %q", value)
	case schema.TypeInstanceID:
		if !strings.HasPrefix(value, "/") {
			return fmt.Errorf("invalid instance-identifier %q", value)
		}
	case schema.TypeLeafref:
		target, err := v.u.LeafrefTarget(id, t.Path)
		if err != nil {
			return err
		}
		if !v.targetValues(target)[value] {
			return fmt.Errorf("leafref value %q has no target instance", value)
		}
	case schema.TypeUnion:
		for _, m := range t.Types {
			if v.checkValue(id, m, value) == nil {
				return nil
			}
		}
		return fmt.Errorf("value %q matches no union member", value)
	default:
		return fmt.Errorf("unknown type %q", t.Base)
	}
	return nil
}

func (v *validator) targetValues(target schema.NodeID) map[string]bool {
	if set, ok := v.targets[target]; ok {
		return set
	}
	set := make(map[string]bool)
	var walk func([]*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			if n.Schema == target {
				set[n.Value] = true
			}
			walk(n.Children)
		}
	}
	walk(v.forest)
	v.targets[target] = set
	return set
}

func (v *validator) path(n *Node) string {
	return v.u.DataPath(n.Schema)
}
