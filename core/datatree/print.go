package datatree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/artpar/modreg/core/schema"
)

// Print encodes a forest as a JSON document. Sibling instances of the same
// schema node are grouped and groups follow schema order, so the output
// does not depend on input order.
func Print(u *schema.Universe, forest []*Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := printMembers(&buf, u, forest, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func printMembers(buf *bytes.Buffer, u *schema.Universe, nodes []*Node, parentModule string) error {
	groups := make(map[schema.NodeID][]*Node)
	var order []schema.NodeID
	for _, n := range nodes {
		if _, ok := groups[n.Schema]; !ok {
			order = append(order, n.Schema)
		}
		groups[n.Schema] = append(groups[n.Schema], n)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	buf.WriteByte('{')
	for i, id := range order {
		if i > 0 {
			buf.WriteByte(',')
		}
		group := groups[id]
		sn := u.Node(id)
		name := sn.Name
		if sn.Module.Name != parentModule {
			name = sn.Module.Name + ":" + name
		}
		writeString(buf, name)
		buf.WriteByte(':')

		var err error
		switch sn.Kind {
		case schema.KindList, schema.KindLeafList:
			buf.WriteByte('[')
			for j, n := range group {
				if j > 0 {
					buf.WriteByte(',')
				}
				if err = printValue(buf, u, sn, n); err != nil {
					return err
				}
			}
			buf.WriteByte(']')
		default:
			err = printValue(buf, u, sn, group[0])
		}
		if err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func printValue(buf *bytes.Buffer, u *schema.Universe, sn *schema.Node, n *Node) error {
	switch sn.Kind {
	case schema.KindContainer, schema.KindList:
		return printMembers(buf, u, n.Children, sn.Module.Name)
	case schema.KindLeaf, schema.KindLeafList:
		writeScalar(buf, *sn.Type, n.Value)
		return nil
	case schema.KindAnydata, schema.KindAnyxml:
		if len(n.Raw) == 0 {
			buf.WriteString("{}")
			return nil
		}
		buf.Write(n.Raw)
		return nil
	default:
		return fmt.Errorf("%s: cannot print %s", u.DataPath(sn.ID), sn.Kind)
	}
}

func writeScalar(buf *bytes.Buffer, t schema.TypeDef, v string) {
	if bare(t, v) {
		buf.WriteString(v)
		return
	}
	if t.Base == schema.TypeEmpty {
		buf.WriteString("[null]")
		return
	}
	writeString(buf, v)
}

// bare reports whether v is written as a JSON number or boolean.
func bare(t schema.TypeDef, v string) bool {
	switch t.Base {
	case schema.TypeInt:
		_, err := strconv.ParseInt(v, 10, 64)
		return err == nil
	case schema.TypeUint:
		_, err := strconv.ParseUint(v, 10, 64)
		return err == nil
	case schema.TypeBoolean:
		return v == "true" || v == "false"
	case schema.TypeUnion:
		for _, m := range t.Types {
			if bare(m, v) {
				return true
			}
		}
	}
	return false
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
