package datatree

import "github.com/artpar/modreg/core/schema"

// Merge merges src into dst and returns the result. Containers and list
// entries with equal keys are merged recursively, leaf values from src
// overwrite, and everything else is copied in. src is not modified.
func Merge(u *schema.Universe, dst, src []*Node) []*Node {
	for _, s := range src {
		dst = mergeNode(u, dst, s)
	}
	return dst
}

func mergeNode(u *schema.Universe, siblings []*Node, s *Node) []*Node {
	sn := u.Node(s.Schema)
	for _, d := range siblings {
		if d.Schema != s.Schema || !sameInstance(sn, d, s) {
			continue
		}
		switch sn.Kind {
		case schema.KindLeaf:
			d.Value = s.Value
		case schema.KindAnydata, schema.KindAnyxml:
			d.Raw = append(d.Raw[:0:0], s.Raw...)
		case schema.KindContainer, schema.KindList:
			d.Children = Merge(u, d.Children, s.Children)
		}
		return siblings
	}
	return append(siblings, s.Clone())
}

func sameInstance(sn *schema.Node, a, b *Node) bool {
	switch sn.Kind {
	case schema.KindLeafList:
		return a.Value == b.Value
	case schema.KindList:
		for _, k := range sn.Keys {
			ak, bk := a.Child(k), b.Child(k)
			if ak == nil || bk == nil || ak.Value != bk.Value {
				return false
			}
		}
		return true
	default:
		return true
	}
}
