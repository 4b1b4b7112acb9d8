// Package datatree parses, validates and prints instance data of a schema
// universe. The interchange form is JSON: top-level members and members
// whose module differs from their parent's are named "module:name", lists
// are arrays of objects and leaf-lists arrays of values.
package datatree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/modreg/core/schema"
)

// Node is one data node. A list entry and a leaf-list value are one node each.
type Node struct {
	Schema schema.NodeID
	Module string
	Name   string

	// Value is the canonical text of a leaf or leaf-list value.
	Value string

	// Raw holds the content of anydata and anyxml nodes.
	Raw json.RawMessage

	Children []*Node
}

// ParseOptions control Parse.
type ParseOptions struct {
	// Strict rejects members of modules that are not implemented in the
	// universe. Otherwise they are skipped.
	Strict bool
}

// Parse decodes a JSON document into a forest of top-level nodes. Empty
// input yields an empty forest.
func Parse(u *schema.Universe, data []byte, opts ParseOptions) ([]*Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	members, err := decodeObject(data)
	if err != nil {
		return nil, err
	}

	var forest []*Node
	for _, key := range sortedKeys(members) {
		module, name, ok := strings.Cut(key, ":")
		if !ok {
			return nil, fmt.Errorf("top-level member %q has no module prefix", key)
		}
		if !u.Implemented(module) {
			if opts.Strict {
				return nil, fmt.Errorf("member %q: unknown module %q", key, module)
			}
			continue
		}
		id := u.FindTop(module, name)
		if id == schema.NoNode || u.Disabled(id) {
			return nil, fmt.Errorf("member %q: no such data node", key)
		}
		nodes, err := parseMember(u, id, members[key], opts)
		if err != nil {
			return nil, fmt.Errorf("/%s%w", key, err)
		}
		forest = append(forest, nodes...)
	}
	return forest, nil
}

func parseMember(u *schema.Universe, id schema.NodeID, raw json.RawMessage, opts ParseOptions) ([]*Node, error) {
	sn := u.Node(id)
	newNode := func() *Node {
		return &Node{Schema: id, Module: sn.Module.Name, Name: sn.Name}
	}

	switch sn.Kind {
	case schema.KindContainer:
		n := newNode()
		if err := parseChildren(u, n, raw, opts); err != nil {
			return nil, err
		}
		return []*Node{n}, nil
	case schema.KindList:
		var entries []json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf(": list expects an array: %w", err)
		}
		out := make([]*Node, 0, len(entries))
		for _, e := range entries {
			n := newNode()
			if err := parseChildren(u, n, e, opts); err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case schema.KindLeaf:
		v, err := scalar(raw)
		if err != nil {
			return nil, err
		}
		n := newNode()
		n.Value = v
		return []*Node{n}, nil
	case schema.KindLeafList:
		var values []json.RawMessage
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf(": leaf-list expects an array: %w", err)
		}
		out := make([]*Node, 0, len(values))
		for _, rv := range values {
			v, err := scalar(rv)
			if err != nil {
				return nil, err
			}
			n := newNode()
			n.Value = v
			out = append(out, n)
		}
		return out, nil
	case schema.KindAnydata, schema.KindAnyxml:
		n := newNode()
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, fmt.Errorf(": %w", err)
		}
		n.Raw = buf.Bytes()
		return []*Node{n}, nil
	default:
		return nil, fmt.Errorf(": %s is not a data node", sn.Kind)
	}
}

func parseChildren(u *schema.Universe, n *Node, raw json.RawMessage, opts ParseOptions) error {
	members, err := decodeObject(raw)
	if err != nil {
		return fmt.Errorf(": %w", err)
	}
	for _, key := range sortedKeys(members) {
		module, name, ok := strings.Cut(key, ":")
		if !ok {
			module, name = n.Module, key
		}
		if !u.Implemented(module) && module != n.Module {
			if opts.Strict {
				return fmt.Errorf("/%s: unknown module %q", key, module)
			}
			continue
		}
		id := u.FindDataChild(n.Schema, module, name)
		if id == schema.NoNode || u.Disabled(id) {
			return fmt.Errorf("/%s: no such data node", key)
		}
		children, err := parseMember(u, id, members[key], opts)
		if err != nil {
			return fmt.Errorf("/%s%w", key, err)
		}
		n.Children = append(n.Children, children...)
	}
	return nil
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, fmt.Errorf("expected an object: %w", err)
	}
	return members, nil
}

// scalar returns the canonical text of a JSON leaf value. The empty type is
// encoded as [null].
func scalar(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", fmt.Errorf(": missing value")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf(": %w", err)
		}
		return s, nil
	case '[':
		if string(bytes.Join(bytes.Fields(raw), nil)) == "[null]" {
			return "", nil
		}
		return "", fmt.Errorf(": unexpected array value")
	case '{':
		return "", fmt.Errorf(": unexpected object value")
	case 'n':
		return "", fmt.Errorf(": unexpected null value")
	default:
		return string(raw), nil
	}
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SplitByModule separates the top-level nodes of module from the rest.
func SplitByModule(forest []*Node, module string) (mine, rest []*Node) {
	for _, n := range forest {
		if n.Module == module {
			mine = append(mine, n)
		} else {
			rest = append(rest, n)
		}
	}
	return mine, rest
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	c := *n
	c.Raw = append(json.RawMessage(nil), n.Raw...)
	c.Children = make([]*Node, len(n.Children))
	for i, ch := range n.Children {
		c.Children[i] = ch.Clone()
	}
	return &c
}

// Child returns the first child with the given name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}
