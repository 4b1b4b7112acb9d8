package schema

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModuleDef is the uncompiled form of a module's schema text.
type ModuleDef struct {
	// Name is the module name, unique within a universe.
	Name string `yaml:"module"`

	// Revision is the module revision date (YYYY-MM-DD), optional.
	Revision string `yaml:"revision,omitempty"`

	Namespace   string `yaml:"namespace,omitempty"`
	Description string `yaml:"description,omitempty"`

	// Imports lists the modules whose nodes, types or features this one references.
	Imports StringList `yaml:"imports,omitempty"`

	// Features lists the features this module declares.
	Features StringList `yaml:"features,omitempty"`

	Data          []NodeDef    `yaml:"data,omitempty"`
	RPCs          []NodeDef    `yaml:"rpcs,omitempty"`
	Notifications []NodeDef    `yaml:"notifications,omitempty"`
	Augments      []AugmentDef `yaml:"augments,omitempty"`
}

// AugmentDef adds children to a node of another module.
type AugmentDef struct {
	// Target is an absolute schema path, e.g. "/acme-types:servers".
	Target    string     `yaml:"target"`
	When      string     `yaml:"when,omitempty"`
	IfFeature StringList `yaml:"if-feature,omitempty"`
	Children  []NodeDef  `yaml:"children,omitempty"`
}

// NodeDef is one schema statement. Its kind is given by the keyword that
// carries its name ("leaf: hostname", "container: system").
type NodeDef struct {
	Kind        Kind
	Name        string
	Description string
	Type        *TypeDef
	Default     StringList
	When        string
	Must        StringList
	IfFeature   StringList
	Mandatory   bool
	Presence    bool
	Key         StringList
	Children    []NodeDef
	Input       []NodeDef
	Output      []NodeDef
}

type nodeYAML struct {
	Leaf         string `yaml:"leaf,omitempty"`
	LeafList     string `yaml:"leaf-list,omitempty"`
	Container    string `yaml:"container,omitempty"`
	List         string `yaml:"list,omitempty"`
	Choice       string `yaml:"choice,omitempty"`
	Case         string `yaml:"case,omitempty"`
	Anydata      string `yaml:"anydata,omitempty"`
	Anyxml       string `yaml:"anyxml,omitempty"`
	RPC          string `yaml:"rpc,omitempty"`
	Action       string `yaml:"action,omitempty"`
	Notification string `yaml:"notification,omitempty"`

	Description string     `yaml:"description,omitempty"`
	Type        *TypeDef   `yaml:"type,omitempty"`
	Default     StringList `yaml:"default,omitempty"`
	When        string     `yaml:"when,omitempty"`
	Must        StringList `yaml:"must,omitempty"`
	IfFeature   StringList `yaml:"if-feature,omitempty"`
	Mandatory   bool       `yaml:"mandatory,omitempty"`
	Presence    bool       `yaml:"presence,omitempty"`
	Key         StringList `yaml:"key,omitempty"`
	Children    []NodeDef  `yaml:"children,omitempty"`
	Input       []NodeDef  `yaml:"input,omitempty"`
	Output      []NodeDef  `yaml:"output,omitempty"`
}

func (y *nodeYAML) keywords() []struct {
	kind Kind
	name *string
} {
	return []struct {
		kind Kind
		name *string
	}{
		{KindLeaf, &y.Leaf},
		{KindLeafList, &y.LeafList},
		{KindContainer, &y.Container},
		{KindList, &y.List},
		{KindChoice, &y.Choice},
		{KindCase, &y.Case},
		{KindAnydata, &y.Anydata},
		{KindAnyxml, &y.Anyxml},
		{KindRPC, &y.RPC},
		{KindAction, &y.Action},
		{KindNotification, &y.Notification},
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *NodeDef) UnmarshalYAML(n *yaml.Node) error {
	var y nodeYAML
	if err := n.Decode(&y); err != nil {
		return err
	}

	var found []string
	for _, kw := range y.keywords() {
		if *kw.name != "" {
			d.Kind = kw.kind
			d.Name = *kw.name
			found = append(found, kw.kind.String())
		}
	}
	if len(found) != 1 {
		if len(found) == 0 {
			return fmt.Errorf("line %d: node has no kind keyword", n.Line)
		}
		return fmt.Errorf("line %d: node has several kind keywords: %s", n.Line, strings.Join(found, ", "))
	}

	d.Description = y.Description
	d.Type = y.Type
	d.Default = y.Default
	d.When = y.When
	d.Must = y.Must
	d.IfFeature = y.IfFeature
	d.Mandatory = y.Mandatory
	d.Presence = y.Presence
	d.Key = y.Key
	d.Children = y.Children
	d.Input = y.Input
	d.Output = y.Output
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d NodeDef) MarshalYAML() (any, error) {
	y := nodeYAML{
		Description: d.Description,
		Type:        d.Type,
		Default:     d.Default,
		When:        d.When,
		Must:        d.Must,
		IfFeature:   d.IfFeature,
		Mandatory:   d.Mandatory,
		Presence:    d.Presence,
		Key:         d.Key,
		Children:    d.Children,
		Input:       d.Input,
		Output:      d.Output,
	}
	for _, kw := range y.keywords() {
		if kw.kind == d.Kind {
			*kw.name = d.Name
			return y, nil
		}
	}
	return nil, fmt.Errorf("node %q has invalid kind %d", d.Name, d.Kind)
}

// TypeDef is a leaf type. A bare scalar ("type: string") names the base type.
type TypeDef struct {
	Base  BaseType  `yaml:"base"`
	Path  string    `yaml:"path,omitempty"`
	Enums []string  `yaml:"enums,omitempty"`
	Types []TypeDef `yaml:"types,omitempty"`
}

type plainTypeDef TypeDef

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *TypeDef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		t.Base = BaseType(n.Value)
		return nil
	}
	return n.Decode((*plainTypeDef)(t))
}

// MarshalYAML implements yaml.Marshaler.
func (t TypeDef) MarshalYAML() (any, error) {
	if t.Path == "" && len(t.Enums) == 0 && len(t.Types) == 0 {
		return string(t.Base), nil
	}
	return plainTypeDef(t), nil
}

// StringList accepts either a scalar or a sequence.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*l = StringList{n.Value}
		return nil
	}
	var s []string
	if err := n.Decode(&s); err != nil {
		return err
	}
	*l = s
	return nil
}
