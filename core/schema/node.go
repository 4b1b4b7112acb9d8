package schema

// Kind is the kind of a schema node.
type Kind uint8

const (
	KindLeaf Kind = iota + 1
	KindLeafList
	KindContainer
	KindList
	KindChoice
	KindCase
	KindAnydata
	KindAnyxml
	KindRPC
	KindAction
	KindNotification
	KindInput
	KindOutput
)

var kindNames = map[Kind]string{
	KindLeaf:         "leaf",
	KindLeafList:     "leaf-list",
	KindContainer:    "container",
	KindList:         "list",
	KindChoice:       "choice",
	KindCase:         "case",
	KindAnydata:      "anydata",
	KindAnyxml:       "anyxml",
	KindRPC:          "rpc",
	KindAction:       "action",
	KindNotification: "notification",
	KindInput:        "input",
	KindOutput:       "output",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsOperation reports whether k is an rpc, action or notification.
func (k Kind) IsOperation() bool {
	return k == KindRPC || k == KindAction || k == KindNotification
}

// IsData reports whether nodes of kind k appear in data trees.
func (k Kind) IsData() bool {
	switch k {
	case KindLeaf, KindLeafList, KindContainer, KindList, KindAnydata, KindAnyxml:
		return true
	}
	return false
}

// BaseType names a built-in leaf type.
type BaseType string

const (
	TypeString     BaseType = "string"
	TypeInt        BaseType = "int"
	TypeUint       BaseType = "uint"
	TypeBoolean    BaseType = "boolean"
	TypeDecimal    BaseType = "decimal64"
	TypeEnum       BaseType = "enumeration"
	TypeEmpty      BaseType = "empty"
	TypeInstanceID BaseType = "instance-identifier"
	TypeLeafref    BaseType = "leafref"
	TypeUnion      BaseType = "union"
)

func (b BaseType) valid() bool {
	switch b {
	case TypeString, TypeInt, TypeUint, TypeBoolean, TypeDecimal, TypeEnum,
		TypeEmpty, TypeInstanceID, TypeLeafref, TypeUnion:
		return true
	}
	return false
}

// NodeID indexes a node in its universe's arena.
type NodeID int32

// NoNode is the zero reference.
const NoNode NodeID = -1

// Node is a compiled schema node. Tree links are arena indices.
type Node struct {
	ID   NodeID
	Kind Kind
	Name string

	// Module is the module that defines the node. For augmented nodes this
	// is the augmenting module, not the module of the tree they live in.
	Module *Module

	Parent   NodeID
	Top      NodeID
	Children []NodeID

	Type      *TypeDef
	Defaults  []string
	When      []string
	Musts     []string
	IfFeature []string
	Mandatory bool
	Presence  bool
	Keys      []string
}

// HasParent reports whether the node is below the top level.
func (n *Node) HasParent() bool { return n.Parent != NoNode }
