package schema

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ParseFile parses a module definition from a YAML file.
func ParseFile(path string) (*ModuleDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	return ParseDef(data)
}

// ParseDef parses and validates a module definition from YAML bytes.
func ParseDef(data []byte) (*ModuleDef, error) {
	var def ModuleDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	if err := Validate(&def); err != nil {
		return nil, fmt.Errorf("validate module %q: %w", def.Name, err)
	}

	return &def, nil
}

// Validate checks the structure of a module definition. Cross-references
// (imports, paths, augment targets) are checked at compile time.
func Validate(def *ModuleDef) error {
	var errs []string

	if def.Name == "" {
		errs = append(errs, "module name is required")
	} else if !isValidIdentifier(def.Name) {
		errs = append(errs, fmt.Sprintf("module name %q is not a valid identifier", def.Name))
	}

	if def.Revision != "" {
		if _, err := time.Parse("2006-01-02", def.Revision); err != nil {
			errs = append(errs, fmt.Sprintf("revision %q is not a date (YYYY-MM-DD)", def.Revision))
		}
	}

	errs = append(errs, checkUnique("import", def.Imports)...)
	for _, imp := range def.Imports {
		if imp == def.Name {
			errs = append(errs, fmt.Sprintf("module %q imports itself", def.Name))
		}
	}

	errs = append(errs, checkUnique("feature", def.Features)...)
	for _, f := range def.Features {
		if !isValidIdentifier(f) {
			errs = append(errs, fmt.Sprintf("feature name %q is not a valid identifier", f))
		}
	}

	for _, n := range def.Data {
		if n.Kind.IsOperation() && n.Kind != KindAction {
			errs = append(errs, fmt.Sprintf("%s %q is not allowed in data", n.Kind, n.Name))
			continue
		}
		if n.Kind == KindAction || n.Kind == KindCase {
			errs = append(errs, fmt.Sprintf("%s %q is not allowed at top level", n.Kind, n.Name))
			continue
		}
		errs = append(errs, validateNode(n, "")...)
	}
	for _, n := range def.RPCs {
		if n.Kind != KindRPC {
			errs = append(errs, fmt.Sprintf("rpcs: %s %q is not an rpc", n.Kind, n.Name))
			continue
		}
		errs = append(errs, validateNode(n, "")...)
	}
	for _, n := range def.Notifications {
		if n.Kind != KindNotification {
			errs = append(errs, fmt.Sprintf("notifications: %s %q is not a notification", n.Kind, n.Name))
			continue
		}
		errs = append(errs, validateNode(n, "")...)
	}
	for i, a := range def.Augments {
		if !strings.HasPrefix(a.Target, "/") {
			errs = append(errs, fmt.Sprintf("augment %d: target %q must be an absolute path", i, a.Target))
		}
		if len(a.Children) == 0 {
			errs = append(errs, fmt.Sprintf("augment %q has no children", a.Target))
		}
		for _, n := range a.Children {
			errs = append(errs, validateNode(n, a.Target)...)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func validateNode(n NodeDef, parent string) []string {
	var errs []string
	at := parent + "/" + n.Name

	if !isValidIdentifier(n.Name) {
		errs = append(errs, fmt.Sprintf("%s: name %q is not a valid identifier", at, n.Name))
	}

	typed := n.Kind == KindLeaf || n.Kind == KindLeafList
	switch {
	case typed && n.Type == nil:
		errs = append(errs, fmt.Sprintf("%s: %s requires a type", at, n.Kind))
	case !typed && n.Type != nil:
		errs = append(errs, fmt.Sprintf("%s: %s cannot have a type", at, n.Kind))
	case typed:
		errs = append(errs, validateType(at, *n.Type)...)
	}

	if len(n.Default) > 0 {
		if !typed {
			errs = append(errs, fmt.Sprintf("%s: %s cannot have a default", at, n.Kind))
		} else if n.Kind == KindLeaf && len(n.Default) > 1 {
			errs = append(errs, fmt.Sprintf("%s: leaf has more than one default", at))
		}
	}

	if n.Mandatory && n.Kind != KindLeaf && n.Kind != KindChoice && n.Kind != KindAnydata && n.Kind != KindAnyxml {
		errs = append(errs, fmt.Sprintf("%s: %s cannot be mandatory", at, n.Kind))
	}
	if n.Presence && n.Kind != KindContainer {
		errs = append(errs, fmt.Sprintf("%s: only containers can have presence", at))
	}

	if n.Kind == KindList {
		if len(n.Key) == 0 {
			errs = append(errs, fmt.Sprintf("%s: list requires a key", at))
		}
		for _, k := range n.Key {
			if !hasLeafChild(n.Children, k) {
				errs = append(errs, fmt.Sprintf("%s: key %q is not a leaf child", at, k))
			}
		}
	} else if len(n.Key) > 0 {
		errs = append(errs, fmt.Sprintf("%s: only lists can have a key", at))
	}

	hasIO := len(n.Input) > 0 || len(n.Output) > 0
	switch n.Kind {
	case KindLeaf, KindLeafList, KindAnydata, KindAnyxml:
		if len(n.Children) > 0 || hasIO {
			errs = append(errs, fmt.Sprintf("%s: %s cannot have children", at, n.Kind))
		}
	case KindRPC, KindAction:
		if len(n.Children) > 0 {
			errs = append(errs, fmt.Sprintf("%s: %s children belong in input or output", at, n.Kind))
		}
		for _, c := range append(append([]NodeDef{}, n.Input...), n.Output...) {
			if !c.Kind.IsData() && c.Kind != KindChoice {
				errs = append(errs, fmt.Sprintf("%s: %s %q is not allowed in %s", at, c.Kind, c.Name, n.Kind))
				continue
			}
			errs = append(errs, validateNode(c, at)...)
		}
		return errs
	case KindChoice:
		for _, c := range n.Children {
			if c.Kind != KindCase {
				errs = append(errs, fmt.Sprintf("%s: choice children must be cases, got %s %q", at, c.Kind, c.Name))
			}
		}
	}
	if hasIO && n.Kind != KindRPC && n.Kind != KindAction {
		errs = append(errs, fmt.Sprintf("%s: only rpcs and actions have input or output", at))
	}

	for _, c := range n.Children {
		if c.Kind == KindRPC {
			errs = append(errs, fmt.Sprintf("%s: rpc %q must be top level", at, c.Name))
			continue
		}
		if c.Kind == KindCase && n.Kind != KindChoice {
			errs = append(errs, fmt.Sprintf("%s: case %q outside a choice", at, c.Name))
			continue
		}
		if (c.Kind == KindAction || c.Kind == KindNotification) && n.Kind != KindContainer && n.Kind != KindList {
			errs = append(errs, fmt.Sprintf("%s: %s %q must be inside a container or list", at, c.Kind, c.Name))
			continue
		}
		errs = append(errs, validateNode(c, at)...)
	}

	return errs
}

func validateType(at string, t TypeDef) []string {
	if !t.Base.valid() {
		return []string{fmt.Sprintf("%s: unknown type %q", at, t.Base)}
	}
	var errs []string
	switch t.Base {
	case TypeLeafref:
		if t.Path == "" {
			errs = append(errs, fmt.Sprintf("%s: leafref requires a path", at))
		}
	case TypeEnum:
		if len(t.Enums) == 0 {
			errs = append(errs, fmt.Sprintf("%s: enumeration requires enums", at))
		}
	case TypeUnion:
		if len(t.Types) == 0 {
			errs = append(errs, fmt.Sprintf("%s: union requires member types", at))
		}
		for _, m := range t.Types {
			errs = append(errs, validateType(at, m)...)
		}
	}
	return errs
}

func hasLeafChild(children []NodeDef, name string) bool {
	for _, c := range children {
		if c.Kind == KindLeaf && c.Name == name {
			return true
		}
	}
	return false
}

func checkUnique(what string, names []string) []string {
	var errs []string
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			errs = append(errs, fmt.Sprintf("duplicate %s %q", what, n))
		}
		seen[n] = true
	}
	return errs
}

// isValidIdentifier accepts letters, digits, '_', '-' and '.', not starting
// with a digit, '-' or '.'.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else {
			if !isLetter(c) && !isDigit(c) && c != '_' && c != '-' && c != '.' {
				return false
			}
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
