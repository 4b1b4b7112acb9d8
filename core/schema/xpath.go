package schema

import (
	"fmt"
	"strings"
)

// Atomize resolves every location path in expr, evaluated with ctx as the
// context node, to the schema nodes it visits. With output set, steps into
// an rpc or action descend into its output side. Atoms are unique and in
// order of first visit.
func (u *Universe) Atomize(ctx NodeID, expr string, output bool) ([]NodeID, error) {
	r, err := u.atomize(ctx, expr, output)
	if err != nil {
		return nil, err
	}
	return r.atoms, nil
}

type atomized struct {
	atoms []NodeID
	// last is the first node selected by the outermost path, or NoNode.
	last NodeID
}

func (u *Universe) atomize(ctx NodeID, expr string, output bool) (atomized, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return atomized{}, err
	}
	a := &atomizer{
		u:      u,
		ctx:    ctx,
		mod:    u.nodes[ctx].Module,
		output: output || u.InOutput(ctx),
		toks:   toks,
		seen:   make(map[NodeID]bool),
	}
	set, err := a.expr([]NodeID{ctx})
	if err != nil {
		return atomized{}, err
	}
	if a.peek().kind != tokEOF {
		return atomized{}, fmt.Errorf("unexpected %q", a.peek().val)
	}
	r := atomized{atoms: a.atoms, last: NoNode}
	for _, id := range set {
		if id != NoNode {
			r.last = id
			break
		}
	}
	return r, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokName
	tokLiteral
	tokNumber
	tokSlash
	tokDSlash
	tokDot
	tokDDot
	tokAt
	tokStar
	tokLBrack
	tokRBrack
	tokLParen
	tokRParen
	tokComma
	tokOp
)

type token struct {
	kind tokKind
	val  string
}

// endsOperand reports whether a token can end an operand, which decides
// whether a following '*' or name is an operator.
func (t token) endsOperand() bool {
	switch t.kind {
	case tokName, tokLiteral, tokNumber, tokDot, tokDDot, tokStar, tokRBrack, tokRParen:
		return true
	}
	return false
}

func tokenize(s string) ([]token, error) {
	var toks []token
	prev := func() token {
		if len(toks) == 0 {
			return token{kind: tokOp}
		}
		return toks[len(toks)-1]
	}
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'' || c == '"':
			j := strings.IndexByte(s[i+1:], c)
			if j < 0 {
				return nil, fmt.Errorf("unterminated literal at offset %d", i)
			}
			toks = append(toks, token{tokLiteral, s[i+1 : i+1+j]})
			i += j + 2
		case c == '/':
			if i+1 < len(s) && s[i+1] == '/' {
				toks = append(toks, token{tokDSlash, "//"})
				i += 2
			} else {
				toks = append(toks, token{tokSlash, "/"})
				i++
			}
		case c == '.' && i+1 < len(s) && s[i+1] == '.':
			toks = append(toks, token{tokDDot, ".."})
			i += 2
		case c == '.' && (i+1 >= len(s) || !isDigit(rune(s[i+1]))):
			toks = append(toks, token{tokDot, "."})
			i++
		case isDigit(rune(c)) || c == '.':
			j := i
			for j < len(s) && (isDigit(rune(s[j])) || s[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, s[i:j]})
			i = j
		case c == '@':
			toks = append(toks, token{tokAt, "@"})
			i++
		case c == '*':
			if prev().endsOperand() {
				toks = append(toks, token{tokOp, "*"})
			} else {
				toks = append(toks, token{tokStar, "*"})
			}
			i++
		case c == '[':
			toks = append(toks, token{tokLBrack, "["})
			i++
		case c == ']':
			toks = append(toks, token{tokRBrack, "]"})
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c == '!' || c == '<' || c == '>':
			if i+1 < len(s) && s[i+1] == '=' {
				toks = append(toks, token{tokOp, s[i : i+2]})
				i += 2
			} else if c == '!' {
				return nil, fmt.Errorf("unexpected '!' at offset %d", i)
			} else {
				toks = append(toks, token{tokOp, string(c)})
				i++
			}
		case c == '=' || c == '+' || c == '-' || c == '|':
			toks = append(toks, token{tokOp, string(c)})
			i++
		case isLetter(rune(c)) || c == '_':
			j := scanName(s, i)
			if j < len(s) && s[j] == ':' && j+1 < len(s) && (isLetter(rune(s[j+1])) || s[j+1] == '_' || s[j+1] == '*') {
				if s[j+1] == '*' {
					j += 2
				} else {
					j = scanName(s, j+1)
				}
			}
			word := s[i:j]
			if prev().endsOperand() && (word == "and" || word == "or" || word == "div" || word == "mod") {
				toks = append(toks, token{tokOp, word})
			} else {
				toks = append(toks, token{tokName, word})
			}
			i = j
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", c, i)
		}
	}
	return toks, nil
}

func scanName(s string, i int) int {
	j := i + 1
	for j < len(s) {
		c := rune(s[j])
		if !isLetter(c) && !isDigit(c) && c != '_' && c != '-' && c != '.' {
			break
		}
		j++
	}
	return j
}

// atomizer walks the token stream once, evaluating location paths over
// schema nodes instead of data. Sets may contain NoNode for the root.
type atomizer struct {
	u      *Universe
	ctx    NodeID
	mod    *Module
	output bool
	toks   []token
	pos    int
	atoms  []NodeID
	seen   map[NodeID]bool
}

func (a *atomizer) peek() token {
	if a.pos < len(a.toks) {
		return a.toks[a.pos]
	}
	return token{kind: tokEOF}
}

func (a *atomizer) next() token {
	t := a.peek()
	if a.pos < len(a.toks) {
		a.pos++
	}
	return t
}

func (a *atomizer) expect(k tokKind, what string) error {
	if t := a.next(); t.kind != k {
		return fmt.Errorf("expected %s, got %q", what, t.val)
	}
	return nil
}

func (a *atomizer) add(ids []NodeID) {
	for _, id := range ids {
		if id != NoNode && !a.seen[id] {
			a.seen[id] = true
			a.atoms = append(a.atoms, id)
		}
	}
}

// expr parses operands joined by operators. The result is the node set of
// a lone operand, nil otherwise.
func (a *atomizer) expr(ctx []NodeID) ([]NodeID, error) {
	set, err := a.operand(ctx)
	if err != nil {
		return nil, err
	}
	for a.peek().kind == tokOp {
		a.next()
		if _, err := a.operand(ctx); err != nil {
			return nil, err
		}
		set = nil
	}
	return set, nil
}

func (a *atomizer) operand(ctx []NodeID) ([]NodeID, error) {
	t := a.peek()
	switch t.kind {
	case tokOp:
		if t.val != "-" {
			return nil, fmt.Errorf("unexpected %q", t.val)
		}
		a.next()
		return a.operand(ctx)
	case tokLiteral, tokNumber:
		a.next()
		return nil, nil
	case tokLParen:
		a.next()
		set, err := a.expr(ctx)
		if err != nil {
			return nil, err
		}
		if err := a.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return a.continuePath(set)
	case tokSlash, tokDSlash:
		return a.absolutePath()
	case tokName:
		if a.pos+1 < len(a.toks) && a.toks[a.pos+1].kind == tokLParen {
			set, err := a.call(ctx)
			if err != nil {
				return nil, err
			}
			return a.continuePath(set)
		}
		return a.relativePath(ctx)
	case tokDot, tokDDot, tokAt, tokStar:
		return a.relativePath(ctx)
	default:
		return nil, fmt.Errorf("unexpected %q", t.val)
	}
}

func (a *atomizer) call(ctx []NodeID) ([]NodeID, error) {
	name := a.next().val
	a.next()
	var args [][]NodeID
	if a.peek().kind != tokRParen {
		for {
			set, err := a.expr(ctx)
			if err != nil {
				return nil, err
			}
			args = append(args, set)
			if a.peek().kind != tokComma {
				break
			}
			a.next()
		}
	}
	if err := a.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}

	switch name {
	case "current":
		return []NodeID{a.ctx}, nil
	case "deref":
		if len(args) != 1 {
			return nil, fmt.Errorf("deref() takes one argument")
		}
		var out []NodeID
		for _, id := range args[0] {
			n := &a.u.nodes[id]
			if n.Type == nil || n.Type.Base != TypeLeafref {
				continue
			}
			target, err := a.u.LeafrefTarget(id, n.Type.Path)
			if err != nil {
				return nil, err
			}
			a.add([]NodeID{target})
			out = append(out, target)
		}
		return out, nil
	}
	return nil, nil
}

func (a *atomizer) continuePath(set []NodeID) ([]NodeID, error) {
	var err error
	for a.peek().kind == tokLBrack {
		if err = a.predicate(set); err != nil {
			return nil, err
		}
	}
	switch a.peek().kind {
	case tokSlash:
		a.next()
		return a.steps(set)
	case tokDSlash:
		a.next()
		return a.steps(a.descendants(set))
	}
	return set, nil
}

func (a *atomizer) absolutePath() ([]NodeID, error) {
	root := []NodeID{NoNode}
	if a.next().kind == tokDSlash {
		return a.steps(a.descendants(root))
	}
	switch a.peek().kind {
	case tokName, tokStar, tokDot, tokDDot, tokAt:
		return a.steps(root)
	}
	return root, nil
}

func (a *atomizer) relativePath(ctx []NodeID) ([]NodeID, error) {
	return a.steps(ctx)
}

func (a *atomizer) steps(cur []NodeID) ([]NodeID, error) {
	for {
		var err error
		if cur, err = a.step(cur); err != nil {
			return nil, err
		}
		switch a.peek().kind {
		case tokSlash:
			a.next()
		case tokDSlash:
			a.next()
			cur = a.descendants(cur)
		default:
			return cur, nil
		}
	}
}

func (a *atomizer) step(cur []NodeID) ([]NodeID, error) {
	t := a.next()
	var res []NodeID
	switch t.kind {
	case tokDot:
		res = cur
	case tokDDot:
		for _, id := range cur {
			if id == NoNode {
				return nil, fmt.Errorf("'..' above the root")
			}
			res = appendUnique(res, a.u.DataParent(id))
		}
	case tokAt:
		if err := a.expect(tokName, "attribute name"); err != nil {
			return nil, err
		}
	case tokStar:
		for _, id := range cur {
			for _, c := range a.children(id) {
				res = appendUnique(res, c)
			}
		}
	case tokName:
		prefix, name := splitQName(t.val)
		var pm *Module
		if prefix != "" {
			var err error
			if pm, err = a.u.resolvePrefix(a.mod, prefix); err != nil {
				return nil, err
			}
		}
		for _, id := range cur {
			for _, c := range a.children(id) {
				if a.matches(id, c, pm, name) {
					res = appendUnique(res, c)
				}
			}
		}
		if len(res) == 0 {
			return nil, fmt.Errorf("schema node %q not found", t.val)
		}
	default:
		return nil, fmt.Errorf("unexpected %q in path", t.val)
	}
	a.add(res)
	for a.peek().kind == tokLBrack {
		if err := a.predicate(res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (a *atomizer) predicate(set []NodeID) error {
	a.next()
	if _, err := a.expr(set); err != nil {
		return err
	}
	return a.expect(tokRBrack, "']'")
}

// matches applies name-test rules: a prefixed name must match the module;
// an unprefixed one belongs to the expression's module, or inherits the
// module of the parent step.
func (a *atomizer) matches(parent, child NodeID, pm *Module, name string) bool {
	n := &a.u.nodes[child]
	if n.Name != name && name != "*" {
		return false
	}
	if pm != nil {
		return n.Module == pm
	}
	if n.Module == a.mod {
		return true
	}
	return parent != NoNode && n.Module == a.u.nodes[parent].Module
}

func (a *atomizer) children(id NodeID) []NodeID {
	if id == NoNode {
		return a.u.TopData()
	}
	return a.u.DataChildren(id, a.output)
}

func (a *atomizer) descendants(set []NodeID) []NodeID {
	var out []NodeID
	var walk func(NodeID)
	walk = func(id NodeID) {
		out = appendUnique(out, id)
		for _, c := range a.children(id) {
			walk(c)
		}
	}
	for _, id := range set {
		walk(id)
	}
	return out
}

func appendUnique(set []NodeID, id NodeID) []NodeID {
	for _, x := range set {
		if x == id {
			return set
		}
	}
	return append(set, id)
}
