package analysis

import (
	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/core/schema"
)

// Analyze computes the facts of an implemented module: its data trees into
// Data, and one OpFacts per rpc, action and notification.
func Analyze(u *schema.Universe, mod *schema.Module) (*ModuleFacts, error) {
	a := analyzer{u: u}
	mf := &ModuleFacts{}
	for _, id := range mod.Data {
		if err := a.subtree(id, false, &mf.Data, mf); err != nil {
			return nil, err
		}
	}
	for _, id := range mod.RPCs {
		if err := a.operation(id, mf); err != nil {
			return nil, err
		}
	}
	for _, id := range mod.Notifications {
		if err := a.operation(id, mf); err != nil {
			return nil, err
		}
	}
	return mf, nil
}

// Subtree collects the facts of root and its enabled descendants into facts.
// With output set, rpc and action descendants are traversed on their output
// side. Operations nested below root are analyzed separately into mf.
func Subtree(u *schema.Universe, root schema.NodeID, output bool, facts *Facts, mf *ModuleFacts) error {
	a := analyzer{u: u}
	return a.subtree(root, output, facts, mf)
}

// CheckModule returns every module that mod's enabled data and operations
// reference outside their own trees, in order of first reference. Nothing is
// recorded.
func CheckModule(u *schema.Universe, mod *schema.Module) ([]string, error) {
	mf, err := Analyze(u, mod)
	if err != nil {
		return nil, err
	}
	var out []string
	seen := make(map[string]bool)
	add := func(f *Facts) {
		for _, fact := range f.List() {
			if fact.Module != "" && !seen[fact.Module] {
				seen[fact.Module] = true
				out = append(out, fact.Module)
			}
		}
	}
	add(&mf.Data)
	for _, op := range mf.Ops {
		add(&op.In)
		add(&op.Out)
	}
	return out, nil
}

type analyzer struct {
	u *schema.Universe
}

func (a analyzer) operation(id schema.NodeID, mf *ModuleFacts) error {
	if a.u.Disabled(id) {
		return nil
	}
	path := a.u.DataPath(id)
	if mf.op(path) != nil {
		return nil
	}
	op := &OpFacts{Path: path, Kind: a.u.Node(id).Kind}
	mf.Ops = append(mf.Ops, op)

	if err := a.subtree(id, false, &op.In, mf); err != nil {
		return err
	}
	if op.Kind == schema.KindNotification {
		return nil
	}
	return a.subtree(id, true, &op.Out, mf)
}

func (a analyzer) subtree(root schema.NodeID, output bool, facts *Facts, mf *ModuleFacts) error {
	stack := []schema.NodeID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if a.u.Disabled(id) {
			continue
		}

		n := a.u.Node(id)
		var exprs []string
		descend := true

		switch n.Kind {
		case schema.KindLeaf, schema.KindLeafList:
			if err := a.typeFacts(id, *n.Type, n.Defaults, output, facts); err != nil {
				return err
			}
			exprs = append(append(exprs, n.When...), n.Musts...)
		case schema.KindContainer, schema.KindList, schema.KindAnydata, schema.KindAnyxml:
			exprs = append(append(exprs, n.When...), n.Musts...)
		case schema.KindChoice, schema.KindCase:
			exprs = n.When
		case schema.KindInput:
			descend = !output
			if descend {
				exprs = n.Musts
			}
		case schema.KindOutput:
			descend = output
			if descend {
				exprs = n.Musts
			}
		case schema.KindRPC, schema.KindAction, schema.KindNotification:
			if id != root {
				if err := a.operation(id, mf); err != nil {
					return err
				}
				descend = false
			} else {
				exprs = n.Musts
			}
		default:
			return errs.New(errs.Internal, "%s: unexpected node kind %d", a.u.SchemaPath(id), n.Kind)
		}

		for _, e := range exprs {
			mods, err := a.foreignModules(id, e, output)
			if err != nil {
				return err
			}
			for _, m := range mods {
				facts.AddRef(m)
			}
		}

		if descend {
			children := n.Children
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
		}
	}
	return nil
}

func (a analyzer) typeFacts(id schema.NodeID, t schema.TypeDef, defaults []string, output bool, facts *Facts) error {
	switch t.Base {
	case schema.TypeInstanceID:
		target := ""
		for _, d := range defaults {
			mods, err := a.foreignModules(id, d, output)
			if err != nil {
				return err
			}
			if len(mods) > 0 {
				target = mods[0]
				break
			}
		}
		facts.AddInstID(a.u.DataPath(id), target)
	case schema.TypeLeafref:
		mods, err := a.foreignModules(id, t.Path, output)
		if err != nil {
			return err
		}
		for _, m := range mods {
			facts.AddRef(m)
		}
	case schema.TypeUnion:
		for _, member := range t.Types {
			if err := a.typeFacts(id, member, defaults, output, facts); err != nil {
				return err
			}
		}
	}
	return nil
}

// foreignModules atomizes expr in the context of node ctx and returns the
// distinct modules of the foreign atoms in order of first appearance.
func (a analyzer) foreignModules(ctx schema.NodeID, expr string, output bool) ([]string, error) {
	atoms, err := a.u.Atomize(ctx, expr, output)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "%s: atomize %q", a.u.SchemaPath(ctx), expr)
	}
	var out []string
	for _, atom := range atoms {
		m, ok := Foreign(a.u, atom, ctx)
		if !ok {
			continue
		}
		dup := false
		for _, x := range out {
			dup = dup || x == m
		}
		if !dup {
			out = append(out, m)
		}
	}
	return out, nil
}

// Foreign decides whether atom, referenced from node ctx, lies outside ctx's
// top node, and returns the module it belongs to if so. The top node is the
// nearest operation enclosing ctx, or ctx's top-level ancestor. An atom
// within the top node's subtree is local. Otherwise it is foreign when the
// top node is an operation, or when the atom's top-level ancestor belongs
// to another module than the top node.
func Foreign(u *schema.Universe, atom, ctx schema.NodeID) (string, bool) {
	top := ctx
	for {
		n := u.Node(top)
		if n.Kind.IsOperation() || !n.HasParent() {
			break
		}
		top = n.Parent
	}

	cur := atom
	for cur != top && u.Node(cur).HasParent() {
		cur = u.Node(cur).Parent
	}
	if cur == top {
		return "", false
	}

	if u.Node(top).Kind.IsOperation() || u.Node(cur).Module != u.Node(top).Module {
		return u.Node(cur).Module.Name, true
	}
	return "", false
}
