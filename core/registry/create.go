package registry

import (
	"embed"

	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/core/schema"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// builtins are installed by Create, in this order.
var builtins = []string{"ietf-datastores", "ietf-origin", "modreg-monitoring"}

// Internal reports whether a module is built in. Built-in modules cannot be
// removed or updated.
func Internal(name string) bool {
	for _, b := range builtins {
		if b == name {
			return true
		}
	}
	return false
}

// Create builds the initial document with every built-in module installed
// into u. Dependencies are not computed here.
func Create(u *schema.Universe, in *Installer) (*Document, error) {
	doc := &Document{}
	for _, name := range builtins {
		text, err := builtinFS.ReadFile("builtin/" + name + ".yaml")
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "read built-in module %q", name)
		}
		mod, err := u.Parse(text)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "built-in module %q", name)
		}
		if err := in.AddWithImports(doc, u, mod, LogQuiet); err != nil {
			return nil, err
		}
	}
	return doc, nil
}
