package schema_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/core/schema"
	"github.com/artpar/modreg/core/schema/schematest"
)

func TestParseLoadsImportsUnimplemented(t *testing.T) {
	u := schema.NewUniverse(schematest.Source())

	mod, err := u.Parse([]byte(schematest.System))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !mod.Implemented {
		t.Error("parsed module should be implemented")
	}
	if u.Module("acme-types") == nil {
		t.Fatal("import not loaded")
	}
	if u.Implemented("acme-types") {
		t.Error("import should not be implemented")
	}
	if !mod.ImportsModule("acme-types") {
		t.Error("ImportsModule(acme-types) = false")
	}

	names := []string{}
	for _, m := range u.Modules() {
		names = append(names, m.Name)
	}
	if strings.Join(names, ",") != "acme-types,acme-system" {
		t.Errorf("load order = %v", names)
	}
}

func TestAugmentImplementsTarget(t *testing.T) {
	u := schema.NewUniverse(schematest.Source())

	if _, err := u.Parse([]byte(schematest.Owner)); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !u.Implemented("acme-types") {
		t.Fatal("augment target module should be implemented")
	}

	list := u.FindDataChild(u.FindTop("acme-types", "servers"), "acme-types", "server")
	owner := u.FindDataChild(list, "acme-owner", "owner")
	if owner == schema.NoNode {
		t.Fatal("augmented leaf not found")
	}
	n := u.Node(owner)
	if n.Module.Name != "acme-owner" {
		t.Errorf("owner module = %q", n.Module.Name)
	}
	if u.Node(n.Top).Name != "servers" {
		t.Errorf("owner top = %q", u.Node(n.Top).Name)
	}
	if got := u.DataPath(owner); got != "/acme-types:servers/server/acme-owner:owner" {
		t.Errorf("DataPath = %q", got)
	}
}

func TestAugmentTargetPaths(t *testing.T) {
	tests := []struct {
		target string
		ok     bool
	}{
		{"/acme-types:servers/server", true},
		{"/acme-types:servers/acme-types:server", true},
		{"/acme-types:servers", true},
		{"/acme-types:servers/ext:server", false},
		{"/acme-types:servers/nope", false},
		{"/servers/server", false},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			text := `module: ext
revision: "2024-05-01"
imports: [acme-types]
augments:
  - target: "` + tt.target + `"
    children:
      - leaf: note
        type: string
`
			u := schema.NewUniverse(schematest.Source())
			_, err := u.Parse([]byte(text))
			if tt.ok && err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected unresolvable augment target")
			}
		})
	}
}

func TestLoadImplementsExisting(t *testing.T) {
	u := schema.NewUniverse(schematest.Source())
	if _, err := u.Parse([]byte(schematest.System)); err != nil {
		t.Fatal(err)
	}

	m, err := u.Load("acme-types", "2024-01-10")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !m.Implemented {
		t.Error("Load should implement the loaded import")
	}

	if _, err := u.Load("acme-types", "2020-01-01"); err == nil {
		t.Error("expected revision conflict")
	}
}

func TestFeatures(t *testing.T) {
	u := schema.NewUniverse(schematest.Source())
	mod, err := u.Parse([]byte(schematest.System))
	if err != nil {
		t.Fatal(err)
	}

	sys := u.FindTop("acme-system", "system")
	ntp := u.FindDataChild(sys, "acme-system", "ntp-server")
	if !u.Disabled(ntp) {
		t.Error("ntp-server should be disabled while ntp is off")
	}

	if err := u.EnableFeature("acme-system", "ntp"); err != nil {
		t.Fatal(err)
	}
	if u.Disabled(ntp) {
		t.Error("ntp-server should be enabled")
	}
	if got := mod.EnabledFeatures(); len(got) != 1 || got[0] != "ntp" {
		t.Errorf("EnabledFeatures = %v", got)
	}

	err = u.EnableFeature("acme-system", "nope")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("unknown feature error = %v, want not found", err)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr string
	}{
		{
			name: "unresolved leafref",
			text: `module: m
data:
  - leaf: a
    type: { base: leafref, path: "/m:missing" }
`,
			wantErr: "not found",
		},
		{
			name: "leafref to container",
			text: `module: m
data:
  - container: c
    children: [ { leaf: x, type: string } ]
  - leaf: a
    type: { base: leafref, path: "/m:c" }
`,
			wantErr: "targets a container",
		},
		{
			name: "prefix not imported",
			text: `module: m
data:
  - leaf: a
    when: "/acme-types:servers"
    type: string
`,
			wantErr: "not imported",
		},
		{
			name: "undeclared feature",
			text: `module: m
data:
  - leaf: a
    if-feature: f
    type: string
`,
			wantErr: "feature not declared",
		},
		{
			name: "duplicate sibling",
			text: `module: m
data:
  - container: c
    children:
      - leaf: x
        type: string
      - leaf: x
        type: int
`,
			wantErr: "duplicate node",
		},
		{
			name:    "missing import",
			text:    "module: m\nimports: [nowhere]\n",
			wantErr: "nowhere",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := schema.NewUniverse(schematest.Source())
			_, err := u.Parse([]byte(tt.text))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestAtomize(t *testing.T) {
	u := schema.NewUniverse(schematest.Source())
	if _, err := u.Parse([]byte(schematest.System)); err != nil {
		t.Fatal(err)
	}
	sys := u.FindTop("acme-system", "system")
	list := u.FindDataChild(sys, "acme-system", "server")
	name := u.FindDataChild(list, "acme-system", "name")

	tests := []struct {
		expr string
		want []string
	}{
		{"/acme-types:servers/server/name", []string{
			"/acme-types:servers", "/acme-types:servers/server", "/acme-types:servers/server/name",
		}},
		{"../../hostname", []string{
			"/acme-system:system/server", "/acme-system:system", "/acme-system:system/hostname",
		}},
		{"current()/../target = 'x'", []string{"/acme-system:system/server", "/acme-system:system/server/target"}},
		{"count(/acme-system:system/server[name = current()]) > 1", []string{
			"/acme-system:system", "/acme-system:system/server", "/acme-system:system/server/name",
		}},
		{"string-length(.) > 0 and . != 'none'", []string{"/acme-system:system/server/name"}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			atoms, err := u.Atomize(name, tt.expr, false)
			if err != nil {
				t.Fatalf("Atomize failed: %v", err)
			}
			got := []string{}
			for _, id := range atoms {
				got = append(got, u.DataPath(id))
			}
			if strings.Join(got, " ") != strings.Join(tt.want, " ") {
				t.Errorf("atoms = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrintRoundTrip(t *testing.T) {
	u := schema.NewUniverse(schematest.Source())
	mod, err := u.Parse([]byte(schematest.System))
	if err != nil {
		t.Fatal(err)
	}
	text, err := u.Print(mod)
	if err != nil {
		t.Fatal(err)
	}

	again := schema.NewUniverse(schematest.Source())
	mod2, err := again.Parse(text)
	if err != nil {
		t.Fatalf("printed text does not parse: %v\n%s", err, text)
	}
	text2, err := again.Print(mod2)
	if err != nil {
		t.Fatal(err)
	}
	if string(text) != string(text2) {
		t.Errorf("print is not stable:\n%s\n---\n%s", text, text2)
	}
}
