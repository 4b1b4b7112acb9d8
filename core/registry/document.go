// Package registry persists the module registry: installed modules with
// their dependency records and schedule markers, plus modules staged for
// installation.
package registry

import "time"

// Document is the whole persisted registry.
type Document struct {
	Modules   []*Module `msgpack:"module"`
	Installed []*Staged `msgpack:"installed-module"`
}

// Module is the record of an installed module.
type Module struct {
	Name            string   `msgpack:"name"`
	Revision        string   `msgpack:"revision,omitempty"`
	EnabledFeatures []string `msgpack:"enabled-feature,omitempty"`

	DataDeps    Deps      `msgpack:"data-deps"`
	OpDeps      []*OpDeps `msgpack:"op-deps,omitempty"`
	InverseDeps []string  `msgpack:"inverse-data-deps,omitempty"`

	// ReplaySupport is the Unix time notification replay starts from,
	// zero when replay is off.
	ReplaySupport int64 `msgpack:"replay-support,omitempty"`

	// Schedule markers. At most one kind is set.
	Removed         bool            `msgpack:"removed,omitempty"`
	UpdatedYang     string          `msgpack:"updated-yang,omitempty"`
	ChangedFeatures []FeatureChange `msgpack:"changed-feature,omitempty"`
}

// Deps lists the dependencies of a data tree or one side of an operation.
type Deps struct {
	Modules []string `msgpack:"module,omitempty"`
	InstIDs []InstID `msgpack:"inst-id,omitempty"`
}

// InstID is an instance-identifier node whose target is only known at run
// time, with the module its default value points into.
type InstID struct {
	XPath         string `msgpack:"xpath"`
	DefaultModule string `msgpack:"default-module,omitempty"`
}

// OpDeps are the dependencies of one rpc, action or notification.
type OpDeps struct {
	XPath string `msgpack:"xpath"`
	In    Deps   `msgpack:"in"`
	Out   Deps   `msgpack:"out"`
}

// Change is a scheduled feature change direction.
type Change string

const (
	ChangeEnable  Change = "enable"
	ChangeDisable Change = "disable"
)

// FeatureChange schedules enabling or disabling one feature.
type FeatureChange struct {
	Name   string `msgpack:"name"`
	Change Change `msgpack:"change"`
}

// Staged is a module scheduled for installation.
type Staged struct {
	Name            string   `msgpack:"name"`
	Revision        string   `msgpack:"revision,omitempty"`
	EnabledFeatures []string `msgpack:"enabled-feature,omitempty"`
	ModuleYang      string   `msgpack:"module-yang"`

	// Data is seed configuration in JSON, applied to startup and running
	// when the module is installed.
	Data string `msgpack:"data,omitempty"`
}

// MarkerKind is the kind of change scheduled on an installed module.
type MarkerKind int

const (
	MarkerNone MarkerKind = iota
	MarkerRemoved
	MarkerUpdated
	MarkerFeatureChanges
)

func (k MarkerKind) String() string {
	switch k {
	case MarkerRemoved:
		return "removal"
	case MarkerUpdated:
		return "update"
	case MarkerFeatureChanges:
		return "feature change"
	default:
		return "none"
	}
}

func (m *Module) markers() []MarkerKind {
	var out []MarkerKind
	if m.Removed {
		out = append(out, MarkerRemoved)
	}
	if m.UpdatedYang != "" {
		out = append(out, MarkerUpdated)
	}
	if len(m.ChangedFeatures) > 0 {
		out = append(out, MarkerFeatureChanges)
	}
	return out
}

// Pending returns the scheduled change kind of the module.
func (m *Module) Pending() MarkerKind {
	if ks := m.markers(); len(ks) > 0 {
		return ks[0]
	}
	return MarkerNone
}

// FeatureEnabled reports whether f is in the enabled feature list.
func (m *Module) FeatureEnabled(f string) bool {
	for _, x := range m.EnabledFeatures {
		if x == f {
			return true
		}
	}
	return false
}

// ReplaySince returns the replay start time, if replay is on.
func (m *Module) ReplaySince() (time.Time, bool) {
	if m.ReplaySupport == 0 {
		return time.Time{}, false
	}
	return time.Unix(m.ReplaySupport, 0).UTC(), true
}

// ClearDeps drops all dependency records.
func (m *Module) ClearDeps() {
	m.DataDeps = Deps{}
	m.OpDeps = nil
	m.InverseDeps = nil
}

// AddInverse records that module name depends on m.
func (m *Module) AddInverse(name string) {
	for _, x := range m.InverseDeps {
		if x == name {
			return
		}
	}
	m.InverseDeps = append(m.InverseDeps, name)
}

// FindModule returns the installed module record, or nil.
func (d *Document) FindModule(name string) *Module {
	for _, m := range d.Modules {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// FindStaged returns the staged module, or nil.
func (d *Document) FindStaged(name string) *Staged {
	for _, s := range d.Installed {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// RemoveModule deletes an installed module record.
func (d *Document) RemoveModule(name string) bool {
	for i, m := range d.Modules {
		if m.Name == name {
			d.Modules = append(d.Modules[:i], d.Modules[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveStaged deletes a staged module.
func (d *Document) RemoveStaged(name string) bool {
	for i, s := range d.Installed {
		if s.Name == name {
			d.Installed = append(d.Installed[:i], d.Installed[i+1:]...)
			return true
		}
	}
	return false
}

// Scheduled reports whether any change is scheduled.
func (d *Document) Scheduled() bool {
	if len(d.Installed) > 0 {
		return true
	}
	for _, m := range d.Modules {
		if m.Pending() != MarkerNone {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := &Document{}
	for _, m := range d.Modules {
		mc := *m
		mc.EnabledFeatures = cloneStrings(m.EnabledFeatures)
		mc.DataDeps = m.DataDeps.clone()
		mc.OpDeps = nil
		for _, op := range m.OpDeps {
			mc.OpDeps = append(mc.OpDeps, &OpDeps{XPath: op.XPath, In: op.In.clone(), Out: op.Out.clone()})
		}
		mc.InverseDeps = cloneStrings(m.InverseDeps)
		mc.ChangedFeatures = append([]FeatureChange(nil), m.ChangedFeatures...)
		c.Modules = append(c.Modules, &mc)
	}
	for _, s := range d.Installed {
		sc := *s
		sc.EnabledFeatures = cloneStrings(s.EnabledFeatures)
		c.Installed = append(c.Installed, &sc)
	}
	return c
}

func (d Deps) clone() Deps {
	return Deps{Modules: cloneStrings(d.Modules), InstIDs: append([]InstID(nil), d.InstIDs...)}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
