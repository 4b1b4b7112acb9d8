// Package filestore keeps schema texts and module data files on disk.
package filestore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/ports"
)

// SchemaDir stores schema texts as <name>@<revision>.yaml, or <name>.yaml
// for modules without a revision.
type SchemaDir struct {
	dir string
}

// NewSchemaDir creates a schema store rooted at dir.
func NewSchemaDir(dir string) *SchemaDir {
	return &SchemaDir{dir: dir}
}

func (s *SchemaDir) file(name, revision string) string {
	if revision == "" {
		return filepath.Join(s.dir, name+".yaml")
	}
	return filepath.Join(s.dir, name+"@"+revision+".yaml")
}

// Find reads a schema text. An empty revision selects the newest stored one.
func (s *SchemaDir) Find(name, revision string) ([]byte, error) {
	path := s.file(name, revision)
	if revision == "" {
		matches, err := filepath.Glob(filepath.Join(s.dir, name+"@*.yaml"))
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "list schemas of %q", name)
		}
		if len(matches) > 0 {
			sort.Strings(matches)
			path = matches[len(matches)-1]
		}
	}

	text, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.New(errs.NotFound, "schema of module %q revision %q not found", name, revision)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "read schema %q", path)
	}
	return text, nil
}

// Store writes a schema text unless that revision is already stored.
func (s *SchemaDir) Store(name, revision string, text []byte) error {
	path := s.file(name, revision)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errs.Wrap(errs.Internal, err, "create schema dir")
	}
	return writeAtomic(path, text, 0o644)
}

// Remove deletes a stored revision.
func (s *SchemaDir) Remove(name, revision string) error {
	err := os.Remove(s.file(name, revision))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errs.Wrap(errs.Internal, err, "remove schema of %q", name)
	}
	return nil
}

// DataDir stores module data as <name>.startup and <name>.running.
type DataDir struct {
	dir string
}

// NewDataDir creates a data store rooted at dir.
func NewDataDir(dir string) *DataDir {
	return &DataDir{dir: dir}
}

func (d *DataDir) file(module string, ds ports.Datastore) string {
	return filepath.Join(d.dir, module+"."+ds.String())
}

// Read returns a module's data, nil when the file does not exist.
func (d *DataDir) Read(module string, ds ports.Datastore) ([]byte, error) {
	data, err := os.ReadFile(d.file(module, ds))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "read %s data of %q", ds, module)
	}
	return data, nil
}

// Write replaces a module's data.
func (d *DataDir) Write(module string, ds ports.Datastore, data []byte) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return errs.Wrap(errs.Internal, err, "create data dir")
	}
	return writeAtomic(d.file(module, ds), data, 0o600)
}

// CreateStartup creates an empty startup file unless one exists.
func (d *DataDir) CreateStartup(module string) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return errs.Wrap(errs.Internal, err, "create data dir")
	}
	f, err := os.OpenFile(d.file(module, ports.Startup), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.Internal, err, "create startup data of %q", module)
	}
	return f.Close()
}

// RemoveAll deletes every data file of a module.
func (d *DataDir) RemoveAll(module string) error {
	for _, ds := range []ports.Datastore{ports.Startup, ports.Running} {
		err := os.Remove(d.file(module, ds))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errs.Wrap(errs.Internal, err, "remove %s data of %q", ds, module)
		}
	}
	return nil
}

// writeAtomic writes data to a temporary file in the target directory and
// renames it over path.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir, base := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, "."+strings.TrimPrefix(base, ".")+".tmp-*")
	if err != nil {
		return errs.Wrap(errs.Internal, err, "create temp file for %q", path)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return errs.Wrap(errs.Internal, err, "write %q", path)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(name)
		return errs.Wrap(errs.Internal, err, "chmod %q", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return errs.Wrap(errs.Internal, err, "close %q", path)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return errs.Wrap(errs.Internal, err, "rename into %q", path)
	}
	return nil
}

var (
	_ ports.SchemaStore = (*SchemaDir)(nil)
	_ ports.DataStore   = (*DataDir)(nil)
)
