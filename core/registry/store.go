package registry

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/ports"
)

// fileMode is applied when the registry file is first created. Later saves
// keep whatever mode the file has.
const fileMode fs.FileMode = 0o666

// Store reads and writes the registry file.
type Store struct {
	path   string
	locker ports.Locker
}

// NewStore returns a store for the registry file at path. Begin serializes
// read-modify-write cycles through locker.
func NewStore(path string, locker ports.Locker) *Store {
	return &Store{path: path, locker: locker}
}

// Path returns the registry file path.
func (s *Store) Path() string { return s.path }

// Exists reports whether the registry file exists.
func (s *Store) Exists() (bool, error) {
	_, err := os.Stat(s.path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, errs.Wrap(errs.Internal, err, "stat registry")
	}
}

// Load reads and decodes the registry.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.New(errs.NotFound, "registry %s does not exist", s.path)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "read registry")
	}
	return Decode(data)
}

// Save validates the document and replaces the registry file with it.
func (s *Store) Save(doc *Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}

	mode := fileMode
	if fi, err := os.Stat(s.path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errs.Wrap(errs.Internal, err, "create registry directory")
	}
	if err := writeFileAtomic(s.path, data, mode); err != nil {
		return errs.Wrap(errs.Internal, err, "write registry")
	}
	return nil
}

// Begin acquires the registry lock and loads the document. The returned
// transaction must be closed.
func (s *Store) Begin(ctx context.Context) (*Txn, error) {
	if err := s.locker.Lock(ctx); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "lock registry")
	}
	doc, err := s.Load()
	if err != nil {
		_ = s.locker.Unlock()
		return nil, err
	}
	return &Txn{store: s, doc: doc}, nil
}

// Create builds a new document under the lock and saves it. It fails with
// errs.Exists when the registry file already exists.
func (s *Store) Create(ctx context.Context, build func() (*Document, error)) error {
	if err := s.locker.Lock(ctx); err != nil {
		return errs.Wrap(errs.Internal, err, "lock registry")
	}
	defer s.locker.Unlock()

	ok, err := s.Exists()
	if err != nil {
		return err
	}
	if ok {
		return errs.New(errs.Exists, "registry %s already exists", s.path)
	}
	doc, err := build()
	if err != nil {
		return err
	}
	return s.Save(doc)
}

// Txn is a locked read-modify-write cycle over the registry.
type Txn struct {
	store  *Store
	doc    *Document
	closed bool
}

// Doc returns the document loaded when the transaction began.
func (t *Txn) Doc() *Document { return t.doc }

// Commit saves the document. The lock stays held until Close.
func (t *Txn) Commit() error {
	if t.closed {
		return errs.New(errs.Internal, "commit on closed registry transaction")
	}
	return t.store.Save(t.doc)
}

// Close releases the lock. Closing twice is a no-op.
func (t *Txn) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.store.locker.Unlock()
}

// Encode validates and serializes a document.
func Encode(doc *Document) ([]byte, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	data, err := msgpack.Marshal(doc)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "encode registry")
	}
	return data, nil
}

// Decode parses a serialized document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.Internal, err, "decode registry")
	}
	return &doc, nil
}

func writeFileAtomic(path string, data []byte, mode fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
