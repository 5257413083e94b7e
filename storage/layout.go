// Package storage owns the on-disk side of the job queue.
//
// Every experiment has three directories under the upload root:
//
//	root/{uid}/submitted/{eid}   inputs, read by the worker
//	root/{uid}/completed/{eid}   outputs, written back by the worker
//	root/{uid}/edited/{eid}      user edits, never read by the worker
//
// The experiment status column is the authority on where a job is in its lifecycle;
// these directories only carry payload.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// Namespace is one of the per-experiment directory roles.
type Namespace string

const (
	Submitted Namespace = "submitted"
	Completed Namespace = "completed"
	Edited    Namespace = "edited"
)

// Namespaces lists every namespace created for an experiment.
var Namespaces = []Namespace{Submitted, Completed, Edited}

var (
	ErrInvalidName  = errors.New("invalid file name")
	ErrOutsideRoot  = errors.New("path escapes upload root")
	ErrNotDirectory = errors.New("not a directory")
)

// Layout maps (user, namespace, experiment) triples onto directories of fs.
type Layout struct {
	fs   afero.Fs
	root string
}

// NewLayout returns a Layout rooted at root on fs.
func NewLayout(fs afero.Fs, root string) *Layout {
	return &Layout{fs: fs, root: filepath.Clean(root)}
}

// NewOsLayout returns a Layout on the host filesystem.
func NewOsLayout(root string) *Layout {
	return NewLayout(afero.NewOsFs(), root)
}

// Fs exposes the underlying filesystem.
func (l *Layout) Fs() afero.Fs { return l.fs }

// Root returns the upload root.
func (l *Layout) Root() string { return l.root }

// Dir returns root/{uid}/{ns}/{eid}.
func (l *Layout) Dir(uid, eid int64, ns Namespace) string {
	return filepath.Join(l.root, strconv.FormatInt(uid, 10), string(ns), strconv.FormatInt(eid, 10))
}

// Create makes all namespace directories for the experiment.
func (l *Layout) Create(uid, eid int64) error {
	for _, ns := range Namespaces {
		if err := l.fs.MkdirAll(l.Dir(uid, eid, ns), 0o755); err != nil {
			return fmt.Errorf("create %s dir for experiment %d: %w", ns, eid, err)
		}
	}
	return nil
}

// Remove deletes every namespace directory of the experiment. Missing directories are fine.
// All namespaces are attempted; the first error is returned.
func (l *Layout) Remove(uid, eid int64) error {
	var first error
	for _, ns := range Namespaces {
		if err := l.RemoveNamespace(uid, eid, ns); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RemoveNamespace deletes one namespace directory of the experiment. Idempotent.
func (l *Layout) RemoveNamespace(uid, eid int64, ns Namespace) error {
	return l.fs.RemoveAll(l.Dir(uid, eid, ns))
}

// Exists reports whether the namespace directory is present.
func (l *Layout) Exists(uid, eid int64, ns Namespace) bool {
	fi, err := l.fs.Stat(l.Dir(uid, eid, ns))
	return err == nil && fi.IsDir()
}

// List returns the sorted names of regular files in the namespace directory.
// A missing directory lists as empty.
func (l *Layout) List(uid, eid int64, ns Namespace) ([]string, error) {
	infos, err := afero.ReadDir(l.fs, l.Dir(uid, eid, ns))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		if fi.Mode().IsRegular() {
			names = append(names, fi.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Save streams r into the namespace directory under name and returns the stored path and
// its size as reported by a stat after the write. At most limit+1 bytes are copied when
// limit > 0, so an oversize upload is detectable without writing all of it.
// name must already be sanitised.
func (l *Layout) Save(uid, eid int64, ns Namespace, name string, r io.Reader, limit int64) (string, int64, error) {
	dest, err := l.path(uid, eid, ns, name)
	if err != nil {
		return "", 0, err
	}

	if err := l.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", 0, err
	}
	f, err := l.fs.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", 0, err
	}
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		l.fs.Remove(dest)
		return "", 0, err
	}
	if err := f.Close(); err != nil {
		l.fs.Remove(dest)
		return "", 0, err
	}

	fi, err := l.fs.Stat(dest)
	if err != nil {
		return "", 0, err
	}
	return dest, fi.Size(), nil
}

// Open opens a stored file for reading.
func (l *Layout) Open(uid, eid int64, ns Namespace, name string) (afero.File, error) {
	p, err := l.path(uid, eid, ns, name)
	if err != nil {
		return nil, err
	}
	return l.fs.Open(p)
}

// RemoveFile deletes a stored file by path. Missing files are fine.
func (l *Layout) RemoveFile(path string) error {
	if !l.within(path) {
		return ErrOutsideRoot
	}
	err := l.fs.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// StoredFile is a file found by WalkNamespace.
type StoredFile struct {
	UserID       int64
	ExperimentID int64
	Path         string
	Info         os.FileInfo
}

// WalkNamespace visits every regular file under root/*/ns/*/. Entries whose user or
// experiment component is not numeric are skipped.
func (l *Layout) WalkNamespace(ns Namespace, fn func(StoredFile) error) error {
	users, err := afero.ReadDir(l.fs, l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, u := range users {
		uid, err := strconv.ParseInt(u.Name(), 10, 64)
		if err != nil || !u.IsDir() {
			continue
		}
		nsDir := filepath.Join(l.root, u.Name(), string(ns))
		exps, err := afero.ReadDir(l.fs, nsDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		for _, e := range exps {
			eid, err := strconv.ParseInt(e.Name(), 10, 64)
			if err != nil || !e.IsDir() {
				continue
			}
			files, err := afero.ReadDir(l.fs, filepath.Join(nsDir, e.Name()))
			if err != nil {
				return err
			}
			for _, fi := range files {
				if !fi.Mode().IsRegular() {
					continue
				}
				sf := StoredFile{
					UserID:       uid,
					ExperimentID: eid,
					Path:         filepath.Join(nsDir, e.Name(), fi.Name()),
					Info:         fi,
				}
				if err := fn(sf); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (l *Layout) path(uid, eid int64, ns Namespace, name string) (string, error) {
	if name == "" || name != SanitizeFilename(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	p := filepath.Join(l.Dir(uid, eid, ns), name)
	if !l.within(p) {
		return "", ErrOutsideRoot
	}
	return p, nil
}

func (l *Layout) within(p string) bool {
	p = filepath.Clean(p)
	root := l.root
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	return strings.HasPrefix(p, root)
}
