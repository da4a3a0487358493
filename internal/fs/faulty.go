package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("injected fault")

// Fault defines the failure behavior of files whose name matches a rule.
type Fault struct {
	FailReads      bool  // every ReadAt/Read fails
	FailAfterBytes int64 // writes fail once this many bytes were written to the file; -1 disables
	FailOnSync     bool
	FailOnOpen     bool
	Err            error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// FaultyFS is a FileSystem wrapper that can inject errors.
// Rules are matched by substring against the file name; the last added
// matching rule wins.
type FaultyFS struct {
	FS FileSystem

	mu    sync.Mutex
	rules []faultRule
	files []*faultyFile
}

type faultRule struct {
	pattern string
	fault   Fault
}

// NewFaultyFS creates a new FaultyFS wrapping the provided FS (or Default if nil).
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{FS: fsys}
}

// AddRule adds a fault rule. It also applies to files that are already open.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, faultRule{pattern: pattern, fault: fault})
	for _, ff := range f.files {
		if strings.Contains(ff.name, pattern) {
			ff.setFault(fault)
		}
	}
}

// ClearRules removes every rule, healing open files as well.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
	for _, ff := range f.files {
		ff.setFault(noFault())
	}
}

func noFault() Fault {
	return Fault{FailAfterBytes: -1}
}

func (f *FaultyFS) match(name string) Fault {
	fault := noFault()
	for _, r := range f.rules {
		if strings.Contains(name, r.pattern) {
			fault = r.fault
		}
	}
	return fault
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f.mu.Lock()
	fault := f.match(name)
	f.mu.Unlock()

	if fault.FailOnOpen {
		return nil, fault.err()
	}

	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}

	ff := &faultyFile{File: file, name: name, fault: fault}

	f.mu.Lock()
	f.files = append(f.files, ff)
	f.mu.Unlock()

	return ff, nil
}

func (f *FaultyFS) Remove(name string) error             { return f.FS.Remove(name) }
func (f *FaultyFS) Rename(oldpath, newpath string) error { return f.FS.Rename(oldpath, newpath) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) {
	return f.FS.Stat(name)
}
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}
func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error) { return f.FS.ReadDir(name) }

type faultyFile struct {
	File
	name string

	mu      sync.Mutex
	fault   Fault
	written int64
}

func (ff *faultyFile) setFault(fault Fault) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.fault = fault
	ff.written = 0
}

func (ff *faultyFile) current() Fault {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.fault
}

// reserve accounts n written bytes, failing if the limit would be crossed.
func (ff *faultyFile) reserve(n int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.fault.FailAfterBytes >= 0 && ff.written+int64(n) > ff.fault.FailAfterBytes {
		return ff.fault.err()
	}
	ff.written += int64(n)
	return nil
}

func (ff *faultyFile) Read(p []byte) (int, error) {
	if fault := ff.current(); fault.FailReads {
		return 0, fault.err()
	}
	return ff.File.Read(p)
}

func (ff *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	if fault := ff.current(); fault.FailReads {
		return 0, fault.err()
	}
	return ff.File.ReadAt(p, off)
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if err := ff.reserve(len(p)); err != nil {
		return 0, err
	}
	return ff.File.Write(p)
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if err := ff.reserve(len(p)); err != nil {
		return 0, err
	}
	return ff.File.WriteAt(p, off)
}

func (ff *faultyFile) Sync() error {
	if fault := ff.current(); fault.FailOnSync {
		return fault.err()
	}
	return ff.File.Sync()
}
