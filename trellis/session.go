package trellis

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/trellis-data/trellis/internal/alloc"
	"github.com/trellis-data/trellis/internal/binary"
)

type mode uint8

const (
	modeRead mode = iota + 1
	modeWrite
)

// Session owns one open container file. All Group, Dataset, ArrayView and
// RegionRef handles are scoped to the Session that produced them and fail
// with ErrInvalidHandle once it closes.
//
// A Session is single-threaded by contract: callers serialize access.
type Session struct {
	path   string
	mode   mode
	file   *os.File // read mode only
	reader *binary.Reader
	root   *node
	closed bool
}

// writers tracks paths held by write-mode sessions in this process.
// Concurrent write sessions over one path fail fast instead of racing.
var writers = struct {
	sync.Mutex
	paths map[string]bool
}{paths: make(map[string]bool)}

func acquireWriter(path string) error {
	writers.Lock()
	defer writers.Unlock()
	if writers.paths[path] {
		return fmt.Errorf("%w: %s", ErrResourceBusy, path)
	}
	writers.paths[path] = true
	return nil
}

func releaseWriter(path string) {
	writers.Lock()
	defer writers.Unlock()
	delete(writers.paths, path)
}

// Create opens a write-create Session. The container exists only in memory
// until Commit; Close without Commit leaves the path untouched (or, for a
// pre-existing file, at its last committed state).
func Create(path string) (*Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := acquireWriter(abs); err != nil {
		return nil, err
	}
	return &Session{
		path: abs,
		mode: modeWrite,
		root: newGroupNode("/", nil),
	}, nil
}

// Open opens a read-only Session over an existing container. Concurrent
// read-only Sessions over one path are permitted and share no mutable
// state.
func Open(path string) (*Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}

	reader := binary.NewReader(f)
	s := &Session{
		path:   abs,
		mode:   modeRead,
		file:   f,
		reader: reader,
	}

	root, err := s.readContainer()
	if err != nil {
		f.Close()
		return nil, err
	}
	s.root = root

	return s, nil
}

// Path returns the container file path.
func (s *Session) Path() string {
	return s.path
}

// Root returns the root group.
func (s *Session) Root() *Group {
	return &Group{s: s, n: s.root}
}

// Writable reports whether the session was opened in write-create mode.
func (s *Session) Writable() bool {
	return s.mode == modeWrite
}

// check validates that the session is open and the node is live.
func (s *Session) check(n *node) error {
	if s.closed || n.invalid {
		return ErrInvalidHandle
	}
	return nil
}

// checkWrite additionally requires write mode.
func (s *Session) checkWrite(n *node) error {
	if err := s.check(n); err != nil {
		return err
	}
	if s.mode != modeWrite {
		return ErrReadOnlyViolation
	}
	return nil
}

// Commit serializes the entire tree into the container file in one pass.
// The new generation is written to a temporary file and renamed over the
// target only after a successful sync, so a failed commit leaves the
// previous committed file intact and never a truncated-but-valid one.
// Commit may be called more than once; each call writes a full generation.
func (s *Session) Commit() error {
	if s.closed {
		return ErrInvalidHandle
	}
	if s.mode != modeWrite {
		return ErrReadOnlyViolation
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating commit target: %w", err)
	}

	err = s.writeContainer(f)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit failed: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing commit: %w", err)
	}
	return nil
}

// writeContainer serializes the tree into f: all node blocks first, then
// the superblock at offset 0.
func (s *Session) writeContainer(f *os.File) error {
	w := binary.NewWriter(f)
	a := alloc.New(uint64(binary.BlockSize(superblockBodyLen)))

	rootAddr, err := writeNode(w, a, s.root)
	if err != nil {
		return err
	}
	return writeSuperblock(w, rootAddr, a.EOFAddr())
}

// Close releases the session. It is idempotent and invalidates every
// handle obtained through the session. Uncommitted in-memory changes are
// dropped, never partially flushed.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.mode == modeWrite {
		releaseWriter(s.path)
	}
	if s.root != nil {
		s.root.invalidate()
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// OpenGroup opens a group by absolute path.
func (s *Session) OpenGroup(path string) (*Group, error) {
	if s.closed {
		return nil, ErrInvalidHandle
	}
	return s.Root().OpenGroup(path)
}

// OpenDataset opens a dataset by absolute path.
func (s *Session) OpenDataset(path string) (*Dataset, error) {
	if s.closed {
		return nil, ErrInvalidHandle
	}
	return s.Root().OpenDataset(path)
}

// OpenTable opens a dynamic table by absolute path.
func (s *Session) OpenTable(path string) (*DynamicTable, error) {
	if s.closed {
		return nil, ErrInvalidHandle
	}
	return s.Root().OpenTable(path)
}
