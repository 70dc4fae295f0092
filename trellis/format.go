package trellis

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/trellis-data/trellis/internal/alloc"
	"github.com/trellis-data/trellis/internal/binary"
	"github.com/trellis-data/trellis/internal/dtype"
	"github.com/trellis-data/trellis/internal/layout"
)

// Container block signatures and versions.
const (
	superblockSig = "TRLS"
	groupSig      = "GRUP"
	datasetSig    = "DSET"
	attrSig       = "ATTR"
	manifestSig   = "XMAN"

	formatVersion = 1

	// Superblock body: flags (1) + root address (8) + EOF address (8).
	superblockBodyLen = 17
)

// writeSuperblock writes the superblock at offset 0. It is written last,
// once every node block's address is known.
func writeSuperblock(w *binary.Writer, rootAddr, eofAddr uint64) error {
	enc := binary.NewEncoder()
	enc.PutUint8(0) // flags, reserved
	enc.PutUint64(rootAddr)
	enc.PutUint64(eofAddr)
	_, err := w.At(0).WriteBlock(superblockSig, formatVersion, enc.Bytes())
	return err
}

// writeAttrs serializes a node's attribute map as one msgpack blob and
// returns the blob block's address, or 0 when there are no attributes.
func writeAttrs(w *binary.Writer, a *alloc.Allocator, attrs map[string]attrValue) (uint64, error) {
	if len(attrs) == 0 {
		return 0, nil
	}
	blob, err := msgpack.Marshal(attrs)
	if err != nil {
		return 0, fmt.Errorf("encoding attributes: %w", err)
	}
	addr := a.Alloc(uint64(binary.BlockSize(len(blob))))
	if _, err := w.At(int64(addr)).WriteBlock(attrSig, formatVersion, blob); err != nil {
		return 0, fmt.Errorf("writing attribute blob: %w", err)
	}
	return addr, nil
}

// writeNode serializes a node and its descendants, returning the node
// block's address. Children are written before their parent so every link
// address is known when the parent's block is built.
func writeNode(w *binary.Writer, a *alloc.Allocator, n *node) (uint64, error) {
	switch n.kind {
	case KindGroup:
		return writeGroupNode(w, a, n)
	case KindDataset:
		return writeDatasetNode(w, a, n)
	default:
		return 0, fmt.Errorf("unknown node kind %d", n.kind)
	}
}

func writeGroupNode(w *binary.Writer, a *alloc.Allocator, n *node) (uint64, error) {
	type link struct {
		name string
		kind Kind
		addr uint64
	}
	links := make([]link, 0, len(n.children))
	for _, child := range sortedChildren(n) {
		addr, err := writeNode(w, a, child)
		if err != nil {
			return 0, err
		}
		links = append(links, link{name: child.name, kind: child.kind, addr: addr})
	}

	attrAddr, err := writeAttrs(w, a, n.attrs)
	if err != nil {
		return 0, err
	}

	enc := binary.NewEncoder()
	enc.PutUint64(attrAddr)
	enc.PutUint32(uint32(len(links)))
	for _, l := range links {
		enc.PutString(l.name)
		enc.PutUint8(uint8(l.kind))
		enc.PutUint64(l.addr)
	}

	addr := a.Alloc(uint64(binary.BlockSize(enc.Len())))
	if _, err := w.At(int64(addr)).WriteBlock(groupSig, formatVersion, enc.Bytes()); err != nil {
		return 0, fmt.Errorf("writing group %q: %w", n.path(), err)
	}
	return addr, nil
}

func writeDatasetNode(w *binary.Writer, a *alloc.Allocator, n *node) (uint64, error) {
	var (
		class                       layout.Class
		dataAddr, dataLen, auxAddr  uint64
		err                         error
	)

	switch {
	case n.segments != nil:
		class = layout.ClassExternal
		manifest, merr := layout.EncodeManifest(n.segments)
		if merr != nil {
			return 0, fmt.Errorf("dataset %q: %w", n.path(), merr)
		}
		auxAddr = a.Alloc(uint64(binary.BlockSize(len(manifest))))
		if _, err = w.At(int64(auxAddr)).WriteBlock(manifestSig, formatVersion, manifest); err != nil {
			return 0, fmt.Errorf("writing manifest for %q: %w", n.path(), err)
		}

	case n.chunkDims != nil:
		class = layout.ClassChunked
		auxAddr, err = layout.WriteChunked(w, a, n.buf, n.shape, n.chunkDims,
			uint64(n.spec.ElementSize()), n.compression)
		if err != nil {
			return 0, fmt.Errorf("dataset %q: %w", n.path(), err)
		}

	default:
		class = layout.ClassContiguous
		dataAddr, err = layout.WriteContiguous(w, a, n.buf)
		if err != nil {
			return 0, fmt.Errorf("dataset %q: %w", n.path(), err)
		}
		dataLen = uint64(len(n.buf))
	}

	attrAddr, err := writeAttrs(w, a, n.attrs)
	if err != nil {
		return 0, fmt.Errorf("dataset %q: %w", n.path(), err)
	}

	enc := binary.NewEncoder()
	enc.PutUint8(uint8(n.spec.Tag))
	enc.PutUint8(uint8(n.spec.Mode))
	enc.PutUint32(uint32(n.spec.Width))
	enc.PutUint64Slice(n.shape)
	if n.appendable {
		enc.PutUint8(1)
	} else {
		enc.PutUint8(0)
	}
	enc.PutUint8(uint8(class))
	enc.PutUint8(uint8(n.compression))
	enc.PutUint64Slice(n.chunkDims)
	enc.PutUint64(dataAddr)
	enc.PutUint64(dataLen)
	enc.PutUint64(auxAddr)
	enc.PutUint64(attrAddr)

	addr := a.Alloc(uint64(binary.BlockSize(enc.Len())))
	if _, err := w.At(int64(addr)).WriteBlock(datasetSig, formatVersion, enc.Bytes()); err != nil {
		return 0, fmt.Errorf("writing dataset %q: %w", n.path(), err)
	}
	return addr, nil
}

// sortedChildren returns children in name order so committed files are
// deterministic. Child order carries no semantics (names are unique).
func sortedChildren(n *node) []*node {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*node, 0, len(names))
	for _, name := range names {
		out = append(out, n.children[name])
	}
	return out
}

// readContainer parses the superblock and the full node tree. Handles are
// built eagerly; dataset bytes stay on disk until a view reads them.
func (s *Session) readContainer() (*node, error) {
	magic := make([]byte, 4)
	if err := s.reader.ReadAt(magic, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotTrellis, err)
	}
	if string(magic) != superblockSig {
		return nil, ErrNotTrellis
	}

	body, err := s.reader.At(0).ReadBlock(superblockSig, formatVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: superblock: %w", ErrCorruptData, err)
	}
	dec := binary.NewDecoder(body)
	_ = dec.Uint8() // flags
	rootAddr := dec.Uint64()
	_ = dec.Uint64() // EOF address
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: superblock: %w", ErrCorruptData, err)
	}

	root, err := s.readNode(rootAddr, "/", KindGroup, nil)
	if err != nil {
		return nil, err
	}
	return root, nil
}

func (s *Session) readAttrs(addr uint64) (map[string]attrValue, error) {
	attrs := make(map[string]attrValue)
	if addr == 0 {
		return attrs, nil
	}
	blob, err := s.reader.At(int64(addr)).ReadBlock(attrSig, formatVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: attribute blob: %w", ErrCorruptData, err)
	}
	if err := msgpack.Unmarshal(blob, &attrs); err != nil {
		return nil, fmt.Errorf("%w: attribute blob: %w", ErrCorruptData, err)
	}
	return attrs, nil
}

func (s *Session) readNode(addr uint64, name string, kind Kind, parent *node) (*node, error) {
	switch kind {
	case KindGroup:
		return s.readGroupNode(addr, name, parent)
	case KindDataset:
		return s.readDatasetNode(addr, name, parent)
	default:
		return nil, fmt.Errorf("%w: unknown node kind %d", ErrCorruptData, kind)
	}
}

func (s *Session) readGroupNode(addr uint64, name string, parent *node) (*node, error) {
	body, err := s.reader.At(int64(addr)).ReadBlock(groupSig, formatVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: group %q: %w", ErrCorruptData, name, err)
	}

	dec := binary.NewDecoder(body)
	attrAddr := dec.Uint64()
	count := int(dec.Uint32())
	type link struct {
		name string
		kind Kind
		addr uint64
	}
	links := make([]link, 0, count)
	for i := 0; i < count; i++ {
		links = append(links, link{
			name: dec.String(),
			kind: Kind(dec.Uint8()),
			addr: dec.Uint64(),
		})
	}
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: group %q: %w", ErrCorruptData, name, err)
	}

	n := newGroupNode(name, parent)
	if n.attrs, err = s.readAttrs(attrAddr); err != nil {
		return nil, fmt.Errorf("group %q: %w", name, err)
	}

	for _, l := range links {
		child, err := s.readNode(l.addr, l.name, l.kind, n)
		if err != nil {
			return nil, err
		}
		n.children[l.name] = child
	}
	return n, nil
}

func (s *Session) readDatasetNode(addr uint64, name string, parent *node) (*node, error) {
	body, err := s.reader.At(int64(addr)).ReadBlock(datasetSig, formatVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: dataset %q: %w", ErrCorruptData, name, err)
	}

	dec := binary.NewDecoder(body)
	n := &node{
		kind:   KindDataset,
		name:   name,
		parent: parent,
		spec: dtype.Spec{
			Tag:   dtype.Tag(dec.Uint8()),
			Mode:  dtype.StringMode(dec.Uint8()),
			Width: int(dec.Uint32()),
		},
	}
	n.shape = dec.Uint64Slice()
	n.appendable = dec.Uint8() == 1
	class := layout.Class(dec.Uint8())
	n.compression = layout.Compression(dec.Uint8())
	n.chunkDims = dec.Uint64Slice()
	dataAddr := dec.Uint64()
	dataLen := dec.Uint64()
	auxAddr := dec.Uint64()
	attrAddr := dec.Uint64()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: dataset %q: %w", ErrCorruptData, name, err)
	}

	if n.attrs, err = s.readAttrs(attrAddr); err != nil {
		return nil, fmt.Errorf("dataset %q: %w", name, err)
	}

	elemSize := uint64(n.spec.ElementSize())
	switch class {
	case layout.ClassContiguous:
		n.lay = layout.NewContiguous(s.reader, dataAddr, dataLen, n.shape, elemSize)

	case layout.ClassChunked:
		n.lay, err = layout.NewChunked(s.reader, auxAddr, n.shape, n.chunkDims, elemSize, n.compression)
		if err != nil {
			return nil, fmt.Errorf("%w: dataset %q: %w", ErrCorruptData, name, err)
		}

	case layout.ClassExternal:
		manifest, merr := s.reader.At(int64(auxAddr)).ReadBlock(manifestSig, formatVersion)
		if merr != nil {
			return nil, fmt.Errorf("%w: dataset %q manifest: %w", ErrCorruptData, name, merr)
		}
		n.segments, err = layout.DecodeManifest(manifest)
		if err != nil {
			return nil, fmt.Errorf("%w: dataset %q: %w", ErrCorruptData, name, err)
		}
		n.lay = layout.NewExternal(n.segments, filepath.Dir(s.path), n.shape, elemSize)

	default:
		return nil, fmt.Errorf("%w: dataset %q: unknown layout class %d", ErrCorruptData, name, class)
	}

	return n, nil
}
