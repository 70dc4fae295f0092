package layout

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
)

// json is a drop-in replacement for encoding/json.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Segment references a byte range of an external file. The concatenation
// of a dataset's segments forms its raw row-major bytes.
type Segment struct {
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
}

// EncodeManifest serializes an external-storage manifest.
func EncodeManifest(segments []Segment) ([]byte, error) {
	return json.Marshal(segments)
}

// DecodeManifest parses an external-storage manifest.
func DecodeManifest(data []byte) ([]Segment, error) {
	var segments []Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, fmt.Errorf("decoding external manifest: %w", err)
	}
	return segments, nil
}

// External reads a dataset whose bytes live in external files described by
// a manifest. Segment paths are resolved relative to baseDir (the
// container file's directory). The manifest is accepted opaquely at
// creation time; files are only opened when a read call needs them.
type External struct {
	segments []Segment
	baseDir  string
	dims     []uint64
	elemSize uint64
}

// NewExternal creates an external layout handler.
func NewExternal(segments []Segment, baseDir string, dims []uint64, elemSize uint64) *External {
	return &External{
		segments: segments,
		baseDir:  baseDir,
		dims:     dims,
		elemSize: elemSize,
	}
}

func (e *External) Class() Class {
	return ClassExternal
}

// Segments returns the manifest entries.
func (e *External) Segments() []Segment {
	return e.segments
}

// readAt fills dst from the virtual concatenation of the segments,
// starting at the given byte offset.
func (e *External) readAt(offset uint64, dst []byte) error {
	need := uint64(len(dst))
	filled := uint64(0)
	segStart := uint64(0)

	for _, seg := range e.segments {
		segLen := uint64(seg.Length)
		if offset+filled < segStart+segLen && filled < need {
			inSeg := offset + filled - segStart
			n := min64(segLen-inSeg, need-filled)

			path := seg.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(e.baseDir, path)
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening external file: %w", err)
			}
			_, err = f.ReadAt(dst[filled:filled+n], seg.Offset+int64(inSeg))
			f.Close()
			if err != nil {
				return fmt.Errorf("reading external file %q: %w", seg.Path, err)
			}
			filled += n
		}
		segStart += segLen
		if filled == need {
			return nil
		}
	}

	if filled != need {
		return fmt.Errorf("external manifest covers %d bytes, read of %d at %d overruns it",
			segStart, need, offset)
	}
	return nil
}

// Read reads the full dataset across all segments.
func (e *External) Read() ([]byte, error) {
	out := make([]byte, dataSize(e.dims, e.elemSize))
	if len(out) == 0 {
		return out, nil
	}
	if err := e.readAt(0, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadSlice reads a hyperslab, fetching only the selected runs from the
// external files.
func (e *External) ReadSlice(start, count []uint64) ([]byte, error) {
	return readHyperslab(e.readAt, e.dims, start, count, e.elemSize)
}
