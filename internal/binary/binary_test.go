package binary

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "blocks.bin"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestBlockRoundTrip(t *testing.T) {
	f := tempFile(t)

	body := []byte("hello block body")
	w := NewWriter(f)
	n, err := w.At(64).WriteBlock("TEST", 3, body)
	if err != nil {
		t.Fatalf("WriteBlock failed: %v", err)
	}
	if n != BlockSize(len(body)) {
		t.Errorf("expected %d bytes written, got %d", BlockSize(len(body)), n)
	}

	got, err := NewReader(f).At(64).ReadBlock("TEST", 3)
	if err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("expected body %q, got %q", body, got)
	}
}

func TestBlockEmptyBody(t *testing.T) {
	f := tempFile(t)

	w := NewWriter(f)
	if _, err := w.WriteBlock("EMPT", 1, nil); err != nil {
		t.Fatalf("WriteBlock failed: %v", err)
	}
	got, err := NewReader(f).ReadBlock("EMPT", 1)
	if err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty body, got %d bytes", len(got))
	}
}

func TestBlockValidation(t *testing.T) {
	f := tempFile(t)

	body := []byte{1, 2, 3, 4}
	if _, err := NewWriter(f).WriteBlock("GOOD", 1, body); err != nil {
		t.Fatal(err)
	}

	// Wrong signature.
	if _, err := NewReader(f).ReadBlock("EVIL", 1); !errors.Is(err, ErrBadBlock) {
		t.Errorf("expected ErrBadBlock for wrong signature, got %v", err)
	}

	// Wrong version.
	if _, err := NewReader(f).ReadBlock("GOOD", 2); !errors.Is(err, ErrBadBlock) {
		t.Errorf("expected ErrBadBlock for wrong version, got %v", err)
	}

	// Flip one body byte; the checksum must catch it.
	if _, err := f.WriteAt([]byte{0xFF}, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := NewReader(f).ReadBlock("GOOD", 1); !errors.Is(err, ErrBadBlock) {
		t.Errorf("expected ErrBadBlock for corrupted body, got %v", err)
	}
}

func TestEncoderDecoderRoundTrip(t *testing.T) {
	enc := NewEncoder()
	enc.PutUint8(7)
	enc.PutUint32(40_000)
	enc.PutUint64(1 << 40)
	enc.PutString("colnames")
	enc.PutBytes([]byte{9, 8, 7})
	enc.PutUint64Slice([]uint64{10, 20, 30})

	dec := NewDecoder(enc.Bytes())
	if got := dec.Uint8(); got != 7 {
		t.Errorf("Uint8: got %d", got)
	}
	if got := dec.Uint32(); got != 40_000 {
		t.Errorf("Uint32: got %d", got)
	}
	if got := dec.Uint64(); got != 1<<40 {
		t.Errorf("Uint64: got %d", got)
	}
	if got := dec.String(); got != "colnames" {
		t.Errorf("String: got %q", got)
	}
	if got := dec.Bytes(); len(got) != 3 || got[0] != 9 {
		t.Errorf("Bytes: got %v", got)
	}
	if got := dec.Uint64Slice(); len(got) != 3 || got[2] != 30 {
		t.Errorf("Uint64Slice: got %v", got)
	}
	if err := dec.Err(); err != nil {
		t.Errorf("decoder error after clean round trip: %v", err)
	}
}

func TestDecoderStickyError(t *testing.T) {
	dec := NewDecoder([]byte{1})
	dec.Uint64() // overruns
	if dec.Err() == nil {
		t.Fatal("expected error after overrun")
	}
	// Further reads return zero values without panicking.
	if got := dec.Uint32(); got != 0 {
		t.Errorf("expected zero after sticky error, got %d", got)
	}
	if got := dec.String(); got != "" {
		t.Errorf("expected empty string after sticky error, got %q", got)
	}
}
