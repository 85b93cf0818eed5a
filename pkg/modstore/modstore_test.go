package modstore

import (
	"bytes"
	"errors"
	"testing"

	"github.com/emberchain/ember/internal/types"
	"github.com/emberchain/ember/pkg/vm/codec"
	"github.com/emberchain/ember/pkg/vm/ir"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig("")
	cfg.InMemory = true
	cfg.SyncWrites = false
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func encodedModule(t *testing.T) []byte {
	t.Helper()
	m := &ir.Module{
		Version: ir.Version,
		Consts:  []ir.Const{ir.IntConst(7)},
		Funcs: []ir.Func{
			{ID: 0, ReturnCount: 1, Blocks: []ir.Block{
				{Label: 0, Code: []ir.Instr{
					{Op: ir.OpPushConst, A: 0},
					{Op: ir.OpRet},
				}},
			}},
		},
	}
	raw, err := codec.Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return raw
}

// TestPutGet tests the content-addressed round trip.
func TestPutGet(t *testing.T) {
	s := openMem(t)
	raw := encodedModule(t)

	digest, err := s.Put(raw)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if digest != types.DigestOf(raw) {
		t.Errorf("Put digest mismatch")
	}

	got, err := s.Raw(digest)
	if err != nil {
		t.Fatalf("Raw failed: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("Raw returned different bytes")
	}

	m, err := s.Get(digest)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(m.Funcs) != 1 || m.Funcs[0].ID != 0 {
		t.Errorf("Get decoded wrong module")
	}
}

// TestPutRejectsGarbage tests that undecodable blobs are refused.
func TestPutRejectsGarbage(t *testing.T) {
	s := openMem(t)
	if _, err := s.Put([]byte("not a module")); err == nil {
		t.Errorf("Put(garbage) succeeded, want error")
	}
}

// TestHasDelete tests existence checks and removal.
func TestHasDelete(t *testing.T) {
	s := openMem(t)
	digest, err := s.Put(encodedModule(t))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	found, err := s.Has(digest)
	if err != nil || !found {
		t.Errorf("Has = %v, %v, want true", found, err)
	}
	if err := s.Delete(digest); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	found, err = s.Has(digest)
	if err != nil || found {
		t.Errorf("Has after delete = %v, %v, want false", found, err)
	}
	if _, err := s.Raw(digest); !errors.Is(err, ErrNotFound) {
		t.Errorf("Raw after delete = %v, want ErrNotFound", err)
	}

	// Deleting again is a no-op.
	if err := s.Delete(digest); err != nil {
		t.Errorf("second Delete = %v, want nil", err)
	}
}

// TestPutIdempotent tests that storing the same module twice yields the
// same digest.
func TestPutIdempotent(t *testing.T) {
	s := openMem(t)
	raw := encodedModule(t)
	d1, err := s.Put(raw)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	d2, err := s.Put(raw)
	if err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	if d1 != d2 {
		t.Errorf("digests differ: %s vs %s", d1, d2)
	}
}

// TestList tests digest enumeration.
func TestList(t *testing.T) {
	s := openMem(t)

	ds, err := s.List()
	if err != nil || len(ds) != 0 {
		t.Fatalf("List on empty store = %v, %v, want none", ds, err)
	}

	raw := encodedModule(t)
	d1, err := s.Put(raw)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	m, err := codec.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	m.Consts[0] = ir.IntConst(8)
	raw2, err := codec.Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	d2, err := s.Put(raw2)
	if err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	ds, err = s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ds) != 2 {
		t.Fatalf("List returned %d digests, want 2", len(ds))
	}
	seen := map[types.Digest]bool{ds[0]: true, ds[1]: true}
	if !seen[d1] || !seen[d2] {
		t.Errorf("List = %v, want both stored digests", ds)
	}
}

// TestClosed tests the closed-store error.
func TestClosed(t *testing.T) {
	cfg := DefaultConfig("")
	cfg.InMemory = true
	cfg.SyncWrites = false
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.Close()
	if _, err := s.Put(encodedModule(t)); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after close = %v, want ErrClosed", err)
	}
}
