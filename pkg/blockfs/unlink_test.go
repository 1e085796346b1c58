package blockfs

import (
	"errors"
	"testing"
)

func Test_Unlink_RemovesFromIndexAndFreesNode(t *testing.T) {
	t.Parallel()

	s := mustMount(t, testOpts(t))

	if err := s.Write("k", []byte("value")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := s.Unlink("k"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}

	if s.Has("k") {
		t.Fatal("Has(k)=true after Unlink")
	}

	if s.free.size != 1 {
		t.Fatalf("free.size=%d, want 1", s.free.size)
	}
}

func Test_Unlink_UnknownName_ReturnsErrNotFound(t *testing.T) {
	t.Parallel()

	s := mustMount(t, testOpts(t))

	if err := s.Unlink("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func Test_Unlink_ThenWrite_ReusesExactFit(t *testing.T) {
	t.Parallel()

	s := mustMount(t, testOpts(t))

	if err := s.Write("a", []byte("aaaa")); err != nil {
		t.Fatalf("Write a: %v", err)
	}

	freedSize := s.index["a"].nodeSize

	if err := s.Unlink("a"); err != nil {
		t.Fatalf("Unlink a: %v", err)
	}

	if err := s.Write("b", []byte("bbbb")); err != nil {
		t.Fatalf("Write b: %v", err)
	}

	if s.index["b"].nodeSize != freedSize {
		t.Fatalf("new node size=%d, want reused size %d", s.index["b"].nodeSize, freedSize)
	}

	if s.free.size != 0 {
		t.Fatalf("free.size=%d, want 0 after reuse", s.free.size)
	}
}

func Test_Unlink_OnReadOnlyStore_ReturnsErrReadOnly(t *testing.T) {
	t.Parallel()

	opts := testOpts(t)
	owner := mustMount(t, opts)

	if err := owner.Write("k", []byte("v")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reader, err := mount(opts, owner.fsys)
	if err != nil {
		t.Fatalf("second mount: %v", err)
	}

	defer func() { _ = reader.Close(false) }()

	if err := reader.Unlink("k"); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("Unlink err=%v, want ErrReadOnly", err)
	}
}
