package blockfs

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockfs/blockfs/pkg/storagefs"
)

func testOpts(t *testing.T) MountOptions {
	t.Helper()

	return MountOptions{
		MountMapPath:           filepath.Join(t.TempDir(), "store"),
		BlockSize:              64,
		MaxCacheSize:           1 << 20,
		FragmentationThreshold: 0.5,
	}
}

func mustMount(t *testing.T, opts MountOptions) *Store {
	t.Helper()

	s, err := mount(opts, storagefs.NewReal())
	if err != nil {
		t.Fatalf("mount: %v", err)
	}

	t.Cleanup(func() { _ = s.Close(false) })

	return s
}

func Test_Mount_CreatesMountMapAndDataFile(t *testing.T) {
	t.Parallel()

	opts := testOpts(t)
	s := mustMount(t, opts)

	if !s.dataOwner {
		t.Fatal("dataOwner=false, want true for first mount")
	}

	if s.Stats().LiveCount != 0 {
		t.Fatalf("LiveCount=%d, want 0 on fresh mount", s.Stats().LiveCount)
	}
}

func Test_Mount_SecondMount_MountsReadOnly(t *testing.T) {
	t.Parallel()

	opts := testOpts(t)
	first := mustMount(t, opts)

	second, err := mount(opts, storagefs.NewReal())
	if err != nil {
		t.Fatalf("second mount: %v", err)
	}

	defer func() { _ = second.Close(false) }()

	if second.dataOwner {
		t.Fatal("second mount is dataOwner=true, want false")
	}

	if err := second.Write("x", []byte("y")); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("Write on read-only store err=%v, want ErrReadOnly", err)
	}

	_ = first
}

func Test_Mount_FailIfNotOwner_ReturnsErrAlreadyMounted(t *testing.T) {
	t.Parallel()

	opts := testOpts(t)
	opts.FailIfNotOwner = true

	_ = mustMount(t, opts)

	_, err := mount(opts, storagefs.NewReal())
	if !errors.Is(err, ErrAlreadyMounted) {
		t.Fatalf("err=%v, want ErrAlreadyMounted", err)
	}
}

func Test_Mount_InvalidOptions_RejectedBeforeAnyIO(t *testing.T) {
	t.Parallel()

	opts := testOpts(t)
	opts.BlockSize = 3 // not a multiple of 8

	if _, err := mount(opts, storagefs.NewReal()); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("err=%v, want ErrInvalidOptions", err)
	}
}

func Test_Mount_ReopensExistingStoreWithPriorData(t *testing.T) {
	t.Parallel()

	opts := testOpts(t)

	s1, err := mount(opts, storagefs.NewReal())
	require.NoError(t, err)
	require.NoError(t, s1.Write("name", []byte("payload")))
	require.NoError(t, s1.Close(false))

	s2, err := mount(opts, storagefs.NewReal())
	require.NoError(t, err)

	defer func() { _ = s2.Close(false) }()

	require.True(t, s2.Has("name"), "remounted store is missing a name written before close")

	out := make([]byte, s2.MustFilesize("name"))
	require.NoError(t, s2.Read("name", out))
	require.Equal(t, "payload", string(out))
}

func Test_Close_IsIdempotent(t *testing.T) {
	t.Parallel()

	s := mustMount(t, testOpts(t))

	if err := s.Close(false); err != nil {
		t.Fatalf("first Close: %v", err)
	}

	if err := s.Close(false); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func Test_Close_UnlinkEmpty_RemovesFilesWhenIndexEmpty(t *testing.T) {
	t.Parallel()

	opts := testOpts(t)
	s := mustMount(t, opts)

	if err := s.Close(true); err != nil {
		t.Fatalf("Close: %v", err)
	}

	exists, err := storagefs.NewReal().Exists(opts.MountMapPath)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}

	if exists {
		t.Fatal("mount-map still exists after Close(true) on an empty store")
	}
}

func Test_OperationsOnClosedStore_ReturnErrClosed(t *testing.T) {
	t.Parallel()

	s := mustMount(t, testOpts(t))

	if err := s.Close(false); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := s.Write("a", []byte("b")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Write err=%v, want ErrClosed", err)
	}

	if err := s.Read("a", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Read err=%v, want ErrClosed", err)
	}

	if err := s.Unlink("a"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Unlink err=%v, want ErrClosed", err)
	}
}
