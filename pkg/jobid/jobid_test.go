package jobid

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate_SequentialFromAbsentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sequence")
	a := NewAllocator(path, Identity{Hostname: "node", Domain: "local"}, nil)

	for want := int64(1); want <= 5; want++ {
		id, err := a.Allocate()
		require.NoError(t, err)
		seq, ok := Sequence(id)
		require.True(t, ok)
		assert.Equal(t, want, seq)
	}

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "5", string(b))
}

func TestAllocate_UnparsableCounterRestartsAtOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sequence")
	require.NoError(t, os.WriteFile(path, []byte("garbage\n"), 0644))

	id, err := NewAllocator(path, Identity{Hostname: "h", Domain: "d"}, nil).Allocate()
	require.NoError(t, err)
	assert.Equal(t, "1.h.d", id)
}

func TestAllocate_ContinuesExistingCounter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sequence")
	require.NoError(t, os.WriteFile(path, []byte("41\n"), 0644))

	id, err := NewAllocator(path, Identity{Hostname: "h", Domain: "d"}, nil).Allocate()
	require.NoError(t, err)
	assert.Equal(t, "42.h.d", id)
}

func TestAllocate_WriteFailure(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission checks do not apply")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0755) })

	id, err := NewAllocator(filepath.Join(dir, "sequence"), Identity{Hostname: "h", Domain: "d"}, nil).Allocate()
	require.Error(t, err)
	assert.Empty(t, id)
	assert.True(t, IsWriteFailure(err))
}

func TestAllocate_MissingDirectoryIsWriteFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "sequence")
	_, err := NewAllocator(path, Identity{Hostname: "h", Domain: "d"}, nil).Allocate()
	require.Error(t, err)
	assert.True(t, IsWriteFailure(err))
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		seq  int64
		id   Identity
		want string
	}{
		{
			name: "without username",
			seq:  7,
			id:   Identity{Hostname: "localhost", Domain: "local"},
			want: "7.localhost.local",
		},
		{
			name: "with username",
			seq:  7,
			id:   Identity{Hostname: "localhost", Domain: "local", Username: "alice", UsernameInJobID: true},
			want: "7.localhost.local.alice",
		},
		{
			name: "username ignored when flag off",
			seq:  12,
			id:   Identity{Hostname: "h", Domain: "d", Username: "alice"},
			want: "12.h.d",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.seq, tt.id))
		})
	}
}

func TestFormat_DefaultsToCurrentUser(t *testing.T) {
	t.Setenv("USER", "bob")
	assert.Equal(t, "1.h.d.bob", Format(1, Identity{Hostname: "h", Domain: "d", UsernameInJobID: true}))
}

func TestSequence(t *testing.T) {
	n, ok := Sequence("10.host.domain")
	assert.True(t, ok)
	assert.Equal(t, int64(10), n)

	_, ok = Sequence("abc.host")
	assert.False(t, ok)
}
