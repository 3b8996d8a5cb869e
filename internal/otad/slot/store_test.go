package slot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBootStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileBootStore(filepath.Join(dir, DefaultBootFile))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoTable)

	want := &Table{
		Version:    TableVersion,
		Boot:       "b",
		Generation: 3,
		Images: map[ID]*Image{
			"b": {Size: 42, Digest: "sha256:00", Generation: 3, CommittedAt: time.Unix(1700000000, 0).UTC()},
		},
	}
	require.NoError(t, store.Store(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestFileBootStoreDirSyncFailureStillCommits(t *testing.T) {
	dir := t.TempDir()
	store := NewFileBootStore(filepath.Join(dir, DefaultBootFile))
	var synced []string
	store.syncDir = func(d string) error {
		synced = append(synced, d)
		return errors.New("input/output error")
	}

	m, err := NewManager(NewMemMedium(), store, []Spec{{ID: "a", Capacity: 64}, {ID: "b", Capacity: 64}})
	require.NoError(t, err)

	target, err := m.NextTargetSlot()
	require.NoError(t, err)
	h, err := m.OpenForWrite(context.Background(), target)
	require.NoError(t, err)
	require.NoError(t, m.Append(h, []byte("image")))
	require.NoError(t, m.FinalizeAndSwitchBoot(context.Background(), h))
	assert.Equal(t, []string{dir}, synced)

	boot, err := m.BootTarget()
	require.NoError(t, err)
	assert.Equal(t, ID("b"), boot.ID)

	onDisk, err := NewFileBootStore(store.Path()).Load()
	require.NoError(t, err)
	assert.Equal(t, boot.ID, onDisk.Boot, "memory and disk agree on the boot slot")

	next, err := m.NextTargetSlot()
	require.NoError(t, err)
	assert.Equal(t, ID("a"), next.ID, "the persisted boot slot is never the next target")
}

func TestFileBootStoreRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultBootFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"boot":"a"}`), 0o644))

	_, err := NewFileBootStore(path).Load()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoTable)
}

func TestFileBootStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultBootFile)
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	_, err := NewFileBootStore(path).Load()
	assert.Error(t, err)
}

func TestFileBootStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	medium, err := NewFileMedium(filepath.Join(dir, "slots"))
	require.NoError(t, err)
	store := NewFileBootStore(filepath.Join(dir, DefaultBootFile))

	m, err := NewManager(medium, store, testLayout)
	require.NoError(t, err)

	ctx := context.Background()
	target, err := m.NextTargetSlot()
	require.NoError(t, err)
	h, err := m.OpenForWrite(ctx, target)
	require.NoError(t, err)
	require.NoError(t, m.Append(h, []byte("image")))
	require.NoError(t, m.FinalizeAndSwitchBoot(ctx, h))

	data, err := os.ReadFile(medium.Path("b"))
	require.NoError(t, err)
	assert.Equal(t, "image", string(data))

	reopened, err := NewManager(medium, store, testLayout)
	require.NoError(t, err)
	boot, err := reopened.BootTarget()
	require.NoError(t, err)
	assert.Equal(t, ID("b"), boot.ID)
	assert.Equal(t, uint64(1), reopened.Generation())
}

func TestMemBootStoreIsolatesCallers(t *testing.T) {
	store := NewMemBootStore()
	in := &Table{Version: TableVersion, Boot: "a", Images: map[ID]*Image{}}
	require.NoError(t, store.Store(in))

	in.Boot = "b"
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, ID("a"), got.Boot)
}
