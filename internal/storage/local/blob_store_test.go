package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/social-harvester/internal/hash/sha256"
	"github.com/JakeFAU/social-harvester/internal/storage/blob"
	"github.com/JakeFAU/social-harvester/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "records")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.NotNil(t, store)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})
	t.Run("BaseDirIsFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "records/target-1/a.json", "application/json", strings.NewReader(`{"v":1}`))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, "records/target-1/a.json"), uri)

	_, err = store.PutObject(ctx, "records/target-1/a.json", "application/json", strings.NewReader(`{"v":2}`))
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "records/target-1/a.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "records/target-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	for _, p := range []string{"", "../escape.json", "a/../../escape.json"} {
		_, err := store.PutObject(context.Background(), p, "", strings.NewReader("x"))
		assert.Error(t, err, "path %q", p)
	}
}

func TestBackingRecordStore(t *testing.T) {
	dir := t.TempDir()
	blobs, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	records, err := blob.NewRecordStore(blobs, sha256.New(), "harvest")
	require.NoError(t, err)

	p, err := records.ObjectPath("ignored", "target-1", "job-9")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, "harvest/ignored/target-1/"))
}
