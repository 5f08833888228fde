package fs_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/storage/fs"
)

func TestStoreRetrieveDelete(t *testing.T) {
	ctx := context.Background()
	svc, err := fs.NewService("local", t.TempDir())
	require.NoError(t, err)

	id, err := svc.Store(ctx, strings.NewReader("file contents"))
	require.NoError(t, err)

	r, err := svc.Retrieve(ctx, id)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "file contents", string(data))

	ok, err := svc.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.Retrieve(ctx, id)
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))

	ok, err = svc.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok, "delete is idempotent")
}

func TestNewServiceCreatesDirectory(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "blobs")
	_, err := fs.NewService("local", base)
	require.NoError(t, err)

	info, err := os.Stat(base)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPathTraversalRejected(t *testing.T) {
	ctx := context.Background()
	svc, err := fs.NewService("local", t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"../escape", "/etc/passwd", "a/../../b"} {
		_, err := svc.Retrieve(ctx, id)
		assert.True(t, domain.IsCode(err, domain.CodeInvalidArgument), id)
	}
}
