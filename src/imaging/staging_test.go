package imaging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestStageAndRelease(t *testing.T) {
	dir := t.TempDir()
	stager := NewDiskStager(dir, logrus.New())

	asset, err := stager.Stage(bytes.NewReader([]byte("payload")), ContentTypePNG)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(asset.Path))
	assert.True(t, strings.HasSuffix(asset.Path, ".png"))
	assert.Equal(t, int64(7), asset.Size)

	data, err := asset.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	stager.Release(asset)
	_, err = os.Stat(asset.Path)
	assert.True(t, os.IsNotExist(err))

	// second release is a no-op
	stager.Release(asset)
	stager.Release(nil)
}

func TestStageUniqueNames(t *testing.T) {
	stager := NewDiskStager(t.TempDir(), logrus.New())
	a, err := stager.Stage(bytes.NewReader([]byte("a")), ContentTypeJPEG)
	require.NoError(t, err)
	b, err := stager.Stage(bytes.NewReader([]byte("b")), ContentTypeJPEG)
	require.NoError(t, err)
	assert.NotEqual(t, a.Path, b.Path)
}

func TestStageFailure(t *testing.T) {
	dir := t.TempDir()
	stager := NewDiskStager(dir, logrus.New())

	_, err := stager.Stage(failingReader{}, ContentTypeJPEG)
	require.Error(t, err)
	assert.Equal(t, app.KindStagingFailure, app.KindOf(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file must be removed")

	_, err = NewDiskStager(filepath.Join(dir, "missing"), logrus.New()).Stage(bytes.NewReader(nil), ContentTypeJPEG)
	assert.Equal(t, app.KindStagingFailure, app.KindOf(err))
}

func TestReleaseFailureIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	stager := NewDiskStager(t.TempDir(), logger)

	dir := t.TempDir()
	// a non-empty directory can not be removed with os.Remove
	require.NoError(t, os.WriteFile(filepath.Join(dir, "child"), []byte("x"), 0o600))
	stager.Release(&Asset{Path: dir})

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}
