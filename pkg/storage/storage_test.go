package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-scanner/pkg/types"
)

func TestSaveAndList(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)

	img := types.NewArtifact("scanned-product.jpg", "image/jpeg", types.SourceFrame, []byte("jpeg bytes"))
	img.Code = "0123456789012"
	r1, err := s.Save(img)
	require.NoError(t, err)
	assert.Equal(t, "scan-0-frame.jpg", r1.Name)
	assert.Equal(t, types.KindImage, r1.Kind)
	assert.Equal(t, int64(10), r1.Bytes)
	assert.Equal(t, "10 B", r1.Size)

	vid := types.NewArtifact("clip", "video/x-msvideo", types.SourceRecording, []byte("RIFF"))
	r2, err := s.Save(vid)
	require.NoError(t, err)
	assert.Equal(t, "scan-1-recording.avi", r2.Name)

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, r2.Name, list[0].Name, "newest first")

	latest, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, r2.Name, latest.Name)

	rec, p, err := s.Open(r1.Name)
	require.NoError(t, err)
	assert.Equal(t, "0123456789012", rec.Code)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
	assert.Equal(t, filepath.Join(s.Dir(), "images", r1.Name), p)

	// reopening keeps the index
	s2, err := New(s.Dir())
	require.NoError(t, err)
	list, err = s2.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDelete(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = s.Latest()
	assert.ErrorIs(t, err, ErrNotFound)

	r1, err := s.Save(types.NewArtifact("a.png", "image/png", types.SourceURL, []byte{1}))
	require.NoError(t, err)
	assert.Equal(t, "scan-0-url.png", r1.Name)
	r2, err := s.Save(types.NewArtifact("b.jpg", "image/jpeg", types.SourceUpload, []byte{2}))
	require.NoError(t, err)

	require.NoError(t, s.Delete(r2.Name))
	latest, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, r1.Name, latest.Name)

	assert.ErrorIs(t, s.Delete(r2.Name), ErrNotFound)
	_, _, err = s.Open("../info.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRejectsUnknownKind(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = s.Save(types.NewArtifact("x.txt", "text/plain", types.SourceUpload, []byte("x")))
	assert.Error(t, err)
}
