package service

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"plume/internal/config"
	"plume/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImageService(t *testing.T) *ImageService {
	t.Helper()
	return NewImageService(&config.Config{
		ImageUploadDir:       t.TempDir(),
		ImageMaxUploadSizeMB: 1,
	})
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestStore_ValidPNG(t *testing.T) {
	svc := testImageService(t)

	rel, err := svc.Store(1, encodePNG(t, 16, 16))
	require.NoError(t, err)
	require.NotEmpty(t, rel)

	// the JPEG master and its WebP companion both land on disk
	_, err = os.Stat(filepath.Join(svc.UploadDir(), rel))
	assert.NoError(t, err)
	webpPath := filepath.Join(svc.UploadDir(), filepath.Dir(rel), "master.webp")
	_, err = os.Stat(webpPath)
	assert.NoError(t, err)

	assert.Equal(t, "/media/"+rel, svc.URL(rel))
}

func TestStore_RejectsNonImage(t *testing.T) {
	svc := testImageService(t)

	_, err := svc.Store(1, []byte("definitely not an image"))
	require.Error(t, err)

	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "image", appErr.Field)

	// nothing may be written for rejected input
	entries, readErr := os.ReadDir(svc.UploadDir())
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestStore_RejectsEmptyAndOversized(t *testing.T) {
	svc := testImageService(t)

	_, err := svc.Store(1, nil)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "image", appErr.Field)

	// payload over the configured 1MB cap
	big := make([]byte, 2*1024*1024)
	_, err = svc.Store(1, big)
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "image", appErr.Field)
}

func TestStore_ResizesLargeImages(t *testing.T) {
	svc := testImageService(t)

	// wider than the master cap; stored master must be scaled down
	rel, err := svc.Store(1, encodePNG(t, masterMaxSize+512, 64))
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(svc.UploadDir(), rel))
	require.NoError(t, err)
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.LessOrEqual(t, cfg.Width, masterMaxSize)
	assert.LessOrEqual(t, cfg.Height, masterMaxSize)
}

func TestURL_EmptyPath(t *testing.T) {
	svc := testImageService(t)
	assert.Empty(t, svc.URL(""))
}
