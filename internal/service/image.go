// Package service holds application services that sit between handlers
// and repositories.
package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/gif" // register GIF decoder
	_ "image/png" // register PNG decoder
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"plume/internal/config"
	"plume/internal/models"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

const (
	defaultUploadDir       = "/tmp/plume/uploads/images"
	defaultMaxUploadSizeMB = 10
	masterMaxSize          = 2048
	jpegQuality            = 82
	webpQuality            = 70
)

// ImageService validates image uploads and stores them on disk. The
// master copy is a JPEG capped at masterMaxSize with a WebP companion,
// both filed under a deterministic content hash.
type ImageService struct {
	uploadDir          string
	maxUploadSizeBytes int64
}

// NewImageService builds an ImageService from configuration.
func NewImageService(cfg *config.Config) *ImageService {
	uploadDir := defaultUploadDir
	maxUploadSizeMB := defaultMaxUploadSizeMB

	if cfg != nil {
		if cfg.ImageUploadDir != "" {
			uploadDir = cfg.ImageUploadDir
		}
		if cfg.ImageMaxUploadSizeMB > 0 {
			maxUploadSizeMB = cfg.ImageMaxUploadSizeMB
		}
	}

	return &ImageService{
		uploadDir:          uploadDir,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
	}
}

// UploadDir returns the directory served under /media.
func (s *ImageService) UploadDir() string {
	return s.uploadDir
}

// Store validates content as a decodable image and writes it to disk.
// It returns the stored relative path. Every failure is a field-level
// validation error on "image"; nothing is written for invalid input.
func (s *ImageService) Store(userID uint, content []byte) (string, error) {
	if len(content) == 0 {
		return "", models.NewFieldError("image", "No file uploaded")
	}
	if int64(len(content)) > s.maxUploadSizeBytes {
		return "", models.NewFieldError("image",
			fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	if !isAllowedImageMIME(http.DetectContentType(content)) {
		return "", models.NewFieldError("image", "Invalid image type")
	}

	decoded, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return "", models.NewFieldError("image", "Invalid image file")
	}
	if !isSupportedFormat(format) {
		return "", models.NewFieldError("image", "Unsupported image format")
	}

	master := resizeToFit(decoded, masterMaxSize, masterMaxSize)

	encodedJPG, err := encodeJPEG(master, jpegQuality)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	encodedWebP, err := encodeWebP(master, webpQuality)
	if err != nil {
		return "", models.NewInternalError(err)
	}

	hash := contentHash(userID, encodedJPG)
	jpgRel := filepath.ToSlash(filepath.Join(hash, "master.jpg"))
	webpRel := filepath.ToSlash(filepath.Join(hash, "master.webp"))

	if err := writeBytesToFile(filepath.Join(s.uploadDir, jpgRel), encodedJPG); err != nil {
		return "", models.NewInternalError(err)
	}
	if err := writeBytesToFile(filepath.Join(s.uploadDir, webpRel), encodedWebP); err != nil {
		_ = os.Remove(filepath.Join(s.uploadDir, jpgRel))
		return "", models.NewInternalError(err)
	}

	return jpgRel, nil
}

// URL maps a stored relative path to its public serving path.
func (s *ImageService) URL(rel string) string {
	if rel == "" {
		return ""
	}
	return "/media/" + rel
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scaleW := float64(maxWidth) / float64(w)
	scaleH := float64(maxHeight) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func isSupportedFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg", "png", "gif", "webp":
		return true
	default:
		return false
	}
}

func contentHash(userID uint, content []byte) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%d:", userID)
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func writeBytesToFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
