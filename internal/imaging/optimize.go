// Package imaging normalizes person photos to the device's face picture
// limits (pixel dimensions and encoded byte size) before upload.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	_ "image/gif"
	_ "image/png"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

const (
	initialQuality   = 90
	oversizedQuality = 80
	qualityStep      = 10
	qualityFloor     = 50
	maxAttempts      = 5
)

// Limits 设备对人脸照片的尺寸与字节上限
type Limits struct {
	MaxWidth  int
	MaxHeight int
	MaxSizeKB int
}

// Result describes the image to upload. When Temporary is true the caller
// owns Path and must remove it after the sync attempt.
type Result struct {
	Path      string
	Temporary bool
	Width     int
	Height    int
	SizeKB    int
	Warning   string
}

// Optimize ensures the image at srcPath fits limits. A compliant source is
// returned untouched; otherwise a resized, white-flattened JPEG is written
// next to the source as temp_<name> and iteratively recompressed. The byte
// limit is soft: if the quality floor is reached first the best effort is
// returned with a warning.
func Optimize(srcPath string, limits Limits, logger *zap.Logger) (*Result, error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}
	sizeKB := int(info.Size() / 1024)

	f, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	src, format, err := image.Decode(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	needsResize := origW > limits.MaxWidth || origH > limits.MaxHeight
	needsCompress := sizeKB > limits.MaxSizeKB

	if !needsResize && !needsCompress {
		logger.Debug("Image already within device limits",
			zap.String("path", srcPath),
			zap.Int("width", origW),
			zap.Int("height", origH),
			zap.Int("size_kb", sizeKB),
		)
		return &Result{Path: srcPath, Width: origW, Height: origH, SizeKB: sizeKB}, nil
	}

	outW, outH := origW, origH
	if needsResize {
		ratio := min(float64(limits.MaxWidth)/float64(origW), float64(limits.MaxHeight)/float64(origH))
		outW = int(float64(origW) * ratio)
		outH = int(float64(origH) * ratio)
	}

	// The device rejects alpha and indexed color: flatten everything onto an
	// opaque white canvas while scaling.
	canvas := image.NewRGBA(image.Rect(0, 0, outW, outH))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(canvas, canvas.Bounds(), src, bounds, draw.Over, nil)

	quality := initialQuality
	if needsCompress {
		quality = oversizedQuality
	}

	logger.Info("Optimizing image",
		zap.String("path", srcPath),
		zap.String("format", format),
		zap.Int("orig_width", origW),
		zap.Int("orig_height", origH),
		zap.Int("orig_size_kb", sizeKB),
		zap.Int("width", outW),
		zap.Int("height", outH),
	)

	encoded, err := encodeJPEG(canvas, quality)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxAttempts && len(encoded)/1024 > limits.MaxSizeKB && quality > qualityFloor; attempt++ {
		quality = max(qualityFloor, quality-qualityStep)
		encoded, err = encodeJPEG(canvas, quality)
		if err != nil {
			return nil, err
		}
	}

	tempPath := filepath.Join(filepath.Dir(srcPath), "temp_"+filepath.Base(srcPath))
	if err := os.WriteFile(tempPath, encoded, 0o644); err != nil {
		return nil, fmt.Errorf("write optimized image: %w", err)
	}

	result := &Result{
		Path:      tempPath,
		Temporary: true,
		Width:     outW,
		Height:    outH,
		SizeKB:    len(encoded) / 1024,
	}
	if result.SizeKB > limits.MaxSizeKB {
		result.Warning = fmt.Sprintf("image still %dKB after %d attempts at quality %d (limit %dKB)",
			result.SizeKB, maxAttempts, quality, limits.MaxSizeKB)
		logger.Warn("Image exceeds size limit after recompression",
			zap.String("path", tempPath),
			zap.Int("size_kb", result.SizeKB),
			zap.Int("limit_kb", limits.MaxSizeKB),
			zap.Int("quality", quality),
		)
	}
	return result, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
