package extractor

import (
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
)

const (
	thumbnailWidth   = 300
	thumbnailHeight  = 300
	thumbnailQuality = 85
)

// Thumbnailer renders a bounded JPEG preview next to the archive data
// directory, keyed by document id.
type Thumbnailer struct {
	dir string
}

func NewThumbnailer(dir string) (*Thumbnailer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create thumbnail dir: %w", err)
	}
	return &Thumbnailer{dir: dir}, nil
}

func (t *Thumbnailer) Generate(ctx context.Context, sourcePath string, documentID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := decodeImage(sourcePath)
	if err != nil {
		return err
	}

	bounds := src.Bounds()
	w, h := fitWithin(bounds.Dx(), bounds.Dy(), thumbnailWidth, thumbnailHeight)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)

	out, err := os.Create(filepath.Join(t.dir, fmt.Sprintf("%d.jpg", documentID)))
	if err != nil {
		return fmt.Errorf("create thumbnail: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, dst, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	return nil
}

func decodeImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		img, err := png.Decode(file)
		if err != nil {
			return nil, fmt.Errorf("decode png: %w", err)
		}
		return img, nil
	case ".gif":
		img, err := gif.Decode(file)
		if err != nil {
			return nil, fmt.Errorf("decode gif: %w", err)
		}
		return img, nil
	default:
		img, err := jpeg.Decode(file)
		if err != nil {
			return nil, fmt.Errorf("decode jpeg: %w", err)
		}
		return img, nil
	}
}

func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	ratioW := float64(maxW) / float64(w)
	ratioH := float64(maxH) / float64(h)
	ratio := ratioW
	if ratioH < ratio {
		ratio = ratioH
	}
	outW := int(float64(w) * ratio)
	outH := int(float64(h) * ratio)
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	return outW, outH
}
