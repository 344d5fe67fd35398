package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
)

// Thumbnail bounds, matching what the picker UI lays out.
const (
	ThumbnailWidth  = 300
	ThumbnailHeight = 200
)

// grabFrame captures one frame of d through ffmpeg and decodes it.
func grabFrame(ctx context.Context, run Runner, ffmpeg string, d Display) (*image.RGBA, error) {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, d.Input...)
	args = append(args, "-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "pipe:1")

	out, err := run(ctx, ffmpeg, args...)
	if err != nil {
		if permissionHint(err.Error()) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, err
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return toRGBA(img), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// EncodePNG encodes an image as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FitFactor returns the scale that fits a w x h image inside maxW x maxH
// while keeping its aspect ratio. Never above 1.
func FitFactor(w, h, maxW, maxH int) float64 {
	if w <= 0 || h <= 0 {
		return 1
	}
	fx := float64(maxW) / float64(w)
	fy := float64(maxH) / float64(h)
	f := min(fx, fy)
	if f > 1 {
		return 1
	}
	return f
}

// ScaleImage scales an image by the given factor (0.0-1.0) with
// nearest-neighbour sampling.
func ScaleImage(img *image.RGBA, factor float64) *image.RGBA {
	if factor >= 1.0 {
		return img
	}
	if factor <= 0 {
		factor = 0.1
	}

	bounds := img.Bounds()
	newWidth := max(int(float64(bounds.Dx())*factor), 1)
	newHeight := max(int(float64(bounds.Dy())*factor), 1)

	scaled := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	xRatio := float64(bounds.Dx()) / float64(newWidth)
	yRatio := float64(bounds.Dy()) / float64(newHeight)

	for y := 0; y < newHeight; y++ {
		srcY := bounds.Min.Y + int(float64(y)*yRatio)
		for x := 0; x < newWidth; x++ {
			srcX := bounds.Min.X + int(float64(x)*xRatio)
			si := img.PixOffset(srcX, srcY)
			di := scaled.PixOffset(x, y)
			copy(scaled.Pix[di:di+4], img.Pix[si:si+4])
		}
	}
	return scaled
}

// thumbnail produces the PNG preview for a captured frame.
func thumbnail(frame *image.RGBA) ([]byte, error) {
	b := frame.Bounds()
	scaled := ScaleImage(frame, FitFactor(b.Dx(), b.Dy(), ThumbnailWidth, ThumbnailHeight))
	return EncodePNG(scaled)
}
