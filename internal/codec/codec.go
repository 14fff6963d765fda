// Package codec implements the ImageCodec collaborator from the
// specification: decode/verify, fit-and-crop resize, and encode. The
// concrete implementation is grounded in the teacher's
// internal/imaging/processor.go (disintegration/imaging for the
// resize/crop step -- the cover-then-crop analog of the teacher's
// CropCenterSquare/CropCenter16x9 paths, not its contain-only CropNone
// path) and internal/imaging/validator.go (decode verification),
// generalized from the teacher's per-category rendition ladder down to
// the single size+format the cache core is asked to produce.
package codec

import (
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // decode-only support for WebP sources
)

// Image wraps the decoded image plus the dimensions the coordinator needs
// without re-decoding.
type Image struct {
	img image.Image
}

// Bounds returns the image's pixel dimensions.
func (i Image) Bounds() (width, height int) {
	b := i.img.Bounds()
	return b.Dx(), b.Dy()
}

// Codec is the ImageCodec collaborator: decode/verify, fit-and-crop, encode.
type Codec interface {
	// Verify fully decodes r to confirm it is a well-formed image of a
	// supported format, returning its dimensions and format name.
	Verify(r io.Reader) (width, height int, format string, err error)
	// Decode fully decodes r into an Image for subsequent transformation.
	Decode(r io.Reader) (Image, error)
	// FitAndCrop resizes src to fully cover (w,h) preserving aspect ratio,
	// then centre-crops to exactly (w,h). Centre anchor (0.5, 0.5),
	// Lanczos resampling -- the cover-then-crop analog of processor.go's
	// CropCenterSquare/CropCenter16x9 paths.
	FitAndCrop(src Image, w, h int) Image
	// Encode writes img in the given format (case-insensitive). Returns an
	// error for formats the backend cannot encode -- callers surface this
	// as ImageProcessing rather than silently substituting a format, per
	// DESIGN.md.
	Encode(w io.Writer, img Image, format string) error
}

// New returns the default Codec, backed by disintegration/imaging for
// resize/crop and the standard library for JPEG/PNG encode.
func New() Codec {
	return stdCodec{}
}

type stdCodec struct{}

func (stdCodec) Verify(r io.Reader) (int, int, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return 0, 0, "", fmt.Errorf("decode: %w", err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), format, nil
}

func (stdCodec) Decode(r io.Reader) (Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return Image{}, fmt.Errorf("decode: %w", err)
	}
	return Image{img: img}, nil
}

func (stdCodec) FitAndCrop(src Image, w, h int) Image {
	return Image{img: imaging.Fill(src.img, w, h, imaging.Center, imaging.Lanczos)}
}

func (stdCodec) Encode(w io.Writer, img Image, format string) error {
	switch strings.ToUpper(format) {
	case "JPEG", "JPG":
		return jpeg.Encode(w, img.img, &jpeg.Options{Quality: 92})
	case "PNG":
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		return encoder.Encode(w, img.img)
	default:
		// Pure Go encoders for WebP/AVIF/etc are not available in this
		// stack (the teacher's processor.go falls back to JPEG for WebP
		// and skips AVIF outright for the same reason). The cache core
		// must not silently substitute a format the caller didn't ask
		// for, so this surfaces as an encode error instead.
		return fmt.Errorf("no encoder available for format %q", format)
	}
}
