package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func sourcePNG(t *testing.T, w, h int) *bytes.Reader {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestVerifyReportsDimensionsAndFormat(t *testing.T) {
	c := New()
	width, height, format, err := c.Verify(sourcePNG(t, 40, 20))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if width != 40 || height != 20 {
		t.Errorf("got %dx%d, want 40x20", width, height)
	}
	if format != "png" {
		t.Errorf("format = %q, want png", format)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	c := New()
	_, _, _, err := c.Verify(bytes.NewReader([]byte("not an image")))
	if err == nil {
		t.Fatal("Verify of garbage bytes returned nil error")
	}
}

func TestFitAndCropProducesExactTargetSize(t *testing.T) {
	c := New()
	src, err := c.Decode(sourcePNG(t, 400, 100))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	resized := c.FitAndCrop(src, 50, 50)
	w, h := resized.Bounds()
	if w != 50 || h != 50 {
		t.Errorf("resized bounds = %dx%d, want 50x50", w, h)
	}
}

func TestEncodeUnsupportedFormatErrors(t *testing.T) {
	c := New()
	img, err := c.Decode(sourcePNG(t, 10, 10))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var buf bytes.Buffer
	if err := c.Encode(&buf, img, "webp"); err == nil {
		t.Fatal("Encode(webp) returned nil error, want unsupported-format error")
	}
}

func TestEncodeJPEGRoundTrips(t *testing.T) {
	c := New()
	img, err := c.Decode(sourcePNG(t, 10, 10))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var buf bytes.Buffer
	if err := c.Encode(&buf, img, "JPEG"); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, _, _, err := c.Verify(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("encoded bytes do not verify as an image: %v", err)
	}
}
