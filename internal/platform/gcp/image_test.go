package gcp

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"
)

func TestFitWithinLeavesSmallImagesUntouched(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 640, 480))
	got := FitWithin(src, 1024)
	if got != image.Image(src) {
		t.Fatalf("expected the original image back, got a new %v", got.Bounds())
	}
}

func TestFitWithinScalesLandscapeByWidth(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2048, 1000))
	got := FitWithin(src, 1024)
	b := got.Bounds()
	if b.Dx() != 1024 {
		t.Fatalf("expected width 1024, got %d", b.Dx())
	}
	if b.Dy() != 500 {
		t.Fatalf("expected height 500, got %d", b.Dy())
	}
}

func TestFitWithinScalesPortraitByHeight(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1000, 4096))
	got := FitWithin(src, 1024)
	b := got.Bounds()
	if b.Dy() != 1024 {
		t.Fatalf("expected height 1024, got %d", b.Dy())
	}
	if b.Dx() != 250 {
		t.Fatalf("expected width 250, got %d", b.Dx())
	}
}

func TestEncodeForVisionProducesDecodableJPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3000, 1500))
	data, err := EncodeForVision(src)
	if err != nil {
		t.Fatalf("EncodeForVision failed: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not valid JPEG: %v", err)
	}
	if decoded.Bounds().Dx() != 1024 || decoded.Bounds().Dy() != 512 {
		t.Fatalf("unexpected output size %v", decoded.Bounds())
	}
}

func TestEncodeForVisionRejectsNil(t *testing.T) {
	if _, err := EncodeForVision(nil); err == nil {
		t.Fatal("expected an error for nil image")
	}
}
