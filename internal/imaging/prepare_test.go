package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

// encodePNG renders a solid-color test image of the given size.
func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 90, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func decodeDims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestPrepare_DownscalesToBound(t *testing.T) {
	p := Preparer{MaxDimension: 800, Quality: 65}

	cases := []struct {
		name string
		w, h int
	}{
		{"landscape", 1600, 900},
		{"portrait", 900, 1600},
		{"square", 2000, 2000},
		{"barely over", 801, 400},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := p.Prepare(Payload{Data: encodePNG(t, tc.w, tc.h), MIME: "image/png"})
			w, h := decodeDims(t, out.Data)
			if w > 800 || h > 800 {
				t.Errorf("dims %dx%d exceed bound", w, h)
			}
			if w > tc.w || h > tc.h {
				t.Errorf("dims %dx%d exceed input %dx%d (upscaled)", w, h, tc.w, tc.h)
			}
			if out.MIME != "image/jpeg" {
				t.Errorf("mime = %q, want image/jpeg", out.MIME)
			}
		})
	}
}

func TestPrepare_NeverUpscales(t *testing.T) {
	p := Preparer{MaxDimension: 800, Quality: 65}
	out := p.Prepare(Payload{Data: encodePNG(t, 320, 240), MIME: "image/png"})
	w, h := decodeDims(t, out.Data)
	if w != 320 || h != 240 {
		t.Errorf("dims = %dx%d, want 320x240 untouched", w, h)
	}
}

func TestPrepare_PreservesAspectRatio(t *testing.T) {
	p := Preparer{MaxDimension: 600, Quality: 65}
	out := p.Prepare(Payload{Data: encodePNG(t, 1200, 600), MIME: "image/png"})
	w, h := decodeDims(t, out.Data)
	if w != 600 || h != 300 {
		t.Errorf("dims = %dx%d, want 600x300", w, h)
	}
}

func TestPrepare_UndecodableInputPassesThrough(t *testing.T) {
	p := Preparer{MaxDimension: 800, Quality: 65}
	in := Payload{Data: []byte("not an image at all"), MIME: "image/jpeg"}
	out := p.Prepare(in)
	if !bytes.Equal(out.Data, in.Data) || out.MIME != in.MIME {
		t.Error("undecodable input must be returned unchanged")
	}
}

func TestPrepareDataURI_RoundTrip(t *testing.T) {
	p := Preparer{MaxDimension: 100, Quality: 65}
	uri := FormatDataURI("image/png", encodePNG(t, 400, 200))

	out := p.PrepareDataURI(uri)
	if !strings.HasPrefix(out, "data:image/jpeg;base64,") {
		t.Fatalf("output is not a jpeg data URI: %.40s", out)
	}
	payload, err := ParseDataURI(out)
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	w, h := decodeDims(t, payload.Data)
	if w != 100 || h != 50 {
		t.Errorf("dims = %dx%d, want 100x50", w, h)
	}
}

func TestPrepareDataURI_GarbagePassesThrough(t *testing.T) {
	p := Preparer{MaxDimension: 100, Quality: 65}
	if got := p.PrepareDataURI("https://example.com/a.jpg"); got != "https://example.com/a.jpg" {
		t.Errorf("non data-URI input changed: %q", got)
	}
}

func TestParseDataURI(t *testing.T) {
	payload, err := ParseDataURI("data:image/png;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("ParseDataURI: %v", err)
	}
	if payload.MIME != "image/png" || string(payload.Data) != "hello" {
		t.Errorf("payload = %+v", payload)
	}

	// Unknown mime header falls back instead of failing.
	payload, err = ParseDataURI("data:application/octet-stream;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("ParseDataURI: %v", err)
	}
	if payload.MIME != DefaultMIME {
		t.Errorf("mime = %q, want fallback %q", payload.MIME, DefaultMIME)
	}

	if _, err := ParseDataURI("http://example.com"); err == nil {
		t.Error("expected error for non data-URI")
	}
	if _, err := ParseDataURI("data:image/png;base64"); err == nil {
		t.Error("expected error for missing comma")
	}
	if _, err := ParseDataURI("data:image/png;base64,!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestSniffMIME(t *testing.T) {
	if got := SniffMIME(encodePNG(t, 4, 4)); got != "image/png" {
		t.Errorf("png sniff = %q", got)
	}

	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	if got := SniffMIME(buf.Bytes()); got != "image/jpeg" {
		t.Errorf("jpeg sniff = %q", got)
	}

	if got := SniffMIME([]byte("garbage")); got != DefaultMIME {
		t.Errorf("garbage sniff = %q, want %q", got, DefaultMIME)
	}
}
