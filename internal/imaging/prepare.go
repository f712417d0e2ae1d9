// Package imaging normalizes shopper photos and garment images into the
// bounded JPEG payloads sent to the generative model. Oversized inputs are
// scaled down (never up) and re-encoded at a lossy quality to keep the
// multimodal request small.
//
// The package degrades gracefully: an input that cannot be decoded as a
// raster image is passed through untouched. A failed cosmetic resize must
// never sink a try-on request; downstream stages tolerate oversized payloads.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMIME is the fallback mime type when sniffing fails. The remote model
// accepts it for any common raster payload.
const DefaultMIME = "image/jpeg"

// Payload is a decoded image ready for the request builder: raw bytes plus
// the mime type they were encoded with.
type Payload struct {
	Data []byte
	MIME string
}

// DataURI renders the payload as a data-URI.
func (p Payload) DataURI() string {
	return FormatDataURI(p.MIME, p.Data)
}

// Preparer re-encodes images to bounded dimensions and compressed quality.
type Preparer struct {
	// MaxDimension bounds max(width, height) of the output. Inputs already
	// within the bound are re-encoded but not resized.
	MaxDimension int
	// Quality is the JPEG quality factor in [1,100].
	Quality int
}

// Prepare decodes, downscales, and re-encodes the given payload. On any
// decode failure the input is returned unchanged.
func (p Preparer) Prepare(in Payload) Payload {
	img, _, err := image.Decode(bytes.NewReader(in.Data))
	if err != nil {
		return in
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return in
	}

	if p.MaxDimension > 0 && (w > p.MaxDimension || h > p.MaxDimension) {
		img = downscale(img, p.MaxDimension)
	}

	quality := p.Quality
	if quality <= 0 || quality > 100 {
		quality = 65
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return in
	}
	return Payload{Data: buf.Bytes(), MIME: "image/jpeg"}
}

// PrepareDataURI is Prepare for data-URI inputs: it parses the URI, prepares
// the payload, and re-renders a data-URI. Unparseable input comes back
// unchanged.
func (p Preparer) PrepareDataURI(uri string) string {
	payload, err := ParseDataURI(uri)
	if err != nil {
		return uri
	}
	return p.Prepare(payload).DataURI()
}

// downscale resizes img so that max(width, height) == maxDim, preserving
// aspect ratio. ApproxBiLinear trades a little sharpness for speed, which is
// the right trade for a lossy JPEG re-encode.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// ErrNotDataURI is returned by ParseDataURI for inputs without a data: scheme.
var ErrNotDataURI = errors.New("not a data URI")

// ParseDataURI splits a base64 data-URI into mime type and raw bytes.
// An unrecognizable mime header falls back to DefaultMIME rather than failing.
func ParseDataURI(uri string) (Payload, error) {
	if !strings.HasPrefix(uri, "data:") {
		return Payload{}, ErrNotDataURI
	}
	rest := uri[len("data:"):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return Payload{}, errors.New("malformed data URI: missing comma")
	}
	meta, encoded := rest[:comma], rest[comma+1:]

	mime := DefaultMIME
	if semi := strings.IndexByte(meta, ';'); semi >= 0 {
		meta = meta[:semi]
	}
	if strings.HasPrefix(meta, "image/") {
		mime = meta
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Data: data, MIME: mime}, nil
}

// FormatDataURI renders mime-typed bytes as a base64 data-URI.
func FormatDataURI(mime string, data []byte) string {
	if mime == "" {
		mime = DefaultMIME
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// SniffMIME detects the mime type of raw image bytes, defaulting to
// DefaultMIME when the format is unknown. It never fails.
func SniffMIME(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return DefaultMIME
	}
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return DefaultMIME
	}
}
