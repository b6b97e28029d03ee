package imageprep

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MediaType is the MIME type of every encoded payload this package produces.
const MediaType = "image/jpeg"

// Options bounds the preprocessing step.
type Options struct {
	// MaxSourceBytes rejects raw uploads larger than this. Default: 20MB.
	MaxSourceBytes int

	// MaxSourceDimension rejects images wider or taller than this before any
	// resizing. Guards against decompression bombs. Default: 8192.
	MaxSourceDimension int

	// TargetDimension is the bounding box the image is fit into before
	// encoding. Default: 1024.
	TargetDimension int

	// MaxEncodedKB caps the size of the encoded JPEG handed to the model.
	// Default: 4800 (just under the API's 5MB image limit).
	MaxEncodedKB int
}

func (o Options) withDefaults() Options {
	if o.MaxSourceBytes <= 0 {
		o.MaxSourceBytes = 20 << 20
	}
	if o.MaxSourceDimension <= 0 {
		o.MaxSourceDimension = 8192
	}
	if o.TargetDimension <= 0 {
		o.TargetDimension = 1024
	}
	if o.MaxEncodedKB <= 0 {
		o.MaxEncodedKB = 4800
	}
	return o
}

// InputError marks an image that cannot be assessed: unreadable, wrong
// format, or oversized. The pipeline is never invoked for these.
type InputError struct {
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("imageprep: %s: %v", e.Reason, e.Err)
	}
	return "imageprep: " + e.Reason
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// EncodeFile reads an image from disk and returns it as a bounded base64
// JPEG payload.
func EncodeFile(path string, opts Options) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &InputError{Reason: "open image", Err: err}
	}
	defer f.Close()
	return Encode(f, opts)
}

// Encode reads image data and returns a base64 JPEG payload no larger than
// Options.MaxEncodedKB. Transparency is flattened onto white, large images
// are fit into the target bounding box, and JPEG quality is stepped down
// until the payload fits.
func Encode(r io.Reader, opts Options) (string, error) {
	opts = opts.withDefaults()

	raw, err := io.ReadAll(io.LimitReader(r, int64(opts.MaxSourceBytes)+1))
	if err != nil {
		return "", &InputError{Reason: "read image", Err: err}
	}
	if len(raw) > opts.MaxSourceBytes {
		return "", &InputError{Reason: fmt.Sprintf("image exceeds %d byte limit", opts.MaxSourceBytes)}
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", &InputError{Reason: "decode image", Err: err}
	}

	bounds := img.Bounds()
	if bounds.Dx() > opts.MaxSourceDimension || bounds.Dy() > opts.MaxSourceDimension {
		return "", &InputError{Reason: fmt.Sprintf(
			"image dimensions %dx%d exceed maximum %d",
			bounds.Dx(), bounds.Dy(), opts.MaxSourceDimension,
		)}
	}

	// Flatten transparency onto white before JPEG encoding.
	flat := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	fitted := imaging.Fit(flat, opts.TargetDimension, opts.TargetDimension, imaging.Lanczos)

	data, err := encodeUnderLimit(fitted, opts)
	if err != nil {
		return "", err
	}

	zap.L().Debug("imageprep: encoded image",
		zap.Int("source_bytes", len(raw)),
		zap.Int("encoded_bytes", len(data)),
		zap.Int("width", fitted.Bounds().Dx()),
		zap.Int("height", fitted.Bounds().Dy()),
	)

	return base64.StdEncoding.EncodeToString(data), nil
}

// encodeUnderLimit encodes the image as JPEG, stepping quality down and then
// shrinking dimensions until the payload fits under MaxEncodedKB.
func encodeUnderLimit(img *image.NRGBA, opts Options) ([]byte, error) {
	limit := opts.MaxEncodedKB * 1024

	for _, quality := range []int{85, 70, 55, 40} {
		data, err := encodeJPEG(img, quality)
		if err != nil {
			return nil, eris.Wrap(err, "imageprep: encode jpeg")
		}
		if len(data) <= limit {
			return data, nil
		}
	}

	// Quality floor reached: shrink dimensions.
	for img.Bounds().Dx() >= 125 && img.Bounds().Dy() >= 125 {
		img = imaging.Resize(img, img.Bounds().Dx()*4/5, 0, imaging.Lanczos)
		data, err := encodeJPEG(img, 50)
		if err != nil {
			return nil, eris.Wrap(err, "imageprep: encode jpeg")
		}
		if len(data) <= limit {
			return data, nil
		}
	}

	return nil, &InputError{Reason: fmt.Sprintf("image could not be compressed under %dKB", opts.MaxEncodedKB)}
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
