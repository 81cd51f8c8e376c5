package imagegen

import (
	"bytes"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	"image/png"
	"math"
	"net/http"

	"github.com/evanoberholster/imagemeta"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// maxInlineBytes caps the re-encoded source sent inline to the model. A PNG
// re-encode of a large camera JPEG can exceed the request size limit; the
// original bytes are sent instead when that happens.
const maxInlineBytes = 15 << 20

// AspectAuto selects the supported aspect ratio closest to the source image.
const AspectAuto = "auto"

// DefaultAspectRatio matches the 1920x1080 output the instruction asks for.
const DefaultAspectRatio = "16:9"

// supportedAspectRatios are the ratios accepted by the image model.
var supportedAspectRatios = []struct {
	label string
	w, h  float64
}{
	{"1:1", 1, 1},
	{"2:3", 2, 3},
	{"3:2", 3, 2},
	{"3:4", 3, 4},
	{"4:3", 4, 3},
	{"4:5", 4, 5},
	{"5:4", 5, 4},
	{"9:16", 9, 16},
	{"16:9", 16, 9},
	{"21:9", 21, 9},
}

// PreparedSource is a source image ready to send inline to the model.
type PreparedSource struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// PrepareSource decodes whatever container format was fetched (JPEG, PNG,
// GIF, WebP, BMP, TIFF) and re-encodes it losslessly as PNG. Bytes that do
// not decode are passed through with a sniffed MIME type.
func PrepareSource(data []byte) PreparedSource {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return PreparedSource{Data: data, MIMEType: http.DetectContentType(data)}
	}

	b := img.Bounds()
	w, h := orientedSize(b.Dx(), b.Dy(), exifOrientation(data))
	src := PreparedSource{Width: w, Height: h}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil || buf.Len() > maxInlineBytes {
		src.Data = data
		src.MIMEType = "image/" + format
		return src
	}
	src.Data = buf.Bytes()
	src.MIMEType = "image/png"
	return src
}

// exifOrientation returns the EXIF orientation tag, or 1 when absent.
func exifOrientation(data []byte) int {
	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	if o := int(exifData.Orientation); o >= 1 && o <= 8 {
		return o
	}
	return 1
}

// orientedSize swaps width and height for EXIF orientations 5-8, which
// rotate the stored pixels by 90 degrees.
func orientedSize(w, h, orientation int) (int, int) {
	if orientation >= 5 && orientation <= 8 {
		return h, w
	}
	return w, h
}

// AspectRatio picks the supported ratio closest to w:h, comparing on a log
// scale so that 2:1 and 1:2 are equally far from 1:1.
func AspectRatio(w, h int) string {
	if w <= 0 || h <= 0 {
		return DefaultAspectRatio
	}
	target := math.Log(float64(w) / float64(h))
	best := DefaultAspectRatio
	bestDist := math.Inf(1)
	for _, r := range supportedAspectRatios {
		d := math.Abs(math.Log(r.w/r.h) - target)
		if d < bestDist {
			best, bestDist = r.label, d
		}
	}
	return best
}

// toJPEG normalizes generated output to JPEG. Output the model already
// returned as JPEG, or that cannot be decoded, is kept as-is.
func toJPEG(data []byte, mimeType string) []byte {
	if mimeType == "image/jpeg" {
		return data
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}); err != nil {
		return data
	}
	return buf.Bytes()
}
