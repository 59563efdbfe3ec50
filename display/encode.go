package display

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/mrjoshuak/go-jpeg2000"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/mrjoshuak/go-fbutil/fb"
)

// ErrUnknownFormat is returned for unrecognized image formats.
var ErrUnknownFormat = errors.New("display: unknown image format")

// Format is an output image format.
type Format int

const (
	PNG Format = iota
	WebP
	BMP
	TIFF
	J2K
)

var formatNames = [...]string{
	PNG:  "png",
	WebP: "webp",
	BMP:  "bmp",
	TIFF: "tiff",
	J2K:  "j2k",
}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formatNames[f]
}

// ParseFormat returns the format with the given case-insensitive name.
// "tif" and "jp2" are accepted as aliases.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	switch name {
	case "tif":
		return TIFF, nil
	case "jp2", "j2c":
		return J2K, nil
	}
	for f, n := range formatNames {
		if n == name {
			return Format(f), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return 0, fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

// Encode writes img to w in format f. WebP and J2K are lossless.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case PNG:
		return png.Encode(w, img)
	case WebP:
		return nativewebp.Encode(w, img, nil)
	case BMP:
		return bmp.Encode(w, img)
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case J2K:
		return jpeg2000.Encode(w, toNRGBA(img), &jpeg2000.Options{
			Format:   jpeg2000.FormatJ2K,
			Lossless: true,
		})
	default:
		return fmt.Errorf("%w: %v", ErrUnknownFormat, f)
	}
}

// toNRGBA returns img as *image.NRGBA, converting when needed.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	b := img.Bounds()
	n := image.NewNRGBA(b)
	draw.Draw(n, b, img, b.Min, draw.Src)
	return n
}

// Save writes an 8-bit buffer to path in the format given by the path's
// extension.
func Save(path string, b *fb.Buffer) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	return SaveAs(path, b, f)
}

// SaveAs writes an 8-bit buffer to path in format f. The image is encoded
// under a temporary name in the same directory and renamed into place, so a
// failed save leaves no partial file and any existing file untouched.
func SaveAs(path string, b *fb.Buffer, f Format) (err error) {
	img, err := Image(b)
	if err != nil {
		return err
	}

	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			file.Close()
			os.Remove(file.Name())
		}
	}()

	bw := bufio.NewWriter(file)
	if err = Encode(bw, img, f); err != nil {
		return fmt.Errorf("display: encode %s: %w", path, err)
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = file.Chmod(0o644); err != nil {
		return err
	}
	if err = file.Close(); err != nil {
		return err
	}
	if err = os.Rename(file.Name(), path); err != nil {
		return err
	}
	fb.Logger().Debug("display: saved image", "path", path, "format", f,
		"width", b.Width(), "height", b.Height())
	return nil
}
