package stitch

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/abworrall/tile-stitcher/pkg/fusion"
	"github.com/abworrall/tile-stitcher/pkg/tiles"
)

// WriteRaster encodes the image in the format named by the filename's
// extension: png, bmp, jpg/jpeg, hdr, or else TIFF.
func WriteRaster(img image.Image, filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(tiles.ErrIO, "open+w '%s': %v", filename, err)
	}
	defer writer.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		err = png.Encode(writer, img)
	case ".bmp":
		err = bmp.Encode(writer, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(writer, img, &jpeg.Options{Quality: 95})
	case ".hdr":
		err = rgbe.Encode(writer, asHDR(img))
	default:
		err = tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate})
	}
	if err != nil {
		return errors.Wrapf(tiles.ErrIO, "encoding '%s': %v", filename, err)
	}
	return nil
}

// WriteMosaic writes every raster of the mosaic into dir, and returns
// the filenames. Channels and timepoints get a _c<c>_t<t> suffix when
// there is more than one of either; 3D mosaics get a file per z slice.
// Three channel mosaics are written as colour images.
func WriteMosaic(m *fusion.Mosaic, dir, name string) ([]string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	is3D := len(m.Size) > 2

	filename := func(suffix string, z int) string {
		if is3D {
			suffix += fmt.Sprintf("_z%d", z+1)
		}
		return filepath.Join(dir, base+suffix+ext)
	}

	written := []string{}
	write := func(img image.Image, f string) error {
		if err := WriteRaster(img, f); err != nil {
			return err
		}
		written = append(written, f)
		return nil
	}

	for t := 0; t < m.NumTimepoints; t++ {
		for z := 0; z < m.NumSlices(); z++ {
			switch {
			case m.Method == fusion.Overlay:
				suffix := "_overlay"
				if m.NumTimepoints > 1 {
					suffix += fmt.Sprintf("_t%d", t+1)
				}
				if err := write(m.Preview(t, z), filename(suffix, z)); err != nil {
					return written, err
				}

			case m.NumChannels == 3:
				suffix := ""
				if m.NumTimepoints > 1 {
					suffix = fmt.Sprintf("_t%d", t+1)
				}
				if err := write(m.RGB(t, z), filename(suffix, z)); err != nil {
					return written, err
				}

			default:
				for c := 0; c < m.NumChannels; c++ {
					suffix := ""
					if m.NumChannels > 1 || m.NumTimepoints > 1 {
						suffix = fmt.Sprintf("_c%d_t%d", c+1, t+1)
					}
					if err := write(m.Raster(c, t, z), filename(suffix, z)); err != nil {
						return written, err
					}
				}
			}
		}
	}
	return written, nil
}

// asHDR passes HDR images through, and wraps anything else so it can be
// written as radiance.
func asHDR(img image.Image) hdr.Image {
	if h, ok := img.(hdr.Image); ok {
		return h
	}
	return ldrImage{img}
}

type ldrImage struct {
	image.Image
}

func (l ldrImage) ColorModel() color.Model { return hdrcolor.RGBModel }
func (l ldrImage) At(x, y int) color.Color { return l.HDRAt(x, y) }
func (l ldrImage) Size() int               { return l.Bounds().Dx() * l.Bounds().Dy() }

func (l ldrImage) HDRAt(x, y int) hdrcolor.Color {
	r, g, b, _ := l.Image.At(x, y).RGBA()
	return hdrcolor.RGB{R: float64(r) / 0xffff, G: float64(g) / 0xffff, B: float64(b) / 0xffff}
}
