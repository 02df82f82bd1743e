package tiles

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	"golang.org/x/sync/errgroup"

	"github.com/abworrall/tile-stitcher/pkg/emath"
	"github.com/abworrall/tile-stitcher/pkg/logger"
)

var imageExts = map[string]bool{
	".tif": true, ".tiff": true, ".png": true, ".jpg": true, ".jpeg": true, ".bmp": true,
}

// Inputs are the files found on the command line, sorted by kind.
type Inputs struct {
	Images  []string
	Configs []string // .yaml
	Layouts []string // .txt tile configurations
}

// ExpandFilesAndDirs walks the args, recursing into dirs, and sorts the
// files it finds by extension. Image files within a dir come out in
// name order.
func ExpandFilesAndDirs(args ...string) (Inputs, error) {
	in := Inputs{}
	err := in.add(args...)
	return in, err
}

func (in *Inputs) add(args ...string) error {
	for _, arg := range args {
		item, err := os.Stat(arg)

		switch {
		case err != nil:
			return errors.Wrapf(ErrIO, "load %s: %v", arg, err)

		case item.IsDir():
			contents, err := os.ReadDir(arg)
			if err != nil {
				return errors.Wrapf(ErrIO, "readdir %s: %v", arg, err)
			}
			for _, content := range contents {
				if err := in.add(filepath.Join(arg, content.Name())); err != nil {
					return err
				}
			}

		default:
			switch ext := strings.ToLower(filepath.Ext(arg)); {
			case imageExts[ext]:
				in.Images = append(in.Images, arg)
			case ext == ".yaml" || ext == ".yml":
				in.Configs = append(in.Configs, arg)
			case ext == ".txt":
				in.Layouts = append(in.Layouts, arg)
			}
		}
	}
	return nil
}

// A Loader decodes tile files into a MemorySource.
type Loader struct {
	Workers int
	Log     logger.ILogger
}

// Load decodes every tile's file concurrently, records geometry and
// capture time on the tiles, and checks the tiles agree with each other.
func (l Loader) Load(tiles []*Tile, src *MemorySource) error {
	g := errgroup.Group{}
	if l.Workers > 0 {
		g.SetLimit(l.Workers)
	}

	for _, t := range tiles {
		t := t
		g.Go(func() error {
			start := time.Now()
			img, err := DecodeFile(t.Filename)
			if err != nil {
				return errors.Wrapf(ErrIO, "tile %s: %v", t.Name, err)
			}
			src.Add(t, img)
			t.CaptureTime = captureTime(t.Filename)

			l.Log.Infof("Loaded %s: %s, channels=%d, timepoints=%d, %d bit (%d ms)", t.Name,
				dimString(img.Dims), img.NumChannels, img.NumTimepoints, img.BitDepth, time.Since(start).Milliseconds())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return CheckConsistent(tiles)
}

// CheckConsistent rejects a tile set that mixes 2D and 3D tiles, or
// whose tiles differ in channel or timepoint counts.
func CheckConsistent(tiles []*Tile) error {
	if len(tiles) < 2 {
		return errors.Wrapf(ErrConfiguration, "need at least two tiles, have %d", len(tiles))
	}
	first := tiles[0]
	for _, t := range tiles[1:] {
		if t.NumDims != first.NumDims {
			return errors.Wrapf(ErrIO, "some tiles are 2d, some are 3d (%s vs %s)", first.Name, t.Name)
		}
		if t.NumChannels != first.NumChannels {
			return errors.Wrapf(ErrIO, "channel counts differ (%s has %d, %s has %d)",
				first.Name, first.NumChannels, t.Name, t.NumChannels)
		}
		if t.NumTimepoints != first.NumTimepoints {
			return errors.Wrapf(ErrIO, "timepoint counts differ (%s has %d, %s has %d)",
				first.Name, first.NumTimepoints, t.Name, t.NumTimepoints)
		}
	}
	return nil
}

// SortByCaptureTime orders the tiles by their EXIF timestamps (tiles
// without one keep their relative order, after those with one).
func SortByCaptureTime(tiles []*Tile) {
	sort.SliceStable(tiles, func(i, j int) bool {
		ti, tj := tiles[i].CaptureTime, tiles[j].CaptureTime
		if ti.IsZero() || tj.IsZero() {
			return !ti.IsZero() && tj.IsZero()
		}
		return ti.Before(tj)
	})
}

func DecodeFile(filename string) (*Image, error) {
	reader, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open+r '%s': %v", filename, err)
	}
	defer reader.Close()

	img, format, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("decoding '%s': %v", filename, err)
	}
	out, err := ImageFromGo(img)
	if err != nil {
		return nil, fmt.Errorf("%s '%s': %v", format, filename, err)
	}
	return out, nil
}

// ImageFromGo splits a decoded image into float planes: one for gray
// images, three for anything with color.
func ImageFromGo(img image.Image) (*Image, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("empty image")
	}

	switch src := img.(type) {
	case *image.Gray:
		samples := make([]uint8, 0, w*h)
		for y := 0; y < h; y++ {
			off := y * src.Stride
			samples = append(samples, src.Pix[off:off+w]...)
		}
		return NewImage(8, emath.FromSamples([]int{w, h}, samples)), nil

	case *image.Gray16:
		samples := make([]uint16, 0, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				off := y*src.Stride + 2*x
				samples = append(samples, uint16(src.Pix[off])<<8|uint16(src.Pix[off+1]))
			}
		}
		return NewImage(16, emath.FromSamples([]int{w, h}, samples)), nil
	}

	depth := 8
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64:
		depth = 16
	}

	// Everything else goes through NRGBA64, then gets split per channel
	rgba := image.NewNRGBA64(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	planes := []emath.FloatGrid{emath.NewFloatGrid(w, h), emath.NewFloatGrid(w, h), emath.NewFloatGrid(w, h)}
	div := 1.0
	if depth == 8 {
		div = 257.0
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*rgba.Stride + 8*x
			for c := 0; c < 3; c++ {
				v := uint16(rgba.Pix[off+2*c])<<8 | uint16(rgba.Pix[off+2*c+1])
				planes[c].Set(x, y, float64(v)/div)
			}
		}
	}
	return NewImage(depth, planes...), nil
}

// captureTime returns the EXIF timestamp, or the zero time.
func captureTime(filename string) time.Time {
	reader, err := os.Open(filename)
	if err != nil {
		return time.Time{}
	}
	defer reader.Close()

	if ex, err := exif.Decode(reader); err != nil {
		return time.Time{}
	} else if tm, err := ex.DateTime(); err != nil {
		return time.Time{}
	} else {
		return tm
	}
}

func dimString(dims []int) string {
	strs := make([]string, len(dims))
	for d, v := range dims {
		strs[d] = fmt.Sprintf("%d", v)
	}
	return strings.Join(strs, "x") + "px"
}
