package tiles

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// A TileEntry is one line of a tile configuration file.
type TileEntry struct {
	Filename string
	Offset   []float64
}

// WriteTileConfiguration writes the positions of the tiles in the
// plain text format Fiji uses (TileConfiguration.txt):
//
//	dim = 2
//	tile1.tif; ; (0.0, 0.0)
func WriteTileConfiguration(w io.Writer, tiles []*Tile) error {
	if len(tiles) == 0 {
		return errors.Wrap(ErrConfiguration, "no tiles to write")
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Define the number of dimensions we are working on\n")
	fmt.Fprintf(bw, "dim = %d\n\n", tiles[0].NumDims)
	fmt.Fprintf(bw, "# Define the image coordinates\n")
	for _, t := range tiles {
		params := t.Model.Params()
		strs := make([]string, len(params))
		for d, v := range params {
			strs[d] = strconv.FormatFloat(v, 'f', -1, 64)
			if !strings.Contains(strs[d], ".") {
				strs[d] += ".0"
			}
		}
		name := t.Name
		if t.Filename != "" {
			name = filepath.Base(t.Filename)
		}
		fmt.Fprintf(bw, "%s; ; (%s)\n", name, strings.Join(strs, ", "))
	}
	return bw.Flush()
}

func WriteTileConfigurationFile(filename string, tiles []*Tile) error {
	if writer, err := os.Create(filename); err != nil {
		return errors.Wrapf(ErrIO, "open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return WriteTileConfiguration(writer, tiles)
	}
}

// ReadTileConfiguration parses the format written by WriteTileConfiguration.
func ReadTileConfiguration(r io.Reader) ([]TileEntry, error) {
	entries := []TileEntry{}
	dim := 0
	scanner := bufio.NewScanner(r)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "dim") {
			fields := strings.SplitN(line, "=", 2)
			if len(fields) != 2 {
				return nil, errors.Wrapf(ErrConfiguration, "line %d: bad dim '%s'", lineNo, line)
			}
			n, err := strconv.Atoi(strings.TrimSpace(fields[1]))
			if err != nil || (n != 2 && n != 3) {
				return nil, errors.Wrapf(ErrConfiguration, "line %d: bad dim '%s'", lineNo, line)
			}
			dim = n
			continue
		}

		fields := strings.Split(line, ";")
		if len(fields) != 3 {
			return nil, errors.Wrapf(ErrConfiguration, "line %d: want 'file; ; (x, y)', got '%s'", lineNo, line)
		}
		coords := strings.Trim(strings.TrimSpace(fields[2]), "()")
		parts := strings.Split(coords, ",")
		if dim != 0 && len(parts) != dim {
			return nil, errors.Wrapf(ErrConfiguration, "line %d: %d coordinates, dim is %d", lineNo, len(parts), dim)
		}

		entry := TileEntry{Filename: strings.TrimSpace(fields[0])}
		for _, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, errors.Wrapf(ErrConfiguration, "line %d: coordinate '%s': %v", lineNo, p, err)
			}
			entry.Offset = append(entry.Offset, v)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(ErrIO, "reading tile configuration: %v", err)
	}
	return entries, nil
}

// LoadTileConfigurationFile reads a tile configuration, and creates a
// tile per entry with its filename resolved against the file's directory.
func LoadTileConfigurationFile(filename string) ([]*Tile, error) {
	reader, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(ErrIO, "open+r '%s': %v", filename, err)
	}
	defer reader.Close()

	entries, err := ReadTileConfiguration(reader)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", filename)
	}

	tiles := []*Tile{}
	dir := filepath.Dir(filename)
	for i, e := range entries {
		t := NewTileFromFile(i, filepath.Join(dir, e.Filename))
		t.NumDims = len(e.Offset)
		t.SetOffset(e.Offset)
		tiles = append(tiles, t)
	}
	return tiles, nil
}
