package raster

import (
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// LoadASCII reads an ESRI ASCII Grid file from disk.
func LoadASCII(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer func() { _ = f.Close() }()

	g, err := ReadASCII(f)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read %s", path)
	}

	zap.L().Debug("raster: loaded grid",
		zap.String("path", path),
		zap.Int("rows", g.Rows),
		zap.Int("cols", g.Cols),
		zap.Float64("pixel_area", g.PixelArea()),
	)
	return g, nil
}

// asciiHeader collects the recognised header keys of an ESRI ASCII Grid.
type asciiHeader struct {
	ncols, nrows   int
	xll, yll       float64
	xCenter        bool
	yCenter        bool
	dx, dy         float64
	nodata         float64
	hasNoData      bool
	seen           map[string]bool
	firstValue     string
	firstValueRead bool
}

// ReadASCII parses an ESRI ASCII Grid. Values must be integral class codes.
func ReadASCII(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)

	h, err := readASCIIHeader(sc)
	if err != nil {
		return nil, err
	}

	t := Transform{
		OriginX:     h.xll,
		OriginY:     h.yll + float64(h.nrows)*h.dy,
		PixelWidth:  h.dx,
		PixelHeight: -h.dy,
	}
	if h.xCenter {
		t.OriginX -= h.dx / 2
	}
	if h.yCenter {
		t.OriginY -= h.dy / 2
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	values := make([]int32, 0, h.ncols*h.nrows)
	next := func() (string, bool) {
		if h.firstValueRead {
			h.firstValueRead = false
			return h.firstValue, true
		}
		if !sc.Scan() {
			return "", false
		}
		return sc.Text(), true
	}

	for len(values) < cap(values) {
		tok, ok := next()
		if !ok {
			break
		}
		v, err := parseClassValue(tok)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: value %d", len(values))
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: scan values")
	}
	if len(values) != h.ncols*h.nrows {
		return nil, eris.Errorf("raster: expected %d values, got %d", h.ncols*h.nrows, len(values))
	}

	g := &Grid{Rows: h.nrows, Cols: h.ncols, Transform: t, values: values}
	if h.hasNoData {
		nd, err := toClassCode(h.nodata)
		if err != nil {
			return nil, eris.Wrap(err, "raster: nodata_value")
		}
		g.NoData, g.HasNoData = nd, true
	}
	return g, nil
}

func readASCIIHeader(sc *bufio.Scanner) (*asciiHeader, error) {
	h := &asciiHeader{seen: make(map[string]bool)}

	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			// first data value, header is over
			h.firstValue, h.firstValueRead = sc.Text(), true
			break
		}
		if !sc.Scan() {
			return nil, eris.Errorf("raster: header key %q has no value", key)
		}
		raw := sc.Text()
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: header %s", key)
		}

		switch key {
		case "ncols":
			h.ncols = int(val)
		case "nrows":
			h.nrows = int(val)
		case "xllcorner":
			h.xll = val
		case "xllcenter":
			h.xll, h.xCenter = val, true
		case "yllcorner":
			h.yll = val
		case "yllcenter":
			h.yll, h.yCenter = val, true
		case "cellsize":
			h.dx, h.dy = val, val
		case "dx":
			h.dx = val
		case "dy":
			h.dy = val
		case "nodata_value":
			h.nodata, h.hasNoData = val, true
		default:
			return nil, eris.Errorf("raster: unknown header key %q", key)
		}
		h.seen[key] = true
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: scan header")
	}

	if h.ncols <= 0 || h.nrows <= 0 {
		return nil, eris.New("raster: header missing ncols/nrows")
	}
	if !(h.seen["xllcorner"] || h.seen["xllcenter"]) || !(h.seen["yllcorner"] || h.seen["yllcenter"]) {
		return nil, eris.New("raster: header missing lower-left coordinate")
	}
	if h.dx <= 0 || h.dy <= 0 {
		return nil, eris.New("raster: header missing cell size")
	}
	return h, nil
}

func parseClassValue(tok string) (int32, error) {
	if v, err := strconv.ParseInt(tok, 10, 32); err == nil {
		return int32(v), nil
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "raster: parse %q", tok)
	}
	return toClassCode(f)
}

func toClassCode(f float64) (int32, error) {
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, eris.Errorf("raster: %v is not an integer class code", f)
	}
	return int32(f), nil
}
