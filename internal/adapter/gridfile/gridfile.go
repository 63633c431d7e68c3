// Package gridfile reads and writes the zstd-compressed grid files that carry
// ensemble discharge cubes and return-period threshold grids.
//
// A file is one zstd stream holding:
//
//	magic    4 bytes  "FTGD"
//	hdrLen   uint32   little-endian length of the JSON header
//	header   hdrLen bytes of JSON
//	payload  float32 little-endian values, row-major in header dimension order
//
// Cubes are laid out [date][member][step][lat][lon]; thresholds [lat][lon].
// Missing cells are NaN or the header's fill_value.
package gridfile

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/couchcryptid/flood-trigger-service/internal/domain"
)

const (
	magic = "FTGD"

	// float32ByteSize is the number of bytes per payload value.
	float32ByteSize = 4

	// maxHeaderSize guards against reading a corrupt length prefix.
	maxHeaderSize = 16 << 20

	dateLayout = "2006-01-02"

	KindCube      = "cube"
	KindThreshold = "threshold"

	VariableDischarge = "dis24"
)

var (
	// ErrBadMagic is returned for streams that are not grid files.
	ErrBadMagic = errors.New("gridfile: bad magic")
	// ErrShape is returned when the payload does not match the header dimensions.
	ErrShape = errors.New("gridfile: payload does not match header dimensions")
)

// Header describes the dimensions of a grid file payload.
type Header struct {
	Kind         string    `json:"kind"`
	Variable     string    `json:"variable"`
	Lats         []float64 `json:"lats"`
	Lons         []float64 `json:"lons"`
	Dates        []string  `json:"dates,omitempty"`
	Members      int       `json:"members,omitempty"`
	LeadDays     []int     `json:"lead_days,omitempty"`
	ReturnPeriod float64   `json:"return_period,omitempty"`
	FillValue    *float32  `json:"fill_value,omitempty"`
}

func (h Header) size() int {
	cells := len(h.Lats) * len(h.Lons)
	if h.Kind == KindCube {
		return len(h.Dates) * h.Members * len(h.LeadDays) * cells
	}
	return cells
}

// Encode writes a header and payload to w as one zstd stream.
func Encode(w io.Writer, h Header, values []float32) error {
	if len(values) != h.size() {
		return fmt.Errorf("%w: have %d values, header implies %d", ErrShape, len(values), h.size())
	}
	hdr, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	bw := bufio.NewWriter(enc)

	var prefix [8]byte
	copy(prefix[:4], magic)
	binary.LittleEndian.PutUint32(prefix[4:], uint32(len(hdr)))
	if _, err := bw.Write(prefix[:]); err != nil {
		_ = enc.Close()
		return fmt.Errorf("write prefix: %w", err)
	}
	if _, err := bw.Write(hdr); err != nil {
		_ = enc.Close()
		return fmt.Errorf("write header: %w", err)
	}
	var buf [float32ByteSize]byte
	for _, v := range values {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := bw.Write(buf[:]); err != nil {
			_ = enc.Close()
			return fmt.Errorf("write payload: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return fmt.Errorf("flush payload: %w", err)
	}
	return enc.Close()
}

// Decode reads a header and payload from a zstd stream.
func Decode(r io.Reader) (Header, []float32, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return Header{}, nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	br := bufio.NewReader(dec)

	var prefix [8]byte
	if _, err := io.ReadFull(br, prefix[:]); err != nil {
		return Header{}, nil, fmt.Errorf("read prefix: %w", err)
	}
	if string(prefix[:4]) != magic {
		return Header{}, nil, ErrBadMagic
	}
	n := binary.LittleEndian.Uint32(prefix[4:])
	if n > maxHeaderSize {
		return Header{}, nil, fmt.Errorf("header length %d exceeds limit", n)
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(br, raw); err != nil {
		return Header{}, nil, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return Header{}, nil, fmt.Errorf("parse header: %w", err)
	}

	payload, err := io.ReadAll(br)
	if err != nil {
		return Header{}, nil, fmt.Errorf("read payload: %w", err)
	}
	values, err := parseFloat32s(payload)
	if err != nil {
		return Header{}, nil, err
	}
	if len(values) != h.size() {
		return Header{}, nil, fmt.Errorf("%w: have %d values, header implies %d", ErrShape, len(values), h.size())
	}
	return h, values, nil
}

// parseFloat32s converts raw little-endian bytes into float32 values.
func parseFloat32s(data []byte) ([]float32, error) {
	if len(data)%float32ByteSize != 0 {
		return nil, fmt.Errorf("%w: payload length %d is not a multiple of %d bytes", ErrShape, len(data), float32ByteSize)
	}
	out := make([]float32, len(data)/float32ByteSize)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*float32ByteSize:]))
	}
	return out, nil
}

// ReadCube loads an ensemble forecast cube.
func ReadCube(path string) (*domain.ForecastCube, error) {
	h, values, err := readFile(path, KindCube)
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, len(h.Dates))
	for i, s := range h.Dates {
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("read cube %s: date %q: %w", path, s, err)
		}
		dates[i] = d
	}
	return &domain.ForecastCube{
		Grid:      domain.GridCoordinates{Lats: h.Lats, Lons: h.Lons},
		Dates:     dates,
		Members:   h.Members,
		LeadDays:  h.LeadDays,
		Values:    values,
		FillValue: h.FillValue,
	}, nil
}

// ReadThreshold loads a return-period threshold grid.
func ReadThreshold(path string) (*domain.ThresholdGrid, error) {
	h, values, err := readFile(path, KindThreshold)
	if err != nil {
		return nil, err
	}
	return &domain.ThresholdGrid{
		Grid:         domain.GridCoordinates{Lats: h.Lats, Lons: h.Lons},
		ReturnPeriod: h.ReturnPeriod,
		Values:       values,
		FillValue:    h.FillValue,
	}, nil
}

func readFile(path, kind string) (Header, []float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()

	h, values, err := Decode(f)
	if err != nil {
		return Header{}, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if h.Kind != kind {
		return Header{}, nil, fmt.Errorf("read %s: kind %q, want %q", path, h.Kind, kind)
	}
	return h, values, nil
}

// WriteCube stores a cube at path, replacing any existing file atomically.
func WriteCube(path string, c *domain.ForecastCube) error {
	dates := make([]string, len(c.Dates))
	for i, d := range c.Dates {
		dates[i] = d.Format(dateLayout)
	}
	h := Header{
		Kind:      KindCube,
		Variable:  VariableDischarge,
		Lats:      c.Grid.Lats,
		Lons:      c.Grid.Lons,
		Dates:     dates,
		Members:   c.Members,
		LeadDays:  c.LeadDays,
		FillValue: c.FillValue,
	}
	return writeFile(path, h, c.Values)
}

// WriteThreshold stores a threshold grid at path, replacing any existing file atomically.
func WriteThreshold(path string, g *domain.ThresholdGrid) error {
	h := Header{
		Kind:         KindThreshold,
		Variable:     VariableDischarge,
		Lats:         g.Grid.Lats,
		Lons:         g.Grid.Lons,
		ReturnPeriod: g.ReturnPeriod,
		FillValue:    g.FillValue,
	}
	return writeFile(path, h, g.Values)
}

func writeFile(path string, h Header, values []float32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, h, values); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}
