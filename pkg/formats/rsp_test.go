package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/Faultbox/relief-shade/pkg/bandpack"
	"github.com/Faultbox/relief-shade/pkg/layout"
	"github.com/Faultbox/relief-shade/pkg/shadowcodec"
)

// createTestArchive encodes a small tile with one elevation-occlusion group
// and one packed shadow group and returns its serialised form.
func createTestArchive(t *testing.T) (*Archive, []byte) {
	t.Helper()
	plan, err := layout.New([]layout.BandGroup{
		{Bands: 2, Type: layout.ElevationOcclusion},
		{Bands: 1, Packed: true, Type: layout.Shadow},
	})
	if err != nil {
		t.Fatalf("layout.New failed: %v", err)
	}
	enc, err := bandpack.NewEncoder(plan, bandpack.DefaultFixedPointFactor, shadowcodec.Scheme{Directions: 6, ElevationSteps: 32})
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}

	tile := &bandpack.Tile{Width: 3, Height: 2, Gutter: 1}
	for p := range tile.PixelCount() {
		tile.Samples = append(tile.Samples, float32(p)+0.5, 0.8, float32(p*3), float32(p))
	}
	bufs, err := enc.Encode(tile)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	a := NewArchive(tile, enc, bufs)
	var buf bytes.Buffer
	if err := WriteArchive(&buf, a); err != nil {
		t.Fatalf("WriteArchive failed: %v", err)
	}
	return a, buf.Bytes()
}

func TestParseArchive_RoundTrip(t *testing.T) {
	want, data := createTestArchive(t)

	got, err := ParseArchive(data)
	if err != nil {
		t.Fatalf("ParseArchive failed: %v", err)
	}

	if got.Version.String() != "1.0" {
		t.Errorf("expected version 1.0, got %s", got.Version)
	}
	if got.Width != 3 || got.Height != 2 || got.Gutter != 1 {
		t.Errorf("expected 3x2+1, got %dx%d+%d", got.Width, got.Height, got.Gutter)
	}
	if got.Factor != bandpack.DefaultFixedPointFactor {
		t.Errorf("expected factor %v, got %v", float64(bandpack.DefaultFixedPointFactor), got.Factor)
	}
	if got.Scheme != want.Scheme {
		t.Errorf("expected scheme %+v, got %+v", want.Scheme, got.Scheme)
	}
	if len(got.Groups) != 2 || !got.Groups[1].Packed || got.Groups[1].Type != layout.Shadow {
		t.Errorf("unexpected groups %+v", got.Groups)
	}
	if got.ID != want.ID {
		t.Errorf("expected ID %s, got %s", want.ID, got.ID)
	}
	for i := range want.Buffers {
		if !equalUint32(got.Buffers[i].Data, want.Buffers[i].Data) {
			t.Errorf("buffer %d differs after round trip", i)
		}
		if got.Buffers[i].Semantic != want.Buffers[i].Semantic || got.Buffers[i].Bands != want.Buffers[i].Bands {
			t.Errorf("buffer %d: header mismatch", i)
		}
	}
}

func TestParseArchive_InvalidMagic(t *testing.T) {
	_, data := createTestArchive(t)
	data[0] = 'X'
	if _, err := ParseArchive(data); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestParseArchive_UnsupportedVersion(t *testing.T) {
	_, data := createTestArchive(t)
	data[4] = 2
	if _, err := ParseArchive(data); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestParseArchive_Truncated(t *testing.T) {
	_, data := createTestArchive(t)
	for _, n := range []int{0, 5, 20, headerSize + 2, len(data) - 1} {
		if _, err := ParseArchive(data[:n]); !errors.Is(err, ErrTruncated) {
			t.Errorf("length %d: expected ErrTruncated, got %v", n, err)
		}
	}
}

func TestParseArchive_ContentMismatch(t *testing.T) {
	_, data := createTestArchive(t)
	// first byte of the content ID
	data[headerSize+2*3] ^= 0xFF
	if _, err := ParseArchive(data); !errors.Is(err, ErrContentMismatch) {
		t.Errorf("expected ErrContentMismatch, got %v", err)
	}
}

func TestParseArchive_BadLayout(t *testing.T) {
	_, data := createTestArchive(t)
	// bands of the first group
	data[headerSize] = 9
	if _, err := ParseArchive(data); !errors.Is(err, layout.ErrUnsupportedBandCount) {
		t.Errorf("expected ErrUnsupportedBandCount, got %v", err)
	}
}

func TestContentID_Deterministic(t *testing.T) {
	a, _ := createTestArchive(t)
	b, _ := createTestArchive(t)
	if a.ID != b.ID {
		t.Error("identical content must give identical IDs")
	}
	a.Buffers[0].Data[0]++
	if a.ContentID() == b.ID {
		t.Error("changed content must change the ID")
	}

	c, _ := createTestArchive(t)
	c.Factor = 1000
	if c.ContentID() == b.ID {
		t.Error("changed factor must change the ID")
	}
}

func TestParseArchive_HeaderDamage(t *testing.T) {
	tests := []struct {
		name   string
		offset int
	}{
		{"factor", 18},
		{"elevation steps", 28},
		{"group flags", headerSize + 3 + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, data := createTestArchive(t)
			data[tt.offset] ^= 0x01
			if _, err := ParseArchive(data); !errors.Is(err, ErrContentMismatch) {
				t.Errorf("expected ErrContentMismatch, got %v", err)
			}
		})
	}
}

// craftHeader returns a bare header with two valid groups, a zero content ID
// and one empty payload.
func craftHeader(width, height, gutter uint32, factor float64) []byte {
	var buf bytes.Buffer
	buf.WriteString(archiveMagic)
	buf.Write([]byte{versionMajor, versionMinor})
	binary.Write(&buf, binary.LittleEndian, width)
	binary.Write(&buf, binary.LittleEndian, height)
	binary.Write(&buf, binary.LittleEndian, gutter)
	binary.Write(&buf, binary.LittleEndian, factor)
	binary.Write(&buf, binary.LittleEndian, uint16(6))
	binary.Write(&buf, binary.LittleEndian, uint16(32))
	buf.WriteByte(2)
	buf.Write([]byte{2, 0, byte(layout.ElevationOcclusion)})
	buf.Write([]byte{1, flagPacked, byte(layout.Shadow)})
	buf.Write(make([]byte, 16))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	return buf.Bytes()
}

func TestParseArchive_InvalidHeader(t *testing.T) {
	tests := []struct {
		name                  string
		width, height, gutter uint32
		factor                float64
	}{
		{"max dimensions", 0xFFFFFFFF, 0xFFFFFFFF, 0, 100000},
		{"wide", maxTileSide + 1, 2, 1, 100000},
		{"zero height", 3, 0, 1, 100000},
		{"huge gutter", 3, 2, 0xFFFFFFFF, 100000},
		{"zero factor", 3, 2, 1, 0},
		{"nan factor", 3, 2, 1, math.NaN()},
		{"infinite factor", 3, 2, 1, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := craftHeader(tt.width, tt.height, tt.gutter, tt.factor)
			if _, err := ParseArchive(data); !errors.Is(err, ErrInvalidHeader) {
				t.Errorf("expected ErrInvalidHeader, got %v", err)
			}
		})
	}
}

func TestParseArchive_EmptyPayload(t *testing.T) {
	data := craftHeader(3, 2, 1, 100000)
	if _, err := ParseArchive(data); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestSaveLoadArchive(t *testing.T) {
	want, _ := createTestArchive(t)
	path := filepath.Join(t.TempDir(), "tile.rsp")

	if err := SaveArchive(path, want); err != nil {
		t.Fatalf("SaveArchive failed: %v", err)
	}
	got, err := LoadArchive(path)
	if err != nil {
		t.Fatalf("LoadArchive failed: %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("expected ID %s, got %s", want.ID, got.ID)
	}
	if _, err := got.Plan(); err != nil {
		t.Errorf("Plan failed: %v", err)
	}

	if _, err := LoadArchive(filepath.Join(t.TempDir(), "missing.rsp")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteArchive_Mismatch(t *testing.T) {
	a, _ := createTestArchive(t)
	a.Buffers = a.Buffers[:1]
	if err := WriteArchive(&bytes.Buffer{}, a); !errors.Is(err, layout.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestWriteArchive_InvalidHeader(t *testing.T) {
	tests := []struct {
		name   string
		modify func(a *Archive)
	}{
		{"directions", func(a *Archive) { a.Scheme.Directions = 70000 }},
		{"elevation steps", func(a *Archive) { a.Scheme.ElevationSteps = math.MaxUint16 + 1 }},
		{"negative directions", func(a *Archive) { a.Scheme.Directions = -1 }},
		{"width", func(a *Archive) { a.Width = maxTileSide + 1 }},
		{"gutter", func(a *Archive) { a.Gutter = -1 }},
		{"factor", func(a *Archive) { a.Factor = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := createTestArchive(t)
			tt.modify(a)
			var buf bytes.Buffer
			if err := WriteArchive(&buf, a); !errors.Is(err, ErrInvalidHeader) {
				t.Errorf("expected ErrInvalidHeader, got %v", err)
			}
			if buf.Len() != 0 {
				t.Errorf("expected nothing written, got %d bytes", buf.Len())
			}
		})
	}
}

func equalUint32(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
