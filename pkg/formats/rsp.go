// Package formats reads and writes relief-shade packed tile archives (.rsp).
//
// An archive stores the packed buffers of one encoded tile together with the
// layout that produced them, so a renderer can decode it without any other
// configuration. Layout (little-endian):
//
//	magic "RSHP", version major u8, minor u8
//	width, height, gutter u32
//	fixed-point factor f64
//	directions, elevation steps u16
//	group count u8, then per group: bands u8, flags u8 (bit 0 packed), semantic u8
//	content ID [16]byte
//	per group: compressed size u32, zstd payload of pixels*bands u32 values
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/Faultbox/relief-shade/pkg/bandpack"
	"github.com/Faultbox/relief-shade/pkg/layout"
	"github.com/Faultbox/relief-shade/pkg/shadowcodec"
)

// Archive format errors.
var (
	ErrInvalidMagic       = errors.New("invalid archive magic: expected 'RSHP'")
	ErrUnsupportedVersion = errors.New("unsupported archive version")
	ErrTruncated          = errors.New("truncated archive data")
	ErrContentMismatch    = errors.New("archive content does not match its ID")
	ErrInvalidHeader      = errors.New("invalid archive header")
)

const (
	archiveMagic = "RSHP"
	versionMajor = 1
	versionMinor = 0

	flagPacked = 1 << 0

	// headerSize is everything before the group table.
	headerSize = 4 + 2 + 12 + 8 + 4 + 1

	maxTileSide = 1 << 13
	maxGutter   = 1 << 8

	// maxDecodeHint caps the buffer preallocated ahead of decompression.
	maxDecodeHint = 64 << 20
	// maxDecodedSize bounds the output of a single payload.
	maxDecodedSize = 4 * (maxTileSide + 2*maxGutter) * (maxTileSide + 2*maxGutter) * layout.MaxSlots
)

// contentNamespace scopes archive content IDs.
var contentNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("relief-shade/rsp"))

// Version is the archive format version.
type Version struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Archive is one encoded tile with its layout.
type Archive struct {
	Version Version
	Width   int
	Height  int
	Gutter  int
	Factor  float64
	Scheme  shadowcodec.Scheme
	Groups  []layout.BandGroup
	ID      uuid.UUID
	Buffers []bandpack.PackedBuffer
}

// NewArchive wraps the output of an encoder for tile t.
func NewArchive(t *bandpack.Tile, enc *bandpack.Encoder, bufs []bandpack.PackedBuffer) *Archive {
	a := &Archive{
		Version: Version{versionMajor, versionMinor},
		Width:   t.Width,
		Height:  t.Height,
		Gutter:  t.Gutter,
		Factor:  enc.Factor(),
		Scheme:  enc.Scheme(),
		Groups:  enc.Plan().Groups(),
		Buffers: bufs,
	}
	a.ID = a.ContentID()
	return a
}

// GridSize returns the gutter-inclusive dimensions of the stored buffers.
func (a *Archive) GridSize() (w, h int) {
	return a.Width + 2*a.Gutter, a.Height + 2*a.Gutter
}

// Plan rebuilds the layout plan the archive was encoded with.
func (a *Archive) Plan() (*layout.Plan, error) {
	return layout.New(a.Groups)
}

// Tile returns an empty tile with the archive's shape, for sampling.
func (a *Archive) Tile() *bandpack.Tile {
	return &bandpack.Tile{Width: a.Width, Height: a.Height, Gutter: a.Gutter}
}

// ContentID derives a deterministic ID from the tile shape, encoding
// parameters, group table and packed buffer contents.
func (a *Archive) ContentID() uuid.UUID {
	var raw bytes.Buffer
	writeHeader(&raw, a)
	for _, b := range a.Buffers {
		raw.WriteByte(byte(b.Semantic))
		raw.WriteByte(byte(b.Bands))
		binary.Write(&raw, binary.LittleEndian, b.Data)
	}
	return uuid.NewSHA1(contentNamespace, raw.Bytes())
}

// validateHeader checks the fields that are stored with fixed widths or that
// size the payload buffers.
func validateHeader(width, height, gutter int64, factor float64, directions, steps int) error {
	switch {
	case width < 1 || width > maxTileSide || height < 1 || height > maxTileSide:
		return fmt.Errorf("%w: tile size %dx%d, max %d", ErrInvalidHeader, width, height, maxTileSide)
	case gutter < 0 || gutter > maxGutter:
		return fmt.Errorf("%w: gutter %d, max %d", ErrInvalidHeader, gutter, maxGutter)
	case math.IsNaN(factor) || math.IsInf(factor, 0) || factor <= 0:
		return fmt.Errorf("%w: fixed-point factor %v", ErrInvalidHeader, factor)
	case directions < 0 || directions > math.MaxUint16 || steps < 0 || steps > math.MaxUint16:
		return fmt.Errorf("%w: shadow scheme %d directions, %d steps", ErrInvalidHeader, directions, steps)
	}
	return nil
}

// writeHeader writes the fields between the version and the content ID.
func writeHeader(buf *bytes.Buffer, a *Archive) {
	binary.Write(buf, binary.LittleEndian, uint32(a.Width))
	binary.Write(buf, binary.LittleEndian, uint32(a.Height))
	binary.Write(buf, binary.LittleEndian, uint32(a.Gutter))
	binary.Write(buf, binary.LittleEndian, a.Factor)
	binary.Write(buf, binary.LittleEndian, uint16(a.Scheme.Directions))
	binary.Write(buf, binary.LittleEndian, uint16(a.Scheme.ElevationSteps))
	buf.WriteByte(uint8(len(a.Groups)))
	for _, g := range a.Groups {
		var flags uint8
		if g.Packed {
			flags |= flagPacked
		}
		buf.Write([]byte{uint8(g.Bands), flags, uint8(g.Type)})
	}
}

func newZstdEncoder() *zstd.Encoder {
	enc, err := zstd.NewWriter(
		nil,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
	)
	if err != nil {
		panic(err)
	}
	return enc
}

func newZstdDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxDecodedSize),
	)
	if err != nil {
		panic(err)
	}
	return dec
}

var (
	encPool = sync.Pool{New: func() any { return newZstdEncoder() }}
	decPool = sync.Pool{New: func() any { return newZstdDecoder() }}
)

func compress(data []byte) []byte {
	enc := encPool.Get().(*zstd.Encoder)
	defer encPool.Put(enc)
	return enc.EncodeAll(data, nil)
}

func decompress(data []byte, size int) ([]byte, error) {
	dec := decPool.Get().(*zstd.Decoder)
	defer decPool.Put(dec)
	return dec.DecodeAll(data, make([]byte, 0, min(size, maxDecodeHint)))
}

// WriteArchive serialises a to w.
func WriteArchive(w io.Writer, a *Archive) error {
	if len(a.Groups) != len(a.Buffers) || len(a.Groups) > 255 {
		return fmt.Errorf("%w: %d groups for %d buffers", layout.ErrConfiguration, len(a.Groups), len(a.Buffers))
	}
	if err := validateHeader(int64(a.Width), int64(a.Height), int64(a.Gutter), a.Factor,
		a.Scheme.Directions, a.Scheme.ElevationSteps); err != nil {
		return err
	}
	gw, gh := a.GridSize()
	pixels := gw * gh

	buf := new(bytes.Buffer)
	buf.WriteString(archiveMagic)
	buf.WriteByte(versionMajor)
	buf.WriteByte(versionMinor)
	writeHeader(buf, a)

	id := a.ContentID()
	buf.Write(id[:])

	for i, b := range a.Buffers {
		if len(b.Data) != pixels*a.Groups[i].Bands {
			return fmt.Errorf("%w: buffer %d holds %d values, expected %d",
				layout.ErrConfiguration, i, len(b.Data), pixels*a.Groups[i].Bands)
		}
		raw := make([]byte, 4*len(b.Data))
		for j, v := range b.Data {
			binary.LittleEndian.PutUint32(raw[4*j:], v)
		}
		payload := compress(raw)
		binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
		buf.Write(payload)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// ParseArchive parses an archive from raw bytes and verifies its content ID.
func ParseArchive(data []byte) (*Archive, error) {
	if len(data) < 6 {
		return nil, ErrTruncated
	}
	if string(data[0:4]) != archiveMagic {
		return nil, ErrInvalidMagic
	}
	version := Version{Major: data[4], Minor: data[5]}
	if version.Major != versionMajor {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, version)
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: reading header", ErrTruncated)
	}

	r := bytes.NewReader(data[6:])
	var hdr struct {
		Width, Height, Gutter uint32
		Factor                float64
		Directions, Steps     uint16
		GroupCount            uint8
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: reading header", ErrTruncated)
	}
	if err := validateHeader(int64(hdr.Width), int64(hdr.Height), int64(hdr.Gutter), hdr.Factor,
		int(hdr.Directions), int(hdr.Steps)); err != nil {
		return nil, err
	}

	a := &Archive{
		Version: version,
		Width:   int(hdr.Width),
		Height:  int(hdr.Height),
		Gutter:  int(hdr.Gutter),
		Factor:  hdr.Factor,
		Scheme:  shadowcodec.Scheme{Directions: int(hdr.Directions), ElevationSteps: int(hdr.Steps)},
		Groups:  make([]layout.BandGroup, hdr.GroupCount),
	}

	for i := range a.Groups {
		var g [3]byte
		if _, err := io.ReadFull(r, g[:]); err != nil {
			return nil, fmt.Errorf("%w: reading group %d", ErrTruncated, i)
		}
		a.Groups[i] = layout.BandGroup{
			Bands:  int(g[0]),
			Packed: g[1]&flagPacked != 0,
			Type:   layout.Semantic(g[2]),
		}
	}
	if _, err := a.Plan(); err != nil {
		return nil, fmt.Errorf("archive layout: %w", err)
	}

	if _, err := io.ReadFull(r, a.ID[:]); err != nil {
		return nil, fmt.Errorf("%w: reading content ID", ErrTruncated)
	}

	gw, gh := a.GridSize()
	pixels := gw * gh
	a.Buffers = make([]bandpack.PackedBuffer, len(a.Groups))
	for i, g := range a.Groups {
		b, err := readBuffer(r, g, pixels)
		if err != nil {
			return nil, fmt.Errorf("buffer %d: %w", i, err)
		}
		a.Buffers[i] = b
	}

	if a.ContentID() != a.ID {
		return nil, fmt.Errorf("%w: %s", ErrContentMismatch, a.ID)
	}
	return a, nil
}

func readBuffer(r *bytes.Reader, g layout.BandGroup, pixels int) (bandpack.PackedBuffer, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return bandpack.PackedBuffer{}, fmt.Errorf("%w: reading payload size", ErrTruncated)
	}
	if int64(size) > int64(r.Len()) {
		return bandpack.PackedBuffer{}, fmt.Errorf("%w: payload of %d bytes", ErrTruncated, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return bandpack.PackedBuffer{}, fmt.Errorf("%w: reading payload", ErrTruncated)
	}

	want := int64(4) * int64(pixels) * int64(g.Bands)
	if want > maxDecodedSize {
		return bandpack.PackedBuffer{}, fmt.Errorf("%w: %d pixels of %d bands", ErrInvalidHeader, pixels, g.Bands)
	}
	raw, err := decompress(payload, int(want))
	if err != nil {
		return bandpack.PackedBuffer{}, fmt.Errorf("decompressing: %w", err)
	}
	if int64(len(raw)) != want {
		return bandpack.PackedBuffer{}, fmt.Errorf("%w: %d bytes, expected %d", ErrTruncated, len(raw), want)
	}

	out := bandpack.PackedBuffer{Semantic: g.Type, Bands: g.Bands, Data: make([]uint32, pixels*g.Bands)}
	for j := range out.Data {
		out.Data[j] = binary.LittleEndian.Uint32(raw[4*j:])
	}
	return out, nil
}

// SaveArchive writes a to path.
func SaveArchive(path string, a *Archive) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	if err := WriteArchive(f, a); err != nil {
		f.Close()
		return fmt.Errorf("writing archive: %w", err)
	}
	return f.Close()
}

// LoadArchive reads and parses the archive at path.
func LoadArchive(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	return ParseArchive(data)
}
