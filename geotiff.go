package demgrid

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/geotiff"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/image/tiff/lzw"
)

var errShortRead = errors.New("short read")

var (
	blockCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demgrid_block_cache_hits_total",
		Help: "The total number of hits on the decoded block cache",
	})
	blockCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demgrid_block_cache_misses_total",
		Help: "The total number of misses on the decoded block cache",
	})
	blockCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demgrid_block_cache_evictions_total",
		Help: "The total number of evictions from the decoded block cache",
	})
)

const (
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionOldDeflate = 32946
)

const (
	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3
)

// A File is an open single-band GeoTIFF elevation file. Classic
// little-endian files in strip or tile layout are supported, with unsigned,
// signed, or floating point samples, stored raw or compressed with LZW or
// Deflate. Samples are decoded lazily one block at a time and cached.
type File struct {
	file            *os.File
	imageWidth      int
	imageLength     int
	tiled           bool
	blockWidth      int
	blockLength     int
	blocksAcross    int
	blocksDown      int
	blockOffsets    []uint64
	blockByteCounts []uint64
	compression     uint16
	sampleFormat    uint16
	bitsPerSample   uint16
	bounds          Bounds
	noData          *float64
	crsLabel        string
	blockCacheSize  int
	blockCache      *lru.Cache[int, []float64]
}

type FileOption func(*File)

// WithBlockCacheSize sets the maximum number of decoded blocks held in
// memory.
func WithBlockCacheSize(blockCacheSize int) FileOption {
	return func(f *File) {
		f.blockCacheSize = blockCacheSize
	}
}

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	ImageWidth                uint16    `tiff:"field,tag=256"`
	ImageLength               uint16    `tiff:"field,tag=257"`
	BitsPerSample             uint16    `tiff:"field,tag=258"`
	Compression               uint16    `tiff:"field,tag=259"`
	PhotometricInterpretation uint16    `tiff:"field,tag=262"`
	StripOffsets              []uint64  `tiff:"field,tag=273"`
	SamplesPerPixel           uint16    `tiff:"field,tag=277"`
	RowsPerStrip              uint16    `tiff:"field,tag=278"`
	StripByteCounts           []uint64  `tiff:"field,tag=279"`
	PlanarConfiguration       uint16    `tiff:"field,tag=284"`
	Predictor                 uint16    `tiff:"field,tag=317"`
	TileWidth                 uint16    `tiff:"field,tag=322"`
	TileLength                uint16    `tiff:"field,tag=323"`
	TileOffsets               []uint64  `tiff:"field,tag=324"`
	TileByteCounts            []uint64  `tiff:"field,tag=325"`
	SampleFormat              uint16    `tiff:"field,tag=339"`
	ModelPixelScaleTag        []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag          []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag        []uint16  `tiff:"field,tag=34735"`
	GDALNoData                string    `tiff:"field,tag=42113"`
}

// Open opens the GeoTIFF elevation file filename in fsys.
func Open(fsys fs.FS, filename string, options ...FileOption) (*File, error) {
	ok := false

	f := &File{
		blockCacheSize: 32,
	}
	for _, option := range options {
		option(f)
	}

	file, err := fsys.Open(filename)
	if err != nil {
		return nil, err
	}
	osFile, isOSFile := file.(*os.File)
	if !isOSFile {
		_ = file.Close()
		return nil, errors.ErrUnsupported
	}
	f.file = osFile
	defer func() {
		if !ok {
			_ = f.file.Close()
		}
	}()

	// Blocks are decoded with hardwired little-endian order, so reject
	// big-endian files before parsing anything else.
	var order [2]byte
	if _, err := f.file.ReadAt(order[:], 0); err != nil {
		return nil, err
	}
	if string(order[:]) == "MM" {
		return nil, errors.ErrUnsupported
	}

	tiffTIFF, err := tiff.Parse(f.file, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, err
	}

	// The first IFD is the full-resolution image. Any further IFDs hold
	// reduced-resolution overviews and are ignored.
	if len(tiffTIFF.IFDs()) == 0 {
		return nil, errors.New("no IFDs")
	}
	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return nil, err
	}

	// Omitted tags take their TIFF default values.
	if ifd.Compression == 0 {
		ifd.Compression = compressionNone
	}
	if ifd.SamplesPerPixel == 0 {
		ifd.SamplesPerPixel = 1
	}
	if ifd.PlanarConfiguration == 0 {
		ifd.PlanarConfiguration = 1
	}
	if ifd.Predictor == 0 {
		ifd.Predictor = 1
	}
	if ifd.SampleFormat == 0 {
		ifd.SampleFormat = sampleFormatUint
	}

	if ifd.PhotometricInterpretation > 1 ||
		ifd.SamplesPerPixel != 1 ||
		ifd.PlanarConfiguration != 1 ||
		ifd.Predictor != 1 {
		return nil, errors.ErrUnsupported
	}
	switch ifd.SampleFormat {
	case sampleFormatUint, sampleFormatInt:
		if ifd.BitsPerSample != 8 && ifd.BitsPerSample != 16 && ifd.BitsPerSample != 32 {
			return nil, errors.ErrUnsupported
		}
	case sampleFormatFloat:
		if ifd.BitsPerSample != 32 && ifd.BitsPerSample != 64 {
			return nil, errors.ErrUnsupported
		}
	default:
		return nil, errors.ErrUnsupported
	}
	f.sampleFormat = ifd.SampleFormat
	f.bitsPerSample = ifd.BitsPerSample

	switch ifd.Compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionOldDeflate:
		f.compression = ifd.Compression
	default:
		return nil, errors.ErrUnsupported
	}

	f.imageWidth = int(ifd.ImageWidth)
	f.imageLength = int(ifd.ImageLength)
	if f.imageWidth == 0 || f.imageLength == 0 {
		return nil, errors.New("empty image")
	}

	switch {
	case len(ifd.TileOffsets) > 0 && len(ifd.StripOffsets) > 0:
		return nil, errors.New("both strip and tile offsets")
	case len(ifd.TileOffsets) > 0:
		if ifd.TileWidth == 0 || ifd.TileLength == 0 {
			return nil, errors.New("missing tile dimensions")
		}
		f.tiled = true
		f.blockWidth = int(ifd.TileWidth)
		f.blockLength = int(ifd.TileLength)
		f.blockOffsets = ifd.TileOffsets
		f.blockByteCounts = ifd.TileByteCounts
	case len(ifd.StripOffsets) > 0:
		rowsPerStrip := int(ifd.RowsPerStrip)
		if rowsPerStrip == 0 {
			rowsPerStrip = f.imageLength
		}
		f.blockWidth = f.imageWidth
		f.blockLength = rowsPerStrip
		f.blockOffsets = ifd.StripOffsets
		f.blockByteCounts = ifd.StripByteCounts
	default:
		return nil, errors.New("no strip or tile offsets")
	}
	f.blocksAcross = (f.imageWidth + f.blockWidth - 1) / f.blockWidth
	f.blocksDown = (f.imageLength + f.blockLength - 1) / f.blockLength
	blocksPerImage := f.blocksAcross * f.blocksDown
	if len(f.blockOffsets) != blocksPerImage || len(f.blockByteCounts) != blocksPerImage {
		return nil, errors.New("incorrect number of block byte counts or offsets")
	}

	if len(ifd.ModelPixelScaleTag) != 3 || len(ifd.ModelTiepointTag) != 6 {
		return nil, errors.ErrUnsupported
	}
	scaleX, scaleY := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1]
	if scaleX <= 0 || scaleY <= 0 {
		return nil, errors.ErrUnsupported
	}
	// Only maps anchored at the raster origin are supported.
	if i, j, k := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1], ifd.ModelTiepointTag[2]; i != 0 || j != 0 || k != 0 {
		return nil, errors.ErrUnsupported
	}
	x, y := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4]
	f.bounds = Bounds{
		Left:   x,
		Bottom: y - scaleY*float64(f.imageLength),
		Right:  x + scaleX*float64(f.imageWidth),
		Top:    y,
	}

	f.noData = parseNoData(ifd.GDALNoData)

	// A malformed GeoKey directory costs the advisory label, not the
	// elevations.
	if label, err := crsLabel(ifd.GeoKeyDirectoryTag); err == nil {
		f.crsLabel = label
	}

	f.blockCache, err = lru.NewWithEvict(f.blockCacheSize, func(int, []float64) {
		blockCacheEvictions.Inc()
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return f, nil
}

// parseNoData parses the GDAL nodata tag, which is written as ASCII,
// sometimes NUL padded.
func parseNoData(s string) *float64 {
	s = strings.TrimRight(s, "\x00 ")
	if s == "" {
		return nil
	}
	noData, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &noData
}

func (f *File) Close() error {
	return f.file.Close()
}

// Dims returns the width and height of f in samples.
func (f *File) Dims() (int, int) {
	return f.imageWidth, f.imageLength
}

// Bounds returns the geographic extent of f.
func (f *File) Bounds() Bounds {
	return f.bounds
}

// CRSLabel returns the EPSG label of f's coordinate reference system, or the
// empty string if the file does not name one.
func (f *File) CRSLabel() string {
	return f.crsLabel
}

// NoData returns the nodata sentinel declared by f, or nil if the file does
// not declare one.
func (f *File) NoData() *float64 {
	if f.noData == nil {
		return nil
	}
	noData := *f.noData
	return &noData
}

// Sample returns the sample at coord, with nodata mapped to NaN. Coordinates
// outside the image are NaN.
func (f *File) Sample(coord Coord) (float64, error) {
	samples, err := f.Samples([]Coord{coord})
	if err != nil {
		return 0, err
	}
	return samples[0], nil
}

// Samples returns the samples at coords, with nodata mapped to NaN.
// Coordinates outside the image are NaN. It is significantly faster than
// calling [File.Sample] for each coordinate.
func (f *File) Samples(coords []Coord) ([]float64, error) {
	samples := make([]float64, len(coords))

	// Group indexes by block.
	indexesByBlock := make(map[int][]int)
	for index, coord := range coords {
		blockIndex, ok := f.blockIndex(coord)
		if !ok {
			samples[index] = math.NaN()
			continue
		}
		indexesByBlock[blockIndex] = append(indexesByBlock[blockIndex], index)
	}

	// Populate samples one block at a time.
	for blockIndex, indexes := range indexesByBlock {
		blockSamples, err := f.blockAt(blockIndex)
		if err != nil {
			return nil, err
		}
		for _, index := range indexes {
			samples[index] = f.blockSample(blockSamples, coords[index])
		}
	}

	return samples, nil
}

// ElevationAt returns the bilinearly interpolated elevation at the
// geographic point (lon, lat), interpolating between cell centres. It
// returns NaN outside the file's bounds and at missing data.
func (f *File) ElevationAt(lon, lat float64) (float64, error) {
	pt, ok := pixelPos(f.bounds, f.imageWidth, f.imageLength, lon, lat)
	if !ok {
		return math.NaN(), nil
	}
	samples, err := InterpolateBilinear(f, []Point{pt})
	if err != nil {
		return 0, err
	}
	return samples[0], nil
}

// ReadRaster reads the full elevation band into memory. The returned raster
// holds raw sample values, including any nodata sentinels, and shares no
// state with f.
func (f *File) ReadRaster() (*Raster, error) {
	band := make([][]float64, f.imageLength)
	for y := range band {
		band[y] = make([]float64, f.imageWidth)
	}
	// Bulk reads bypass the block cache: every block is visited exactly
	// once.
	for blockIndex := range f.blockOffsets {
		blockSamples, err := f.readBlock(blockIndex)
		if err != nil {
			return nil, err
		}
		x0 := (blockIndex % f.blocksAcross) * f.blockWidth
		y0 := (blockIndex / f.blocksAcross) * f.blockLength
		width := min(f.blockWidth, f.imageWidth-x0)
		height := min(f.blockLength, f.imageLength-y0)
		for y := range height {
			copy(band[y0+y][x0:x0+width], blockSamples[y*f.blockWidth:y*f.blockWidth+width])
		}
	}

	raster := &Raster{
		Band:     band,
		Bounds:   f.bounds,
		NoData:   f.NoData(),
		CRSLabel: f.crsLabel,
	}
	return raster, nil
}

// blockIndex returns the index of the block containing coord.
func (f *File) blockIndex(coord Coord) (int, bool) {
	if coord.X < 0 || f.imageWidth <= coord.X || coord.Y < 0 || f.imageLength <= coord.Y {
		return 0, false
	}
	return coord.X/f.blockWidth + f.blocksAcross*(coord.Y/f.blockLength), true
}

// blockSample returns the sample for coord from its decoded block, mapping
// the nodata sentinel to NaN.
func (f *File) blockSample(blockSamples []float64, coord Coord) float64 {
	sample := blockSamples[coord.X%f.blockWidth+(coord.Y%f.blockLength)*f.blockWidth]
	if f.noData != nil && isClose(sample, *f.noData) {
		return math.NaN()
	}
	return sample
}

// blockAt returns the decoded samples of block blockIndex, using f's cache.
func (f *File) blockAt(blockIndex int) ([]float64, error) {
	if blockSamples, ok := f.blockCache.Get(blockIndex); ok {
		blockCacheHits.Inc()
		return blockSamples, nil
	}
	blockCacheMisses.Inc()
	blockSamples, err := f.readBlock(blockIndex)
	if err != nil {
		return nil, err
	}
	f.blockCache.Add(blockIndex, blockSamples)
	return blockSamples, nil
}

// readBlock reads, decompresses, and decodes block blockIndex.
func (f *File) readBlock(blockIndex int) ([]float64, error) {
	compressedData := make([]byte, f.blockByteCounts[blockIndex])
	switch n, err := f.file.ReadAt(compressedData, int64(f.blockOffsets[blockIndex])); {
	case err != nil:
		return nil, err
	case n != len(compressedData):
		return nil, errShortRead
	}

	sampleCount := f.blockSampleCount(blockIndex)
	blockData, err := f.decompress(compressedData, sampleCount*int(f.bitsPerSample)/8)
	if err != nil {
		return nil, err
	}
	return f.decode(blockData, sampleCount)
}

// blockSampleCount returns the number of samples stored for block
// blockIndex. Tiles are padded to full size; the final strip holds only the
// remaining rows.
func (f *File) blockSampleCount(blockIndex int) int {
	if f.tiled {
		return f.blockWidth * f.blockLength
	}
	rows := f.blockLength
	if row0 := (blockIndex / f.blocksAcross) * f.blockLength; row0+rows > f.imageLength {
		rows = f.imageLength - row0
	}
	return f.blockWidth * rows
}

// decompress inflates compressedData to exactly uncompressedByteCount bytes.
func (f *File) decompress(compressedData []byte, uncompressedByteCount int) ([]byte, error) {
	switch f.compression {
	case compressionLZW:
		blockData := make([]byte, uncompressedByteCount)
		r := lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
		if _, err := io.ReadFull(r, blockData); err != nil {
			return nil, err
		}
		return blockData, nil
	case compressionDeflate, compressionOldDeflate:
		r, err := zlib.NewReader(bytes.NewReader(compressedData))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		blockData := make([]byte, uncompressedByteCount)
		if _, err := io.ReadFull(r, blockData); err != nil {
			return nil, err
		}
		return blockData, nil
	default:
		if len(compressedData) < uncompressedByteCount {
			return nil, errShortRead
		}
		return compressedData[:uncompressedByteCount], nil
	}
}

// decode converts raw little-endian block bytes to float64 samples.
func (f *File) decode(blockData []byte, sampleCount int) ([]float64, error) {
	if len(blockData) < sampleCount*int(f.bitsPerSample)/8 {
		return nil, errShortRead
	}
	blockSamples := make([]float64, sampleCount)
	switch {
	case f.sampleFormat == sampleFormatFloat && f.bitsPerSample == 32:
		for i := range sampleCount {
			blockSamples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(blockData[4*i:])))
		}
	case f.sampleFormat == sampleFormatFloat && f.bitsPerSample == 64:
		for i := range sampleCount {
			blockSamples[i] = math.Float64frombits(binary.LittleEndian.Uint64(blockData[8*i:]))
		}
	case f.sampleFormat == sampleFormatInt && f.bitsPerSample == 8:
		for i := range sampleCount {
			blockSamples[i] = float64(int8(blockData[i]))
		}
	case f.sampleFormat == sampleFormatInt && f.bitsPerSample == 16:
		for i := range sampleCount {
			blockSamples[i] = float64(int16(binary.LittleEndian.Uint16(blockData[2*i:])))
		}
	case f.sampleFormat == sampleFormatInt && f.bitsPerSample == 32:
		for i := range sampleCount {
			blockSamples[i] = float64(int32(binary.LittleEndian.Uint32(blockData[4*i:])))
		}
	case f.sampleFormat == sampleFormatUint && f.bitsPerSample == 8:
		for i := range sampleCount {
			blockSamples[i] = float64(blockData[i])
		}
	case f.sampleFormat == sampleFormatUint && f.bitsPerSample == 16:
		for i := range sampleCount {
			blockSamples[i] = float64(binary.LittleEndian.Uint16(blockData[2*i:]))
		}
	case f.sampleFormat == sampleFormatUint && f.bitsPerSample == 32:
		for i := range sampleCount {
			blockSamples[i] = float64(binary.LittleEndian.Uint32(blockData[4*i:]))
		}
	default:
		return nil, errors.ErrUnsupported
	}
	return blockSamples, nil
}
