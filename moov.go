package bmff

import "fmt"

// rawChild is an immediate child box kept byte-for-byte because this
// package has no reason to look inside it (stsd sample entries, udta,
// mvex, dinf, edts, and similar).
type rawChild struct {
	typ BoxType
	raw []byte // full box including header
}

// listChildren walks the immediate children of a plain container box
// (one with no fixed-size fields before its child boxes) and returns
// them in file order.
func listChildren(data []byte) []rawChild {
	r := NewReader(data)
	var out []rawChild
	for r.Next() {
		out = append(out, rawChild{typ: r.Type(), raw: append([]byte(nil), r.RawBox()...)})
	}
	return out
}

func childReader(raw []byte) Reader {
	r := NewReader(raw)
	r.Next()
	return r
}

// SampleTable holds a track's stbl contents. Chunk offsets are
// normalized to uint64 and sample sizes to uint32; the box used on the wire
// (stsz vs stz2, stco vs co64) is tracked separately so encode can
// reproduce the original shape unless a rewrite forces a change.
type SampleTable struct {
	order []BoxType
	extra map[BoxType][]byte

	Stsd []byte // raw stsd box, untouched by rewriting

	Stts []SttsEntry

	HasCtts     bool
	CttsVersion uint8
	Ctts        []CttsEntry

	Stsc []StscEntry

	SampleCount   uint32
	SampleSize    uint32 // constant size, 0 if per-sample
	SampleSizes   []uint32
	IsStz2        bool
	Stz2FieldSize uint8 // 4, 8 or 16; meaningful only when IsStz2

	Is64           bool
	ChunkOffsets   []uint64

	HasStss bool
	Stss    []uint32 // 1-based sync sample numbers
}

func decodeStbl(data []byte) (*SampleTable, error) {
	st := &SampleTable{extra: map[BoxType][]byte{}}
	for _, c := range listChildren(data) {
		st.order = append(st.order, c.typ)
		switch c.typ {
		case TypeStsd:
			st.Stsd = c.raw
		case TypeStts:
			cr := childReader(c.raw)
			it := NewSttsIter(cr.Data())
			st.Stts = make([]SttsEntry, 0, it.Count())
			for e, ok := it.Next(); ok; e, ok = it.Next() {
				if e.Count == 0 {
					return nil, fmt.Errorf("%w: stts entry with zero count", ErrFormatError)
				}
				st.Stts = append(st.Stts, e)
			}
		case TypeCtts:
			cr := childReader(c.raw)
			st.HasCtts = true
			st.CttsVersion = cr.Version()
			it := NewCttsIter(cr.Data(), cr.Version())
			st.Ctts = make([]CttsEntry, 0, it.Count())
			for e, ok := it.Next(); ok; e, ok = it.Next() {
				if e.Count == 0 {
					return nil, fmt.Errorf("%w: ctts entry with zero count", ErrFormatError)
				}
				st.Ctts = append(st.Ctts, e)
			}
		case TypeStsc:
			cr := childReader(c.raw)
			it := NewStscIter(cr.Data())
			st.Stsc = make([]StscEntry, 0, it.Count())
			for e, ok := it.Next(); ok; e, ok = it.Next() {
				if n := len(st.Stsc); n > 0 && e.FirstChunk <= st.Stsc[n-1].FirstChunk {
					return nil, fmt.Errorf("%w: stsc first_chunk not strictly increasing", ErrFormatError)
				}
				st.Stsc = append(st.Stsc, e)
			}
		case TypeStsz:
			cr := childReader(c.raw)
			it := NewStszIter(cr.Data())
			st.SampleSize = it.sampleSize
			st.SampleCount = it.Count()
			if st.SampleSize == 0 {
				st.SampleSizes = make([]uint32, 0, it.Count())
				for v, ok := it.Next(); ok; v, ok = it.Next() {
					st.SampleSizes = append(st.SampleSizes, v)
				}
			}
		case TypeStz2:
			cr := childReader(c.raw)
			fieldSize, sizes, err := readStz2(cr.Data())
			if err != nil {
				return nil, err
			}
			st.IsStz2 = true
			st.Stz2FieldSize = fieldSize
			st.SampleSizes = sizes
			st.SampleCount = uint32(len(sizes))
		case TypeStco:
			cr := childReader(c.raw)
			it := NewUint32Iter(cr.Data())
			st.ChunkOffsets = make([]uint64, 0, it.Count())
			for v, ok := it.Next(); ok; v, ok = it.Next() {
				st.ChunkOffsets = append(st.ChunkOffsets, uint64(v))
			}
		case TypeCo64:
			cr := childReader(c.raw)
			it := NewCo64Iter(cr.Data())
			st.Is64 = true
			st.ChunkOffsets = make([]uint64, 0, it.Count())
			for v, ok := it.Next(); ok; v, ok = it.Next() {
				st.ChunkOffsets = append(st.ChunkOffsets, v)
			}
		case TypeStss:
			cr := childReader(c.raw)
			it := NewUint32Iter(cr.Data())
			st.HasStss = true
			st.Stss = make([]uint32, 0, it.Count())
			for v, ok := it.Next(); ok; v, ok = it.Next() {
				st.Stss = append(st.Stss, v)
			}
		default:
			st.extra[c.typ] = c.raw
		}
	}
	if st.Stsd == nil {
		return nil, fmt.Errorf("%w: stbl missing stsd", ErrCannotSelect)
	}
	if st.Stsc == nil {
		return nil, fmt.Errorf("%w: stbl missing stsc", ErrCannotSelect)
	}
	if st.ChunkOffsets == nil {
		return nil, fmt.Errorf("%w: stbl missing stco/co64", ErrCannotSelect)
	}
	return st, nil
}

func (st *SampleTable) encode(w *Writer) {
	w.StartBox(TypeStbl)
	for _, t := range st.order {
		switch t {
		case TypeStsd:
			w.Write(st.Stsd)
		case TypeStts:
			w.WriteStts(st.Stts)
		case TypeCtts:
			if st.HasCtts {
				w.WriteCtts(st.Ctts)
			}
		case TypeStsc:
			w.WriteStsc(st.Stsc)
		case TypeStsz:
			if !st.IsStz2 {
				if st.SampleSize != 0 {
					// Constant size: no per-sample table, but the
					// sample count must still be written.
					w.StartFullBox(TypeStsz, 0, 0)
					w.putUint32(st.SampleSize)
					w.putUint32(st.SampleCount)
					w.EndBox()
				} else {
					w.WriteStsz(st.SampleSize, st.SampleSizes)
				}
			}
		case TypeStz2:
			if st.IsStz2 {
				writeStz2(w, st.Stz2FieldSize, st.SampleSizes)
			}
		case TypeStco:
			if !st.Is64 {
				w.WriteStco(narrowOffsets(st.ChunkOffsets))
			}
		case TypeCo64:
			if st.Is64 {
				w.WriteCo64(st.ChunkOffsets)
			}
		case TypeStss:
			if st.HasStss {
				w.WriteStss(st.Stss)
			}
		default:
			w.Write(st.extra[t])
		}
	}
	w.EndBox()
}

// PromoteToCo64 switches the chunk offset table from stco to co64.
// Used by faststart when shifting offsets would overflow 32 bits.
func (st *SampleTable) PromoteToCo64() {
	if st.Is64 {
		return
	}
	st.Is64 = true
	hasCo64 := false
	for _, t := range st.order {
		if t == TypeCo64 {
			hasCo64 = true
			break
		}
	}
	if !hasCo64 {
		for i, t := range st.order {
			if t == TypeStco {
				st.order[i] = TypeCo64
				break
			}
		}
	}
}

func narrowOffsets(in []uint64) []uint32 {
	out := make([]uint32, len(in))
	for i, v := range in {
		out[i] = uint32(v)
	}
	return out
}

func readStz2(data []byte) (fieldSize uint8, sizes []uint32, err error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("%w: stz2 too short", ErrFormatError)
	}
	fieldSize = data[3]
	count := be.Uint32(data[4:8])
	sizes = make([]uint32, 0, count)
	switch fieldSize {
	case 16:
		for i := uint32(0); i < count; i++ {
			off := 8 + int(i)*2
			if off+2 > len(data) {
				return 0, nil, fmt.Errorf("%w: stz2 truncated", ErrFormatError)
			}
			sizes = append(sizes, uint32(be.Uint16(data[off:])))
		}
	case 8:
		for i := uint32(0); i < count; i++ {
			off := 8 + int(i)
			if off+1 > len(data) {
				return 0, nil, fmt.Errorf("%w: stz2 truncated", ErrFormatError)
			}
			sizes = append(sizes, uint32(data[off]))
		}
	case 4:
		for i := uint32(0); i < count; i++ {
			byteOff := 8 + int(i)/2
			if byteOff >= len(data) {
				return 0, nil, fmt.Errorf("%w: stz2 truncated", ErrFormatError)
			}
			b := data[byteOff]
			if i%2 == 0 {
				sizes = append(sizes, uint32(b>>4))
			} else {
				sizes = append(sizes, uint32(b&0x0f))
			}
		}
	default:
		return 0, nil, fmt.Errorf("%w: stz2 field size %d", ErrFormatError, fieldSize)
	}
	return fieldSize, sizes, nil
}

func writeStz2(w *Writer, fieldSize uint8, sizes []uint32) {
	w.StartFullBox(TypeStz2, 0, 0)
	w.putUint8(0)
	w.putUint8(0)
	w.putUint8(0)
	w.putUint8(fieldSize)
	w.putUint32(uint32(len(sizes)))
	switch fieldSize {
	case 16:
		for _, v := range sizes {
			w.putUint16(uint16(v))
		}
	case 8:
		for _, v := range sizes {
			w.putUint8(byte(v))
		}
	case 4:
		for i := 0; i < len(sizes); i += 2 {
			hi := byte(sizes[i] & 0x0f)
			var lo byte
			if i+1 < len(sizes) {
				lo = byte(sizes[i+1] & 0x0f)
			}
			w.putUint8(hi<<4 | lo)
		}
	}
	w.EndBox()
}

// Track holds one trak's decoded boxes.
type Track struct {
	order []BoxType
	extra map[BoxType][]byte

	TrackID   uint32
	Flags     uint32
	Duration  uint64 // in the movie's timescale, from tkhd
	Width     uint32 // 16.16 fixed point
	Height    uint32 // 16.16 fixed point

	MediaTimescale uint32
	MediaDuration  uint64
	Language       uint16

	HandlerType [4]byte
	HandlerName string

	movieTimescale uint32

	mdiaOrder []BoxType
	mdiaExtra map[BoxType][]byte

	minfOrder []BoxType
	minfExtra map[BoxType][]byte

	Stbl *SampleTable
}

func decodeTrak(data []byte) (*Track, error) {
	tr := &Track{extra: map[BoxType][]byte{}}
	var mdiaRaw []byte
	for _, c := range listChildren(data) {
		tr.order = append(tr.order, c.typ)
		switch c.typ {
		case TypeTkhd:
			cr := childReader(c.raw)
			tr.Flags = cr.Flags()
			tr.TrackID, tr.Duration, tr.Width, tr.Height = cr.ReadTkhd()
		case TypeMdia:
			cr := childReader(c.raw)
			mdiaRaw = cr.Data()
		default:
			tr.extra[c.typ] = c.raw
		}
	}
	if mdiaRaw == nil {
		return nil, fmt.Errorf("%w: trak missing mdia", ErrCannotSelect)
	}
	if err := tr.decodeMdia(mdiaRaw); err != nil {
		return nil, err
	}
	return tr, nil
}

func (tr *Track) decodeMdia(data []byte) error {
	tr.mdiaExtra = map[BoxType][]byte{}
	var minfRaw []byte
	for _, c := range listChildren(data) {
		tr.mdiaOrder = append(tr.mdiaOrder, c.typ)
		switch c.typ {
		case TypeMdhd:
			cr := childReader(c.raw)
			tr.MediaTimescale, tr.MediaDuration, tr.Language = cr.ReadMdhd()
		case TypeHdlr:
			cr := childReader(c.raw)
			tr.HandlerType = cr.ReadHdlr()
			tr.HandlerName = cr.ReadHdlrName()
		case TypeMinf:
			cr := childReader(c.raw)
			minfRaw = cr.Data()
		default:
			tr.mdiaExtra[c.typ] = c.raw
		}
	}
	if minfRaw == nil {
		return fmt.Errorf("%w: mdia missing minf", ErrCannotSelect)
	}
	return tr.decodeMinf(minfRaw)
}

func (tr *Track) decodeMinf(data []byte) error {
	tr.minfExtra = map[BoxType][]byte{}
	var stblRaw []byte
	for _, c := range listChildren(data) {
		tr.minfOrder = append(tr.minfOrder, c.typ)
		if c.typ == TypeStbl {
			cr := childReader(c.raw)
			stblRaw = cr.Data()
			continue
		}
		tr.minfExtra[c.typ] = c.raw
	}
	if stblRaw == nil {
		return fmt.Errorf("%w: minf missing stbl", ErrCannotSelect)
	}
	st, err := decodeStbl(stblRaw)
	if err != nil {
		return err
	}
	tr.Stbl = st
	return nil
}

func (tr *Track) encode(w *Writer) {
	w.StartBox(TypeTrak)
	for _, t := range tr.order {
		switch t {
		case TypeTkhd:
			w.WriteTkhd(tr.Flags, tr.TrackID, tr.Duration, tr.Width, tr.Height)
		case TypeMdia:
			tr.encodeMdia(w)
		default:
			w.Write(tr.extra[t])
		}
	}
	w.EndBox()
}

func (tr *Track) encodeMdia(w *Writer) {
	w.StartBox(TypeMdia)
	for _, t := range tr.mdiaOrder {
		switch t {
		case TypeMdhd:
			w.WriteMdhd(tr.MediaTimescale, tr.MediaDuration, tr.Language)
		case TypeHdlr:
			w.WriteHdlr(tr.HandlerType, tr.HandlerName)
		case TypeMinf:
			tr.encodeMinf(w)
		default:
			w.Write(tr.mdiaExtra[t])
		}
	}
	w.EndBox()
}

func (tr *Track) encodeMinf(w *Writer) {
	w.StartBox(TypeMinf)
	for _, t := range tr.minfOrder {
		if t == TypeStbl {
			tr.Stbl.encode(w)
			continue
		}
		w.Write(tr.minfExtra[t])
	}
	w.EndBox()
}

// IsVideo reports whether this track's handler type is "vide".
func (tr *Track) IsVideo() bool {
	return tr.HandlerType == [4]byte{'v', 'i', 'd', 'e'}
}

// Movie holds a decoded moov box.
type Movie struct {
	order []BoxType
	extra map[BoxType][]byte

	Timescale   uint32
	Duration    uint64
	NextTrackId uint32

	Tracks []*Track
}

// DecodeMoov parses a moov box's data (the bytes after its header) into
// a Movie. Tables and handler/chunk bookkeeping for every track are
// fully decoded; sample description entries (stsd) and boxes this
// package has no reason to rewrite (udta, mvex, edts, dinf, ...) are
// kept as opaque blobs and reproduced byte-for-byte on Encode.
func DecodeMoov(data []byte) (*Movie, error) {
	m := &Movie{extra: map[BoxType][]byte{}}
	var foundMvhd bool
	for _, c := range listChildren(data) {
		m.order = append(m.order, c.typ)
		switch c.typ {
		case TypeMvhd:
			cr := childReader(c.raw)
			m.Timescale, m.Duration, m.NextTrackId = cr.ReadMvhd()
			foundMvhd = true
		case TypeTrak:
			cr := childReader(c.raw)
			tr, err := decodeTrak(cr.Data())
			if err != nil {
				return nil, err
			}
			m.Tracks = append(m.Tracks, tr)
		default:
			m.extra[c.typ] = c.raw
		}
	}
	if !foundMvhd {
		return nil, fmt.Errorf("%w: moov missing mvhd", ErrCannotSelect)
	}
	if len(m.Tracks) == 0 {
		return nil, fmt.Errorf("%w: moov has no trak", ErrCannotSelect)
	}
	for _, tr := range m.Tracks {
		tr.movieTimescale = m.Timescale
	}
	return m, nil
}

// Encode serializes the Movie back into a complete moov box.
func (m *Movie) Encode() []byte {
	size := m.estimateSize()
	buf := make([]byte, 0, size)
	w := NewWriter(buf)
	w.StartBox(TypeMoov)
	trakIdx := 0
	for _, t := range m.order {
		switch t {
		case TypeMvhd:
			w.WriteMvhd(m.Timescale, m.Duration, m.NextTrackId)
		case TypeTrak:
			m.Tracks[trakIdx].encode(&w)
			trakIdx++
		default:
			w.Write(m.extra[t])
		}
	}
	w.EndBox()
	return w.Bytes()
}

// estimateSize returns a generous upper bound on the encoded size so
// Encode never needs to grow its buffer mid-write.
func (m *Movie) estimateSize() int {
	size := 8 + 108 // header + v1 mvhd
	for _, raw := range m.extra {
		size += len(raw)
	}
	for _, tr := range m.Tracks {
		size += 8 + 92 // trak header + v1 tkhd
		size += 8 + 32 // mdia header + v1 mdhd
		size += 8 + 32 + len(tr.HandlerName) // hdlr
		size += 8 // minf header
		for _, raw := range tr.extra {
			size += len(raw)
		}
		for _, raw := range tr.mdiaExtra {
			size += len(raw)
		}
		for _, raw := range tr.minfExtra {
			size += len(raw)
		}
		st := tr.Stbl
		size += 8 // stbl header
		size += len(st.Stsd)
		size += 8 + 4 + len(st.Stts)*8
		if st.HasCtts {
			size += 8 + 4 + len(st.Ctts)*8
		}
		size += 8 + 4 + len(st.Stsc)*12
		size += 8 + 8 + len(st.SampleSizes)*8 // room enough for stz2 16-bit fields too
		size += 8 + 4 + len(st.ChunkOffsets)*8
		if st.HasStss {
			size += 8 + 4 + len(st.Stss)*4
		}
		for _, raw := range st.extra {
			size += len(raw)
		}
	}
	return size + 4096
}
