package bmff

import (
	"bytes"
	"context"
	"testing"
)

// buildMinimalMoov builds a single-track moov box with one sample in
// one chunk at the given absolute byte offset.
func buildMinimalMoov(chunkOffset uint32) []byte {
	buf := make([]byte, 0, 4096)
	w := NewWriter(buf)

	w.StartBox(TypeMoov)
	w.WriteMvhd(1000, 1600, 2)

	w.StartBox(TypeTrak)
	w.WriteTkhd(0, 1, 1600, 0, 0)

	w.StartBox(TypeMdia)
	w.WriteMdhd(1000, 1600, 0)
	w.WriteHdlr([4]byte{'s', 'o', 'u', 'n'}, "SoundHandler")

	w.StartBox(TypeMinf)
	w.StartBox(TypeStbl)

	w.StartFullBox(TypeStsd, 0, 0)
	w.putUint32(0) // entry count; this package never parses stsd contents
	w.EndBox()

	w.WriteStts([]SttsEntry{{Count: 1, Duration: 1600}})
	w.WriteStsc([]StscEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionId: 1}})
	w.WriteStsz(16, make([]uint32, 1)) // count=1; values unused when sampleSize != 0
	w.WriteStco([]uint32{chunkOffset})

	w.EndBox() // stbl
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak
	w.EndBox() // moov

	return w.Bytes()
}

func buildFtyp() []byte {
	buf := make([]byte, 0, 64)
	w := NewWriter(buf)
	w.WriteFtyp([4]byte{'i', 's', 'o', 'm'}, 0, nil)
	return w.Bytes()
}

func buildMdat(payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+8)
	w := NewWriter(buf)
	w.StartBox(TypeMdat)
	w.Write(payload)
	w.EndBox()
	return w.Bytes()
}

func buildWide(padding int) []byte {
	buf := make([]byte, 0, 8+padding)
	w := NewWriter(buf)
	w.StartBox(TypeWide)
	w.Write(make([]byte, padding))
	w.EndBox()
	return w.Bytes()
}

func TestMoveHeaderAndWriteNoOpWhenAlreadyFront(t *testing.T) {
	ftyp := buildFtyp()
	payload := []byte("0123456789ABCDEF")
	mdatOffset := uint32(len(ftyp)) + 8 /* placeholder moov size unknown yet */

	// moov must declare the real mdat data offset; build twice since the
	// first build is only needed to learn moov's own length.
	moov := buildMinimalMoov(mdatOffset)
	mdatOffset = uint32(len(ftyp) + len(moov) + 8)
	moov = buildMinimalMoov(mdatOffset)

	mdat := buildMdat(payload)
	src := append(append(append([]byte{}, ftyp...), moov...), mdat...)

	var out bytes.Buffer
	moved, err := MoveHeaderAndWrite(context.Background(), bytes.NewReader(src), &out)
	if err != nil {
		t.Fatalf("MoveHeaderAndWrite: %v", err)
	}
	if moved {
		t.Fatal("moved = true, want false (moov already precedes mdat)")
	}
	if !bytes.Equal(out.Bytes(), src) {
		t.Fatal("output differs from input when no move was needed")
	}
}

func TestMoveHeaderAndWriteMovesHeaderToFront(t *testing.T) {
	ftyp := buildFtyp()
	payload := []byte("0123456789ABCDEF")
	mdat := buildMdat(payload)

	// moov declares the chunk offset of its data within mdat, in the
	// original (moov-after-mdat) layout.
	mdatDataOffset := uint32(len(ftyp)) + 8 // past ftyp and mdat's own header
	moov := buildMinimalMoov(mdatDataOffset)

	src := append(append(append([]byte{}, ftyp...), mdat...), moov...)

	var out bytes.Buffer
	moved, err := MoveHeaderAndWrite(context.Background(), bytes.NewReader(src), &out)
	if err != nil {
		t.Fatalf("MoveHeaderAndWrite: %v", err)
	}
	if !moved {
		t.Fatal("moved = false, want true (moov followed mdat)")
	}

	got := out.Bytes()
	if !bytes.Equal(got[:len(ftyp)], ftyp) {
		t.Error("output does not start with the original ftyp")
	}
	if !bytes.HasSuffix(got, payload) {
		t.Error("output does not end with the original mdat payload")
	}

	m, err := decodeMovieFrom(bytes.NewReader(got))
	if err != nil {
		t.Fatalf("decoding rewritten output: %v", err)
	}
	newOffset := m.Tracks[0].Stbl.ChunkOffsets[0]
	wantOffset := uint64(len(got)) - uint64(len(payload))
	if newOffset != wantOffset {
		t.Errorf("rewritten chunk offset = %d, want %d (start of payload in the new file)", newOffset, wantOffset)
	}
}

// TestMoveHeaderAndWriteKeepsWideAdjacentToMdat exercises an encoder
// layout where a wide box directly precedes mdat (reserved so a later
// free-to-wide size promotion never requires shifting the rest of the
// file). The rewritten output must insert moov before that wide box,
// not between it and mdat, so the adjacency survives.
func TestMoveHeaderAndWriteKeepsWideAdjacentToMdat(t *testing.T) {
	ftyp := buildFtyp()
	payload := []byte("0123456789ABCDEF")
	wide := buildWide(8)
	mdat := buildMdat(payload)

	mdatDataOffset := uint32(len(ftyp)+len(wide)) + 8 // past ftyp, wide, and mdat's own header
	moov := buildMinimalMoov(mdatDataOffset)

	src := append(append(append(append([]byte{}, ftyp...), wide...), mdat...), moov...)

	var out bytes.Buffer
	moved, err := MoveHeaderAndWrite(context.Background(), bytes.NewReader(src), &out)
	if err != nil {
		t.Fatalf("MoveHeaderAndWrite: %v", err)
	}
	if !moved {
		t.Fatal("moved = false, want true (moov followed mdat)")
	}

	got := out.Bytes()
	if !bytes.Equal(got[:len(ftyp)], ftyp) {
		t.Error("output does not start with the original ftyp")
	}
	if !bytes.HasSuffix(got, payload) {
		t.Error("output does not end with the original mdat payload")
	}

	sc := NewScanner(bytes.NewReader(got))
	var order []BoxType
	var wideEntry, mdatEntry ScanEntry
	for sc.Next() {
		e := sc.Entry()
		order = append(order, e.Type)
		if e.Type == TypeWide {
			wideEntry = e
		}
		if e.Type == TypeMdat {
			mdatEntry = e
		}
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scanning rewritten output: %v", err)
	}
	if len(order) != 4 || order[0] != TypeFtyp || order[1] != TypeMoov || order[2] != TypeWide || order[3] != TypeMdat {
		t.Fatalf("top-level box order = %v, want [ftyp moov wide mdat]", order)
	}
	if wideEntry.Offset+wideEntry.Size != mdatEntry.Offset {
		t.Errorf("wide box (offset %d size %d) is not immediately adjacent to mdat (offset %d)",
			wideEntry.Offset, wideEntry.Size, mdatEntry.Offset)
	}
}
