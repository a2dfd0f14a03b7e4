package bmff

import (
	"bytes"
	"context"
	"testing"
)

func TestSplitSnapsToNearestSyncPoint(t *testing.T) {
	ftyp := buildFtyp()
	payload := make([]byte, 100) // 10 samples x 10 bytes
	for i := range payload {
		payload[i] = byte(i)
	}

	// Build moov twice: once to learn its own encoded length, then
	// again with the real chunk offsets (mdat's data starts right
	// after ftyp+moov+mdat's own 8-byte header).
	buildMoov := func(dataStart uint32) []byte {
		buf := make([]byte, 0, 4096)
		w := NewWriter(buf)
		w.StartBox(TypeMoov)
		w.WriteMvhd(1000, 1000, 2)

		w.StartBox(TypeTrak)
		w.WriteTkhd(0, 1, 1000, 0, 0)

		w.StartBox(TypeMdia)
		w.WriteMdhd(1000, 1000, 0)
		w.WriteHdlr([4]byte{'v', 'i', 'd', 'e'}, "VideoHandler")

		w.StartBox(TypeMinf)
		w.WriteVmhd()
		w.StartBox(TypeStbl)

		w.StartFullBox(TypeStsd, 0, 0)
		w.putUint32(0)
		w.EndBox()

		w.WriteStts([]SttsEntry{{Count: 10, Duration: 100}})
		w.WriteStss([]uint32{1, 4, 7})
		w.WriteStsc([]StscEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionId: 1}})
		w.WriteStsz(10, make([]uint32, 10))

		offsets := make([]uint32, 10)
		for i := range offsets {
			offsets[i] = dataStart + uint32(i*10)
		}
		w.WriteStco(offsets)

		w.EndBox() // stbl
		w.EndBox() // minf
		w.EndBox() // mdia
		w.EndBox() // trak
		w.EndBox() // moov
		return w.Bytes()
	}

	moov := buildMoov(0)
	dataStart := uint32(len(ftyp)) + uint32(len(moov)) + 8
	moov = buildMoov(dataStart)
	// moov's length must not have changed from adding real offsets
	// (stco entries are a fixed 4 bytes regardless of value).
	if uint32(len(ftyp))+uint32(len(moov))+8 != dataStart {
		t.Fatalf("moov length changed after filling in chunk offsets")
	}

	mdat := buildMdat(payload)
	src := append(append(append([]byte{}, ftyp...), moov...), mdat...)

	// t=0.05s sits between sample 1 (t=0, the nearest sync point, 0.05s
	// away) and sample 2 (t=0.1s, not a sync point). A raw, unsnapped
	// cut at t=0.05s would land on sample 2 (FindSampleNumStts rounds
	// up to the next sample boundary), dropping one sample and losing
	// A/V sync. Split must snap t to the nearest sync point (0s, sample
	// 1) first, so nothing is dropped at all.
	const cutTime = 0.05
	header, newDataOffset, err := Split(bytes.NewReader(src), cutTime)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	wantCutOffset := int64(dataStart) // sample 1: nothing dropped
	if newDataOffset != wantCutOffset {
		t.Fatalf("newDataOffset = %d, want %d (start of sample 1, the nearest sync point)", newDataOffset, wantCutOffset)
	}

	m, err := DecodeMoov(header[len(ftyp)+8 : len(header)-8])
	if err != nil {
		t.Fatalf("decoding rewritten moov: %v", err)
	}
	if m.Tracks[0].Stbl.SampleCount != 10 {
		t.Errorf("SampleCount = %d, want 10 (snapping to sample 1 drops nothing)", m.Tracks[0].Stbl.SampleCount)
	}

	var out bytes.Buffer
	if err := SplitAndWrite(context.Background(), bytes.NewReader(src), &out, cutTime); err != nil {
		t.Fatalf("SplitAndWrite: %v", err)
	}
	if !bytes.HasSuffix(out.Bytes(), payload) {
		t.Error("SplitAndWrite output does not end with the full retained media data")
	}
}
