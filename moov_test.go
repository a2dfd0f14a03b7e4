package bmff

import (
	"bytes"
	"testing"
)

// buildRoundTripMoov builds a moov with an opaque udta child after the
// single trak, and an opaque edts child inside that trak, to exercise
// the raw-passthrough path alongside the structured fields.
func buildRoundTripMoov() []byte {
	buf := make([]byte, 0, 4096)
	w := NewWriter(buf)

	w.StartBox(TypeMoov)
	w.WriteMvhd(600, 1200, 2)

	w.StartBox(TypeTrak)
	w.WriteTkhd(0, 1, 1200, 0, 0)

	w.StartBox(TypeEdts)
	w.WriteElst([]ElstEntry{{SegmentDuration: 1200, MediaTime: 0, MediaRateInt: 1, MediaRateFrac: 0}})
	w.EndBox()

	w.StartBox(TypeMdia)
	w.WriteMdhd(600, 1200, 0)
	w.WriteHdlr([4]byte{'v', 'i', 'd', 'e'}, "VideoHandler")

	w.StartBox(TypeMinf)
	w.WriteVmhd()
	w.StartBox(TypeStbl)

	w.StartFullBox(TypeStsd, 0, 0)
	w.putUint32(0)
	w.EndBox()

	w.WriteStts([]SttsEntry{{Count: 4, Duration: 300}})
	w.WriteStss([]uint32{1, 3})
	w.WriteStsc([]StscEntry{{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionId: 1}})
	w.WriteStsz(0, []uint32{10, 20, 30, 40})
	w.WriteStco([]uint32{500, 560})

	w.EndBox() // stbl
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak

	w.StartBox(TypeUdta)
	w.Write([]byte{0, 0, 0, 8, 'f', 'r', 'e', 'e'}) // a nested free box as opaque payload
	w.EndBox()

	w.EndBox() // moov
	return w.Bytes()
}

func TestMoovDecodeEncodeRoundTrip(t *testing.T) {
	original := buildRoundTripMoov()

	m, err := DecodeMoov(original[8:]) // strip the moov box header, DecodeMoov takes the body
	if err != nil {
		t.Fatalf("DecodeMoov: %v", err)
	}

	if m.Timescale != 600 || m.Duration != 1200 || m.NextTrackId != 2 {
		t.Errorf("movie header = %+v", m)
	}
	if len(m.Tracks) != 1 {
		t.Fatalf("len(Tracks) = %d, want 1", len(m.Tracks))
	}
	tr := m.Tracks[0]
	if tr.TrackID != 1 || !tr.IsVideo() {
		t.Errorf("track = %+v", tr)
	}
	if tr.Stbl.SampleCount != 4 {
		t.Errorf("SampleCount = %d, want 4", tr.Stbl.SampleCount)
	}
	if !tr.Stbl.HasStss || len(tr.Stbl.Stss) != 2 {
		t.Errorf("Stss = %+v", tr.Stbl.Stss)
	}

	encoded := m.Encode()

	m2, err := DecodeMoov(encoded[8:])
	if err != nil {
		t.Fatalf("re-decoding encoded output: %v", err)
	}
	if m2.Timescale != m.Timescale || m2.Duration != m.Duration {
		t.Errorf("round-tripped movie header changed: %+v vs %+v", m2, m)
	}
	tr2 := m2.Tracks[0]
	if len(tr2.Stbl.Stss) != len(tr.Stbl.Stss) {
		t.Errorf("round-tripped Stss changed: %v vs %v", tr2.Stbl.Stss, tr.Stbl.Stss)
	}
	for i := range tr.Stbl.SampleSizes {
		if tr2.Stbl.SampleSizes[i] != tr.Stbl.SampleSizes[i] {
			t.Errorf("SampleSizes[%d] changed: %d vs %d", i, tr2.Stbl.SampleSizes[i], tr.Stbl.SampleSizes[i])
		}
	}

	// The opaque edts and udta children must survive byte-for-byte.
	if !bytes.Equal(tr.extra[TypeEdts], tr2.extra[TypeEdts]) {
		t.Error("edts child was not preserved byte-for-byte across round-trip")
	}
	if !bytes.Equal(m.extra[TypeUdta], m2.extra[TypeUdta]) {
		t.Error("udta child was not preserved byte-for-byte across round-trip")
	}
}
