package bmff

import "testing"

func TestFindSampleNumStts(t *testing.T) {
	stts := []SttsEntry{
		{Count: 10, Duration: 100}, // samples 1-10, times 0..900
		{Count: 5, Duration: 200},  // samples 11-15, times 1000..1800
	}

	cases := []struct {
		mt   uint64
		want SampleIndex
	}{
		{0, 1},
		{99, 2}, // ceil((99-0)/100) = 1 -> sample 1+1
		{100, 2},
		{900, 10},
		{1000, 11},
		{1199, 12}, // ceil((1199-1000)/200) = 1 -> sample 11+1
		{1200, 12},
	}
	for _, c := range cases {
		got := FindSampleNumStts(stts, c.mt)
		if got != c.want {
			t.Errorf("FindSampleNumStts(%d) = %d, want %d", c.mt, got, c.want)
		}
	}
}

func TestFindMediaTimeStts(t *testing.T) {
	stts := []SttsEntry{
		{Count: 10, Duration: 100},
		{Count: 5, Duration: 200},
	}
	cases := []struct {
		sample SampleIndex
		want   uint64
	}{
		{1, 0},
		{2, 100},
		{10, 900},
		{11, 1000},
		{15, 1800},
	}
	for _, c := range cases {
		got := FindMediaTimeStts(stts, c.sample)
		if got != c.want {
			t.Errorf("FindMediaTimeStts(%d) = %d, want %d", c.sample, got, c.want)
		}
	}
}

func TestFindMediaTimesMatchesPerSample(t *testing.T) {
	stts := []SttsEntry{
		{Count: 3, Duration: 50},
		{Count: 4, Duration: 30},
		{Count: 2, Duration: 10},
	}
	samples := []SampleIndex{1, 2, 3, 4, 7, 8, 9}
	bulk := FindMediaTimes(stts, samples)
	for i, s := range samples {
		want := FindMediaTimeStts(stts, s)
		if bulk[i] != want {
			t.Errorf("FindMediaTimes[%d] (sample %d) = %d, want %d", i, s, bulk[i], want)
		}
	}
}

func TestFindChunkNumStsc(t *testing.T) {
	// 2 samples/chunk for chunks 1-2, then 3 samples/chunk from chunk 3 on.
	stsc := []StscEntry{
		{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionId: 1},
		{FirstChunk: 3, SamplesPerChunk: 3, SampleDescriptionId: 1},
	}
	cases := []struct {
		sample    SampleIndex
		wantChunk ChunkIndex
		wantIdx   uint32
	}{
		{1, 1, 1},
		{2, 1, 2},
		{3, 2, 1},
		{4, 2, 2},
		{5, 3, 1},
		{7, 3, 3},
		{8, 4, 1},
	}
	for _, c := range cases {
		chunk, idx := FindChunkNumStsc(stsc, c.sample)
		if chunk != c.wantChunk || idx != c.wantIdx {
			t.Errorf("FindChunkNumStsc(%d) = (%d,%d), want (%d,%d)", c.sample, chunk, idx, c.wantChunk, c.wantIdx)
		}
	}
}

func TestGetChunkOffset(t *testing.T) {
	stsc := []StscEntry{{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionId: 1}}
	chunkOffsets := []uint64{1000, 2000, 3000}
	sizes := []uint32{10, 20, 30, 40, 50, 60}
	sizeOf := func(s SampleIndex) uint32 { return sizes[s-1] }

	cases := []struct {
		sample SampleIndex
		want   uint64
	}{
		{1, 1000},
		{2, 1010},
		{3, 2000},
		{4, 2030},
		{5, 3000},
		{6, 3050},
	}
	for _, c := range cases {
		got := GetChunkOffset(stsc, chunkOffsets, sizeOf, c.sample)
		if got != c.want {
			t.Errorf("GetChunkOffset(%d) = %d, want %d", c.sample, got, c.want)
		}
	}
}
