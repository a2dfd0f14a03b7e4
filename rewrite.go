package bmff

import "fmt"

// CutMoov rewrites every track's sample tables so that the media
// starting at cutTime (seconds) becomes the start of the movie.
// Chunk offsets are left expressed in the original file's coordinate
// space; call UpdateOffsets once the size of the new header is known
// to translate them into final absolute offsets.
//
// CutMoov returns the lowest original byte offset retained across all
// tracks: the point in the source file at which the new mdat body
// begins.
//
// cutTime is applied uniformly to every track, as one media time per
// track's own timescale: callers that care about sample-accurate,
// synchronized A/V cut points (as opposed to cutting each track
// independently) must resolve cutTime to a sync point themselves
// before calling CutMoov — see movieNearestSyncpoint, which Split
// calls exactly once per request and then feeds the single resolved
// value to every track here.
func CutMoov(m *Movie, cutTime float64) (newDataOffset uint64, err error) {
	if cutTime < 0 {
		cutTime = 0
	}
	type trackCut struct {
		sample SampleIndex
		offset uint64
	}
	cuts := make([]trackCut, len(m.Tracks))
	for i, tr := range m.Tracks {
		if tr.MediaTimescale == 0 {
			return 0, fmt.Errorf("%w: track %d has zero timescale", ErrFormatError, tr.TrackID)
		}
		mt := uint64(cutTime * float64(tr.MediaTimescale))
		if mt >= tr.MediaDuration {
			return 0, fmt.Errorf("%w: cut time exceeds track %d duration", ErrFormatError, tr.TrackID)
		}
		sample := FindSampleNumStts(tr.Stbl.Stts, mt)
		cuts[i] = trackCut{sample: sample, offset: tr.Stbl.SampleOffset(sample)}
	}

	newDataOffset = cuts[0].offset
	for _, c := range cuts[1:] {
		if c.offset < newDataOffset {
			newDataOffset = c.offset
		}
	}

	for i, tr := range m.Tracks {
		if cuts[i].offset > newDataOffset {
			cuts[i].sample = tr.Stbl.FirstSampleAtOrAfterOffset(newDataOffset)
			cuts[i].offset = tr.Stbl.SampleOffset(cuts[i].sample)
		}
	}

	var maxTrackDuration uint64
	for i, tr := range m.Tracks {
		if err := cutTrak(tr, cuts[i].sample, cuts[i].offset); err != nil {
			return 0, err
		}
		if tr.Duration > maxTrackDuration {
			maxTrackDuration = tr.Duration
		}
	}
	m.Duration = maxTrackDuration
	return newDataOffset, nil
}

// cutTrak rewrites one track's tables to drop every sample before
// cutSample. cutOffset is that sample's original absolute byte offset,
// already computed by the caller (recomputing it after the tables are
// mutated would be wrong, since FindChunkNumStsc depends on the
// pre-cut stsc).
func cutTrak(tr *Track, cutSample SampleIndex, cutOffset uint64) error {
	st := tr.Stbl
	if cutSample > SampleIndex(st.SampleCount) {
		return fmt.Errorf("%w: cut point beyond end of track %d", ErrFormatError, tr.TrackID)
	}

	consumedTime := FindMediaTimeStts(st.Stts, cutSample)

	newStts, err := cutCountRLEStts(st.Stts, cutSample)
	if err != nil {
		return fmt.Errorf("%w: track %d stts exhausted by cut", ErrFormatError, tr.TrackID)
	}
	st.Stts = newStts

	if st.HasCtts {
		newCtts, err := cutCountRLECtts(st.Ctts, cutSample)
		if err != nil {
			return fmt.Errorf("%w: track %d ctts exhausted by cut", ErrFormatError, tr.TrackID)
		}
		st.Ctts = newCtts
	}

	if st.SampleSize == 0 {
		st.SampleSizes = st.SampleSizes[cutSample-1:]
	}
	st.SampleCount -= uint32(cutSample - 1)

	if st.HasStss {
		st.Stss = cutStss(st.Stss, cutSample)
		st.HasStss = len(st.Stss) > 0
	}

	newStsc, newOffsets, err := cutStco64Stsc(st.Stsc, st.ChunkOffsets, cutSample, cutOffset)
	if err != nil {
		return fmt.Errorf("%w: track %d: %v", ErrFormatError, tr.TrackID, err)
	}
	st.Stsc = newStsc
	st.ChunkOffsets = newOffsets

	tr.MediaDuration -= consumedTime
	if tr.MediaTimescale != 0 {
		tr.Duration = tr.MediaDuration * uint64(movieTimescaleOf(tr)) / uint64(tr.MediaTimescale)
	}
	return nil
}

// movieTimescaleOf returns the movie timescale that DecodeMoov copied
// into the track, since tracks don't carry a back-reference to their
// movie. tkhd.Duration derived from it uses truncating integer division.
func movieTimescaleOf(tr *Track) uint32 {
	return tr.movieTimescale
}

func cutCountRLEStts(entries []SttsEntry, cutSample SampleIndex) ([]SttsEntry, error) {
	skip := uint32(cutSample - 1)
	out := make([]SttsEntry, 0, len(entries))
	for _, e := range entries {
		if skip >= e.Count {
			skip -= e.Count
			continue
		}
		out = append(out, SttsEntry{Count: e.Count - skip, Duration: e.Duration})
		skip = 0
	}
	if len(out) == 0 {
		return nil, ErrFormatError
	}
	return out, nil
}

func cutCountRLECtts(entries []CttsEntry, cutSample SampleIndex) ([]CttsEntry, error) {
	skip := uint32(cutSample - 1)
	out := make([]CttsEntry, 0, len(entries))
	for _, e := range entries {
		if skip >= e.Count {
			skip -= e.Count
			continue
		}
		out = append(out, CttsEntry{Count: e.Count - skip, Offset: e.Offset})
		skip = 0
	}
	if len(out) == 0 {
		return nil, ErrFormatError
	}
	return out, nil
}

// cutStss drops sync samples before cutSample and remaps survivors so
// cutSample becomes sample 1.
func cutStss(stss []uint32, cutSample SampleIndex) []uint32 {
	out := make([]uint32, 0, len(stss))
	for _, v := range stss {
		if v >= uint32(cutSample) {
			out = append(out, v-uint32(cutSample)+1)
		}
	}
	return out
}

// stscRunFor returns the stsc entry whose run covers chunk.
func stscRunFor(stsc []StscEntry, chunk ChunkIndex) StscEntry {
	var cur StscEntry
	for i, e := range stsc {
		first := ChunkIndex(e.FirstChunk)
		next := ChunkIndex(^uint32(0))
		if i+1 < len(stsc) {
			next = ChunkIndex(stsc[i+1].FirstChunk)
		}
		if chunk >= first && chunk < next {
			return e
		}
		cur = e
	}
	return cur
}

// renumberStsc drops runs entirely before cutChunk and shifts the
// remaining FirstChunk values so cutChunk becomes chunk 1.
func renumberStsc(old []StscEntry, cutChunk ChunkIndex) []StscEntry {
	out := make([]StscEntry, 0, len(old))
	for i, e := range old {
		first := ChunkIndex(e.FirstChunk)
		next := ChunkIndex(^uint32(0))
		if i+1 < len(old) {
			next = ChunkIndex(old[i+1].FirstChunk)
		}
		if next <= cutChunk {
			continue
		}
		newFirst := first
		if newFirst < cutChunk {
			newFirst = cutChunk
		}
		newFirst = newFirst - cutChunk + 1
		out = append(out, StscEntry{
			FirstChunk:          uint32(newFirst),
			SamplesPerChunk:     e.SamplesPerChunk,
			SampleDescriptionId: e.SampleDescriptionId,
		})
	}
	return out
}

// cutStco64Stsc is the delicate part of the rewrite: it drops every
// chunk entirely before the cut sample's chunk, shifts chunk numbers
// down so that chunk becomes chunk 1, and — when the cut sample is
// not the first sample of its chunk — splits that chunk's run so the
// new first chunk reports only the surviving sample count.
//
// After that reduced first row, a row restoring the run's own rate is
// inserted at chunk 2 only when chunk 2 still belongs to the cut run;
// if the next run already starts at chunk 2, its renumbered row is
// kept there instead.
func cutStco64Stsc(stsc []StscEntry, chunkOffsets []uint64, cutSample SampleIndex, cutOffset uint64) ([]StscEntry, []uint64, error) {
	cutChunk, idxInChunk := FindChunkNumStsc(stsc, cutSample)
	if int(cutChunk) > len(chunkOffsets) {
		return nil, nil, ErrFormatError
	}

	newOffsets := append([]uint64(nil), chunkOffsets[cutChunk-1:]...)
	newOffsets[0] = cutOffset

	run := stscRunFor(stsc, cutChunk)
	shifted := renumberStsc(stsc, cutChunk)
	leadSamples := idxInChunk - 1

	if leadSamples == 0 {
		return shifted, newOffsets, nil
	}

	newStsc := []StscEntry{{
		FirstChunk:          1,
		SamplesPerChunk:     run.SamplesPerChunk - leadSamples,
		SampleDescriptionId: run.SampleDescriptionId,
	}}
	nextRunAtTwo := false
	for _, r := range shifted {
		if r.FirstChunk == 2 {
			nextRunAtTwo = true
		}
	}
	if len(newOffsets) > 1 && !nextRunAtTwo {
		newStsc = append(newStsc, StscEntry{
			FirstChunk:          2,
			SamplesPerChunk:     run.SamplesPerChunk,
			SampleDescriptionId: run.SampleDescriptionId,
		})
	}
	for _, r := range shifted {
		if r.FirstChunk >= 2 {
			newStsc = append(newStsc, r)
		}
	}
	return newStsc, newOffsets, nil
}

// SnapshotOffsets captures each track's current chunk offsets so
// UpdateOffsets can be called repeatedly from the same baseline while
// a fixed-point loop converges on a header size (offset promotion to
// co64 changes moov's length, which changes the shift, which can in
// turn trigger further promotion).
func SnapshotOffsets(m *Movie) [][]uint64 {
	out := make([][]uint64, len(m.Tracks))
	for i, tr := range m.Tracks {
		out[i] = append([]uint64(nil), tr.Stbl.ChunkOffsets...)
	}
	return out
}

// UpdateOffsets sets every track's chunk offsets to originals[i]+shift,
// turning original-file-relative offsets into final absolute offsets
// once the size of the new ftyp+moov+mdat header is known. It also
// promotes any track whose shifted offsets would overflow a 32-bit
// stco entry to co64; the caller must re-measure the encoded size
// afterward, since promotion changes moov's length, and re-invoke
// UpdateOffsets from the same originals until the size stops changing.
func UpdateOffsets(m *Movie, originals [][]uint64, shift int64) (promoted bool) {
	for i, tr := range m.Tracks {
		st := tr.Stbl
		if st.ChunkOffsets == nil || len(st.ChunkOffsets) != len(originals[i]) {
			st.ChunkOffsets = make([]uint64, len(originals[i]))
		}
		for j, v := range originals[i] {
			st.ChunkOffsets[j] = uint64(int64(v) + shift)
		}
		if !st.Is64 {
			for _, v := range st.ChunkOffsets {
				if v > uint32Max {
					st.PromoteToCo64()
					promoted = true
					break
				}
			}
		}
	}
	return promoted
}
