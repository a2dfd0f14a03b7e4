package bmff

// SampleIndex is a 1-based sample number, matching the convention used
// throughout stts, ctts, stsz, stz2 and stss tables.
type SampleIndex uint32

// ChunkIndex is a 1-based chunk number, matching the convention used in
// stsc and stco/co64.
type ChunkIndex uint32

// FindSampleNumStts returns the first sample whose decode time is at or
// after mt, the media time in the track's timescale: an mt strictly
// inside a sample's duration yields the following sample, and an mt on
// a sample boundary yields the sample starting there. mt must be less
// than the track's total duration.
func FindSampleNumStts(stts []SttsEntry, mt uint64) SampleIndex {
	var sample SampleIndex = 1
	var time uint64
	for _, e := range stts {
		runDuration := uint64(e.Count) * uint64(e.Duration)
		if e.Duration == 0 {
			continue
		}
		if time+runDuration <= mt {
			time += runDuration
			sample += SampleIndex(e.Count)
			continue
		}
		remaining := mt - time
		n := (remaining + uint64(e.Duration) - 1) / uint64(e.Duration) // ceil(remaining/delta)
		return sample + SampleIndex(n)
	}
	return sample
}

// FindMediaTimeStts returns the media time, in the track's timescale,
// at which the given 1-based sample begins.
func FindMediaTimeStts(stts []SttsEntry, sample SampleIndex) uint64 {
	var cur SampleIndex = 1
	var time uint64
	for _, e := range stts {
		if sample < cur+SampleIndex(e.Count) {
			return time + uint64(sample-cur)*uint64(e.Duration)
		}
		cur += SampleIndex(e.Count)
		time += uint64(e.Count) * uint64(e.Duration)
	}
	return time
}

// FindMediaTimes returns the media time for each sample in samples,
// which must be sorted ascending. It walks the stts run-length table
// once instead of restarting the search for each sample.
func FindMediaTimes(stts []SttsEntry, samples []SampleIndex) []uint64 {
	out := make([]uint64, len(samples))
	var cur SampleIndex = 1
	var time uint64
	i := 0
	for _, e := range stts {
		runEnd := cur + SampleIndex(e.Count)
		for i < len(samples) && samples[i] < runEnd {
			out[i] = time + uint64(samples[i]-cur)*uint64(e.Duration)
			i++
		}
		cur = runEnd
		time += uint64(e.Count) * uint64(e.Duration)
	}
	for ; i < len(samples); i++ {
		out[i] = time
	}
	return out
}

// FindChunkNumStsc returns the 1-based chunk containing the given
// 1-based sample, and the 1-based index of that sample within the
// chunk (e.g. the 3rd sample of chunk 7).
func FindChunkNumStsc(stsc []StscEntry, sample SampleIndex) (chunk ChunkIndex, indexInChunk uint32) {
	current := ChunkIndex(1)
	perChunk := uint32(0)
	samplesSoFar := SampleIndex(1)

	for i := 0; i < len(stsc); i++ {
		first := ChunkIndex(stsc[i].FirstChunk)
		if i+1 < len(stsc) {
			next := ChunkIndex(stsc[i+1].FirstChunk)
			chunksInRun := next - first
			samplesInRun := uint32(chunksInRun) * stsc[i].SamplesPerChunk
			if sample < samplesSoFar+SampleIndex(samplesInRun) {
				current = first
				perChunk = stsc[i].SamplesPerChunk
				break
			}
			samplesSoFar += SampleIndex(samplesInRun)
			current = next
			perChunk = stsc[i].SamplesPerChunk
			continue
		}
		current = first
		perChunk = stsc[i].SamplesPerChunk
	}

	if perChunk == 0 {
		return current, 1
	}
	offset := uint32(sample - samplesSoFar)
	chunk = current + ChunkIndex(offset/perChunk)
	indexInChunk = offset%perChunk + 1
	return chunk, indexInChunk
}

// GetChunkOffset returns the byte offset of the given 1-based sample:
// the chunk's base offset plus the sum of sizes of preceding samples
// within that chunk.
func GetChunkOffset(stsc []StscEntry, chunkOffsets []uint64, sampleSizes func(SampleIndex) uint32, sample SampleIndex) uint64 {
	chunk, indexInChunk := FindChunkNumStsc(stsc, sample)
	base := chunkOffsets[chunk-1]
	var off uint64
	firstSampleOfChunk := sample - SampleIndex(indexInChunk-1)
	for s := firstSampleOfChunk; s < sample; s++ {
		off += uint64(sampleSizes(s))
	}
	return base + off
}

// SizeOfSample returns the size in bytes of the given 1-based sample.
func (st *SampleTable) SizeOfSample(sample SampleIndex) uint32 {
	if st.SampleSize != 0 {
		return st.SampleSize
	}
	return st.SampleSizes[sample-1]
}

// SampleOffset returns the absolute byte offset of the given 1-based sample.
func (st *SampleTable) SampleOffset(sample SampleIndex) uint64 {
	return GetChunkOffset(st.Stsc, st.ChunkOffsets, st.SizeOfSample, sample)
}

// chunkFirstSample returns the 1-based first sample of chunk, and the
// run's SamplesPerChunk, by walking the stsc run-length table.
func chunkFirstSample(stsc []StscEntry, totalChunks ChunkIndex, chunk ChunkIndex) (first SampleIndex, perChunk uint32) {
	var acc SampleIndex = 1
	for i := 0; i < len(stsc); i++ {
		runFirst := ChunkIndex(stsc[i].FirstChunk)
		var runNext ChunkIndex
		if i+1 < len(stsc) {
			runNext = ChunkIndex(stsc[i+1].FirstChunk)
		} else {
			runNext = totalChunks + 1
		}
		if chunk < runNext {
			delta := chunk - runFirst
			return acc + SampleIndex(uint32(delta)*stsc[i].SamplesPerChunk), stsc[i].SamplesPerChunk
		}
		acc += SampleIndex(uint32(runNext-runFirst) * stsc[i].SamplesPerChunk)
	}
	return acc, 0
}

// FirstSampleAtOrAfterOffset returns the first sample whose byte offset
// is greater than or equal to target. Chunk offsets are assumed
// monotonically increasing with sample index, as produced by any
// ordinary encoder.
func (st *SampleTable) FirstSampleAtOrAfterOffset(target uint64) SampleIndex {
	totalChunks := ChunkIndex(len(st.ChunkOffsets))
	k := sortSearchChunk(st.ChunkOffsets, target)
	for chunk := ChunkIndex(k + 1); chunk <= totalChunks; chunk++ {
		first, perChunk := chunkFirstSample(st.Stsc, totalChunks, chunk)
		if perChunk == 0 {
			continue
		}
		base := st.ChunkOffsets[chunk-1]
		off := base
		for i := uint32(0); i < perChunk; i++ {
			s := first + SampleIndex(i)
			if off >= target {
				return s
			}
			off += uint64(st.SizeOfSample(s))
		}
	}
	return SampleIndex(st.SampleCount) + 1
}

// sortSearchChunk returns the 0-based index of the last chunk whose
// offset is <= target, or 0 if target precedes every chunk.
func sortSearchChunk(offsets []uint64, target uint64) int {
	lo, hi := 0, len(offsets)-1
	best := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if offsets[mid] <= target {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}
