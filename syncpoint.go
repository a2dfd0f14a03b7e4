package bmff

import (
	"fmt"
	"io"
)

// GetSyncPoints returns, in seconds, the media time of every sync
// sample on src's sync track (the video track if it has one, otherwise
// the first track carrying an stss table).
func GetSyncPoints(src io.ReadSeeker) ([]float64, error) {
	m, err := decodeMovieFrom(src)
	if err != nil {
		return nil, err
	}
	return movieSyncPoints(m), nil
}

// GetNearestSyncpoint returns the sync point in src, in seconds,
// closest to t.
func GetNearestSyncpoint(src io.ReadSeeker, t float64) (float64, error) {
	m, err := decodeMovieFrom(src)
	if err != nil {
		return 0, err
	}
	return movieNearestSyncpoint(m, t)
}

func decodeMovieFrom(src io.ReadSeeker) (*Movie, error) {
	_, moovRaw, _, _, err := scanTopLevel(src)
	if err != nil {
		return nil, err
	}
	return DecodeMoov(moovRaw)
}

// syncTrack picks the track whose stss table drives sync-point
// selection: the video track if one exists and carries sync samples,
// otherwise the first track with an stss table.
func syncTrack(m *Movie) *Track {
	for _, tr := range m.Tracks {
		if tr.IsVideo() && tr.Stbl.HasStss {
			return tr
		}
	}
	for _, tr := range m.Tracks {
		if tr.Stbl.HasStss {
			return tr
		}
	}
	return nil
}

// movieSyncPoints returns, in seconds, the media time of every sync
// sample on the track chosen by syncTrack. A movie with no sync
// samples on any track has no meaningful random-access points and
// returns an empty slice.
func movieSyncPoints(m *Movie) []float64 {
	tr := syncTrack(m)
	if tr == nil {
		return nil
	}
	samples := make([]SampleIndex, len(tr.Stbl.Stss))
	for i, v := range tr.Stbl.Stss {
		samples[i] = SampleIndex(v)
	}
	times := FindMediaTimes(tr.Stbl.Stts, samples)
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = float64(t) / float64(tr.MediaTimescale)
	}
	return out
}

// movieNearestSyncpoint returns the sync point, in seconds, closest to
// t. Ties favor the earlier sync point. If no track in the movie has
// any sync samples, t is clamped to [0, duration-0.1s] so a caller can
// still cut there. t <= 0 is clamped to the first sync point (or 0 if
// there are none at all).
func movieNearestSyncpoint(m *Movie, t float64) (float64, error) {
	if m.Timescale == 0 {
		return 0, fmt.Errorf("%w: movie has zero timescale", ErrFormatError)
	}

	points := movieSyncPoints(m)
	if len(points) == 0 {
		maxTs := float64(m.Duration)/float64(m.Timescale) - 0.1
		if maxTs < 0 {
			maxTs = 0
		}
		if t < 0 {
			t = 0
		}
		if t > maxTs {
			t = maxTs
		}
		return t, nil
	}
	if t <= 0 {
		return points[0], nil
	}

	var found, other float64
	haveFound, haveOther := false, false
	for _, p := range points {
		if p <= t {
			if !haveFound || p > found {
				found = p
				haveFound = true
			}
		} else if !haveOther || p < other {
			other = p
			haveOther = true
		}
	}

	switch {
	case !haveFound:
		return other, nil
	case !haveOther:
		return found, nil
	default:
		// A nanosecond of slack keeps a t midway between two points
		// (0.45 between 0.3 and 0.6) a tie despite float64 rounding.
		if (t-found)-(other-t) <= 1e-9 {
			return found, nil
		}
		return other, nil
	}
}
