package bmff

import "testing"

func newSyncTestMovie() *Movie {
	video := &Track{
		TrackID:        1,
		HandlerType:    [4]byte{'v', 'i', 'd', 'e'},
		MediaTimescale: 1000,
		MediaDuration:  1000,
		Stbl: &SampleTable{
			Stts:    []SttsEntry{{Count: 10, Duration: 100}},
			HasStss: true,
			Stss:    []uint32{1, 4, 7},
		},
	}
	audio := &Track{
		TrackID:        2,
		HandlerType:    [4]byte{'s', 'o', 'u', 'n'},
		MediaTimescale: 1000,
		MediaDuration:  1000,
		Stbl: &SampleTable{
			Stts:    []SttsEntry{{Count: 10, Duration: 100}},
			HasStss: false,
		},
	}
	return &Movie{Timescale: 1000, Duration: 1000, Tracks: []*Track{audio, video}}
}

func TestSyncTrackPrefersVideo(t *testing.T) {
	m := newSyncTestMovie()
	tr := syncTrack(m)
	if tr == nil || tr.TrackID != 1 {
		t.Fatalf("syncTrack picked track %v, want the video track (id 1)", tr)
	}
}

func TestSyncTrackFallsBackWhenNoVideoHasStss(t *testing.T) {
	m := newSyncTestMovie()
	m.Tracks[1].Stbl.HasStss = false // video track loses its stss
	m.Tracks[0].Stbl.HasStss = true  // audio track gets one instead
	m.Tracks[0].Stbl.Stss = []uint32{1, 6}

	tr := syncTrack(m)
	if tr == nil || tr.TrackID != 2 {
		t.Fatalf("syncTrack picked track %v, want the audio track (id 2)", tr)
	}
}

func TestMovieSyncPoints(t *testing.T) {
	m := newSyncTestMovie()
	points := movieSyncPoints(m)
	want := []float64{0, 0.3, 0.6} // samples 1, 4, 7 at 100 units/sample, timescale 1000
	if len(points) != len(want) {
		t.Fatalf("movieSyncPoints = %v, want %v", points, want)
	}
	for i := range want {
		if points[i] != want[i] {
			t.Errorf("points[%d] = %v, want %v", i, points[i], want[i])
		}
	}
}

func TestMovieNearestSyncpoint(t *testing.T) {
	m := newSyncTestMovie()
	cases := []struct {
		t    float64
		want float64
	}{
		{0, 0},
		{0.2, 0.3},  // closer to 0.3 (0.1 away) than to 0 (0.2 away)
		{0.45, 0.3}, // exactly between 0.3 and 0.6: ties favor the earlier point
		{0.59, 0.6},
		{10, 0.6},
	}
	for _, c := range cases {
		got, err := movieNearestSyncpoint(m, c.t)
		if err != nil {
			t.Fatalf("movieNearestSyncpoint(%v): %v", c.t, err)
		}
		if got != c.want {
			t.Errorf("movieNearestSyncpoint(%v) = %v, want %v", c.t, got, c.want)
		}
	}
}

func TestMovieNearestSyncpointNoStssClampsToMovieDuration(t *testing.T) {
	audio := &Track{
		TrackID:        1,
		HandlerType:    [4]byte{'s', 'o', 'u', 'n'},
		MediaTimescale: 1000,
		MediaDuration:  5000,
		Stbl:           &SampleTable{Stts: []SttsEntry{{Count: 50, Duration: 100}}},
	}
	m := &Movie{Timescale: 1000, Duration: 5000, Tracks: []*Track{audio}}

	cases := []struct {
		t    float64
		want float64
	}{
		{2.0, 2.0},       // within range: returned unchanged
		{10.0, 5.0 - 0.1}, // beyond the movie duration: clamped down
		{-5.0, 0},         // negative: clamped up to 0
	}
	for _, c := range cases {
		got, err := movieNearestSyncpoint(m, c.t)
		if err != nil {
			t.Fatalf("movieNearestSyncpoint(%v): %v", c.t, err)
		}
		if got != c.want {
			t.Errorf("movieNearestSyncpoint(%v) = %v, want %v", c.t, got, c.want)
		}
	}
}

func TestMovieNearestSyncpointNoTracksClampsToMovieDuration(t *testing.T) {
	// A movie with no tracks at all has no sync points either, but
	// that's not an error: it clamps against the movie's own duration
	// the same way a movie with tracks but no stss anywhere does.
	m := &Movie{Timescale: 1000, Duration: 5000, Tracks: []*Track{}}
	got, err := movieNearestSyncpoint(m, 10.0)
	if err != nil {
		t.Fatalf("movieNearestSyncpoint: %v", err)
	}
	if want := 5.0 - 0.1; got != want {
		t.Errorf("movieNearestSyncpoint = %v, want %v", got, want)
	}
}

func TestMovieNearestSyncpointZeroTimescale(t *testing.T) {
	m := &Movie{Tracks: []*Track{}}
	if _, err := movieNearestSyncpoint(m, 1.0); err == nil {
		t.Fatal("expected an error for a movie with zero timescale")
	}
}
