package bmff

// Smooth Streaming extension box identifiers (uuid boxes). These
// mirror Microsoft's published extensions for absolute fragment
// timing; this package only ever writes them, for producers that need
// to advertise fragment time/duration to Smooth Streaming clients.
// Nothing in this package ever needs to read one back.
var (
	uuidCurrentFragment = [16]byte{0x6d, 0x1d, 0x9b, 0x05, 0x42, 0xd5, 0x44, 0xe6, 0x80, 0xe2, 0x14, 0x1d, 0xaf, 0xf7, 0x57, 0xb2}
	uuidNextFragment    = [16]byte{0xd4, 0x80, 0x7e, 0xf2, 0xca, 0x39, 0x46, 0x95, 0x8e, 0x54, 0x26, 0xcb, 0x9e, 0x46, 0xa7, 0x9f}
)

// SmoothNextEntry is one (timestamp, duration) pair in a uuid_ssnext
// box: the absolute time and duration, in the track's timescale
// units, of a fragment scheduled to follow the one the box is
// attached to.
type SmoothNextEntry struct {
	Timestamp uint64
	Duration  uint64
}

// MakeSmoothCurrent builds a uuid box advertising the absolute time
// and duration of the fragment it is attached to, in the track's
// timescale units.
func MakeSmoothCurrent(absoluteTime, duration uint64) []byte {
	buf := make([]byte, 0, 8+16+1+8+8)
	w := NewWriter(buf)
	w.StartBox(TypeUuid)
	w.putBytes(uuidCurrentFragment[:])
	w.putUint8(1) // version
	w.putUint64(absoluteTime)
	w.putUint64(duration)
	w.EndBox()
	return w.Bytes()
}

// MakeSmoothNext builds a uuid box advertising the absolute time and
// duration of each fragment scheduled to follow the one it is
// attached to: a u8 entry count followed by each entry's
// (timestamp, duration) pair.
func MakeSmoothNext(entries []SmoothNextEntry) []byte {
	buf := make([]byte, 0, 8+16+1+1+16*len(entries))
	w := NewWriter(buf)
	w.StartBox(TypeUuid)
	w.putBytes(uuidNextFragment[:])
	w.putUint8(1) // version
	w.putUint8(uint8(len(entries)))
	for _, e := range entries {
		w.putUint64(e.Timestamp)
		w.putUint64(e.Duration)
	}
	w.EndBox()
	return w.Bytes()
}
