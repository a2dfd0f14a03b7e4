package bmff

import (
	"context"
	"fmt"
	"io"
)

// Split rewrites src's movie header so that the media data starting at
// t seconds becomes the start of the movie, and returns the bytes the
// caller must write before copying the tail of the original file.
//
// header is a complete ftyp box, a rewritten moov box, and a new mdat
// header whose declared size covers every byte from newDataOffset to
// the end of src. newDataOffset is the offset, in src, from which the
// caller should copy the remainder verbatim (for example with
// io.CopyN or io.Copy after seeking). Any atoms src carried between
// the original data region and end-of-file (trailing free boxes, a
// second moov used for fragments) are folded into the single mdat and
// so are not reproduced as distinct boxes in the split output; split
// targets progressive single-moov files, matching this package's scope.
func Split(src io.ReadSeeker, t float64) (header []byte, newDataOffset int64, err error) {
	ftypRaw, moovRaw, dataStart, fileSize, err := scanTopLevel(src)
	if err != nil {
		return nil, 0, err
	}

	m, err := DecodeMoov(moovRaw)
	if err != nil {
		return nil, 0, err
	}

	t, err = movieNearestSyncpoint(m, t)
	if err != nil {
		return nil, 0, err
	}

	cutOffset, err := CutMoov(m, t)
	if err != nil {
		return nil, 0, err
	}
	if int64(cutOffset) < dataStart || int64(cutOffset) >= fileSize {
		return nil, 0, fmt.Errorf("%w: cut offset outside media data region", ErrFormatError)
	}

	header, err = buildSplitHeader(ftypRaw, m, int64(cutOffset), fileSize)
	if err != nil {
		return nil, 0, err
	}
	return header, int64(cutOffset), nil
}

// buildSplitHeader encodes the new ftyp+moov+mdat header, iterating
// until the header size used to compute chunk offset shifts matches
// the size actually produced (offset-width promotion to co64 changes
// moov's length, which can change the shift enough to require another
// promotion elsewhere).
func buildSplitHeader(ftypRaw []byte, m *Movie, cutOffset, fileSize int64) ([]byte, error) {
	originals := SnapshotOffsets(m)
	dataLen := fileSize - cutOffset
	if dataLen < 0 {
		return nil, fmt.Errorf("%w: empty media data after cut", ErrFormatError)
	}

	mdatHeaderSize := int64(8)
	if dataLen+8 > uint32Max {
		mdatHeaderSize = 16
	}

	moovBytes := m.Encode()
	for {
		shift := int64(len(ftypRaw)) + int64(len(moovBytes)) + mdatHeaderSize - cutOffset
		promoted := UpdateOffsets(m, originals, shift)
		newMoovBytes := m.Encode()
		if !promoted && len(newMoovBytes) == len(moovBytes) {
			moovBytes = newMoovBytes
			break
		}
		moovBytes = newMoovBytes
	}

	out := make([]byte, 0, len(ftypRaw)+len(moovBytes)+int(mdatHeaderSize))
	out = append(out, ftypRaw...)
	out = append(out, moovBytes...)
	out = append(out, encodeMdatHeader(dataLen, mdatHeaderSize)...)
	return out, nil
}

func encodeMdatHeader(dataLen, headerSize int64) []byte {
	buf := make([]byte, headerSize)
	if headerSize == 16 {
		be.PutUint32(buf[0:4], 1)
		copy(buf[4:8], TypeMdat[:])
		be.PutUint64(buf[8:16], uint64(dataLen+16))
	} else {
		be.PutUint32(buf[0:4], uint32(dataLen+8))
		copy(buf[4:8], TypeMdat[:])
	}
	return buf
}

// scanTopLevel reads src's ftyp and moov boxes and returns dataStart,
// the first byte after moov. Chunk offsets are absolute file offsets;
// Split accepts only cut offsets at or after dataStart, so a file whose
// media data precedes moov is not split.
func scanTopLevel(src io.ReadSeeker) (ftypRaw, moovRaw []byte, dataStart, fileSize int64, err error) {
	fileSize, err = src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	if _, err = src.Seek(0, io.SeekStart); err != nil {
		return nil, nil, 0, 0, err
	}

	sc := NewScanner(src)
	for sc.Next() {
		e := sc.Entry()
		switch e.Type {
		case TypeFtyp:
			ftypRaw = make([]byte, e.Size)
			if err = sc.ReadBox(ftypRaw); err != nil {
				return nil, nil, 0, 0, err
			}
		case TypeMoov:
			body := make([]byte, e.DataSize())
			if err = sc.ReadBody(body); err != nil {
				return nil, nil, 0, 0, err
			}
			moovRaw = body
			dataStart = e.Offset + e.Size
		}
	}
	if err = sc.Err(); err != nil {
		return nil, nil, 0, 0, err
	}
	if ftypRaw == nil {
		return nil, nil, 0, 0, fmt.Errorf("%w: missing ftyp", ErrCannotSelect)
	}
	if moovRaw == nil {
		return nil, nil, 0, 0, fmt.Errorf("%w: missing moov", ErrCannotSelect)
	}
	return ftypRaw, moovRaw, dataStart, fileSize, nil
}

// SplitAndWrite writes the split result for src at time t to dst: the
// rewritten header followed by the unmodified tail of src from the
// cut point onward. It checks ctx between the header write and the
// data copy so a caller can cancel before the (potentially large)
// media copy begins.
func SplitAndWrite(ctx context.Context, src io.ReadSeeker, dst io.Writer, t float64) error {
	header, newDataOffset, err := Split(src, t)
	if err != nil {
		return err
	}
	if _, err := dst.Write(header); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := src.Seek(newDataOffset, io.SeekStart); err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}
