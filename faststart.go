package bmff

import (
	"context"
	"fmt"
	"io"
)

// MoveHeaderAndWrite rewrites src so moov precedes the media data
// instead of following it, letting a player start before the whole
// file has downloaded. It reports false and copies src unchanged if
// moov already precedes mdat.
//
// The new moov is spliced in immediately before mdat, not simply
// after ftyp: any boxes an encoder placed between ftyp and mdat (for
// example a free box reserved for later padding) are left exactly
// where they were. If a wide box immediately precedes mdat, moov is
// inserted before that wide box instead of between it and mdat, so
// the wide-mdat adjacency an encoder relied on for later in-place
// size promotion survives the rewrite. When the insertion shifts a
// track's offsets past the 32-bit stco limit, that track's chunk
// table is promoted to co64, which changes moov's size and is fed
// back into the shift until it stops moving.
func MoveHeaderAndWrite(ctx context.Context, src io.ReadSeeker, dst io.Writer) (bool, error) {
	ftypRaw, moovRaw, moovOffset, moovSize, insertOffset, fileSize, err := scanForFaststart(src)
	if err != nil {
		return false, err
	}

	ftypEnd := int64(len(ftypRaw))
	if moovOffset < insertOffset {
		// moov already precedes mdat (and any wide immediately before
		// it): nothing to move.
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return false, err
		}
		_, err := io.Copy(dst, src)
		return false, err
	}

	m, err := DecodeMoov(moovRaw)
	if err != nil {
		return false, err
	}

	originals := SnapshotOffsets(m)
	moovBytes := m.Encode()
	for {
		shift := int64(len(moovBytes))
		promoted := UpdateOffsets(m, originals, shift)
		newMoovBytes := m.Encode()
		if !promoted && len(newMoovBytes) == len(moovBytes) {
			moovBytes = newMoovBytes
			break
		}
		moovBytes = newMoovBytes
	}

	if _, err := dst.Write(ftypRaw); err != nil {
		return false, err
	}

	if _, err := src.Seek(ftypEnd, io.SeekStart); err != nil {
		return false, err
	}
	if _, err := io.CopyN(dst, src, insertOffset-ftypEnd); err != nil {
		return false, err
	}

	if _, err := dst.Write(moovBytes); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if _, err := src.Seek(insertOffset, io.SeekStart); err != nil {
		return false, err
	}
	if _, err := io.CopyN(dst, src, moovOffset-insertOffset); err != nil {
		return false, err
	}

	moovEnd := moovOffset + moovSize
	if moovEnd < fileSize {
		if _, err := src.Seek(moovEnd, io.SeekStart); err != nil {
			return false, err
		}
		if _, err := io.Copy(dst, src); err != nil {
			return false, err
		}
	}

	return true, nil
}

// scanForFaststart locates ftyp, moov and mdat, and resolves
// insertOffset: the byte offset the new moov should be spliced in
// before. This is mdat's own offset, unless a wide box's data ends
// exactly where mdat begins, in which case it is that wide box's
// offset instead.
func scanForFaststart(src io.ReadSeeker) (ftypRaw, moovRaw []byte, moovOffset, moovSize, insertOffset, fileSize int64, err error) {
	fileSize, err = src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, nil, 0, 0, 0, 0, err
	}
	if _, err = src.Seek(0, io.SeekStart); err != nil {
		return nil, nil, 0, 0, 0, 0, err
	}

	var mdatOffset int64 = -1
	var haveMdat bool
	var lastWideOffset, lastWideEnd int64 = -1, -1 // the most recent wide box seen before mdat

	sc := NewScanner(src)
	for sc.Next() {
		e := sc.Entry()
		switch e.Type {
		case TypeFtyp:
			ftypRaw = make([]byte, e.Size)
			if err = sc.ReadBox(ftypRaw); err != nil {
				return nil, nil, 0, 0, 0, 0, err
			}
		case TypeMoov:
			body := make([]byte, e.DataSize())
			if err = sc.ReadBody(body); err != nil {
				return nil, nil, 0, 0, 0, 0, err
			}
			moovRaw = body
			moovOffset = e.Offset
			moovSize = e.Size
		case TypeMdat:
			if !haveMdat {
				mdatOffset = e.Offset
				haveMdat = true
			}
		case TypeWide:
			if !haveMdat {
				lastWideOffset, lastWideEnd = e.Offset, e.Offset+e.Size
			}
		}
	}
	if err = sc.Err(); err != nil {
		return nil, nil, 0, 0, 0, 0, err
	}
	if ftypRaw == nil {
		return nil, nil, 0, 0, 0, 0, fmt.Errorf("%w: missing ftyp", ErrCannotSelect)
	}
	if moovRaw == nil {
		return nil, nil, 0, 0, 0, 0, fmt.Errorf("%w: missing moov", ErrCannotSelect)
	}
	if !haveMdat {
		return nil, nil, 0, 0, 0, 0, fmt.Errorf("%w: missing mdat", ErrCannotSelect)
	}

	insertOffset = mdatOffset
	if lastWideEnd == mdatOffset {
		insertOffset = lastWideOffset
	}
	return ftypRaw, moovRaw, moovOffset, moovSize, insertOffset, fileSize, nil
}
