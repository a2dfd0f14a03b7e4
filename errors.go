package bmff

import "errors"

// ErrUnsupportedVersion is returned when a full box carries a version
// field this package does not know how to interpret.
var ErrUnsupportedVersion = errors.New("bmff: unsupported box version")

// ErrFormatError is returned when the input does not conform to the
// structural expectations of the format: a required field is missing,
// a table is malformed, or a cut point cannot be represented.
var ErrFormatError = errors.New("bmff: malformed input")

// ErrCannotSelect is returned when a container box does not hold the
// required children, or holds more than one of a child that must be
// unique.
var ErrCannotSelect = errors.New("bmff: cannot select required child box")
