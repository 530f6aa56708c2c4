package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrNoCandidates      = errors.New("no candidates found")
	ErrMissingColumns    = errors.New("missing required columns")
	ErrUnsupportedTable  = errors.New("unsupported vocabulary table")
	ErrDimensionMismatch = errors.New("collection vector dimension mismatch")
)
