package codec

import "github.com/pkg/errors"

var (
	ErrShortBuffer     = errors.New("codec: short buffer")
	ErrInvalidType     = errors.New("codec: invalid type code")
	ErrInvalidSize     = errors.New("codec: invalid compound size")
	ErrTooDeep         = errors.New("codec: nesting too deep")
	ErrTrailingBytes   = errors.New("codec: trailing bytes after value")
	ErrUnsupportedType = errors.New("codec: unsupported go type")
	ErrMixedArray      = errors.New("codec: array elements must share one type")
	ErrTooLarge        = errors.New("codec: value too large")
)
