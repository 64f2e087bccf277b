package statement

import "errors"

// Kind classifies file-level parse failures.
type Kind int

const (
	// KindUnreadableFile means every decoding attempt failed.
	KindUnreadableFile Kind = iota + 1
	// KindNoRows means the file decoded but held no extractable movements.
	KindNoRows
	// KindMissingColumns means the required header columns never resolved.
	KindMissingColumns
)

func (k Kind) String() string {
	switch k {
	case KindUnreadableFile:
		return "unreadable file"
	case KindNoRows:
		return "no rows"
	case KindMissingColumns:
		return "missing columns"
	default:
		return "parse error"
	}
}

// Error is a file-level parse failure. Row-level problems (bad cells,
// unparseable dates) never surface here; they only skip the row.
type Error struct {
	Kind    Kind
	Variant string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Variant + ": " + e.Message
	}
	return e.Variant + ": " + e.Kind.String()
}

// IsKind reports whether err is a parse error of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}
