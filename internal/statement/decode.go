package statement

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Named encodings tried, in order, when turning file bytes into text.
const (
	encUTF8BOM = "utf-8-sig"
	encLatin1  = "latin-1"
	encCP1252  = "windows-1252"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText attempts each encoding in order and returns the first clean
// decode. Latin-1 accepts any byte sequence, so lists that include it
// cannot fail past it; the order is still honored so UTF-8 content is
// never mangled.
func decodeText(data []byte, encodings []string) (string, *Error) {
	for _, enc := range encodings {
		switch enc {
		case encUTF8BOM:
			trimmed := bytes.TrimPrefix(data, utf8BOM)
			if utf8.Valid(trimmed) {
				return string(trimmed), nil
			}
		case encLatin1:
			if out, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
				return string(out), nil
			}
		case encCP1252:
			if out, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil {
				return string(out), nil
			}
		}
	}
	return "", &Error{Kind: KindUnreadableFile, Message: "could not decode file contents"}
}
