package ksvalue

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// DecodeText decodes raw bytes read from a stream into a string under the
// named encoding, matching the encoding names a KSY `encoding:` key carries
// (inherited from meta.encoding or overridden per-field).
func DecodeText(raw []byte, encodingName string) (string, error) {
	if encodingName == "" {
		encodingName = "UTF-8"
	}
	var enc encoding.Encoding

	switch encodingName {
	case "ASCII":
		for _, b := range raw {
			if b > 127 {
				return "", fmt.Errorf("ksvalue: invalid ASCII byte %#x", b)
			}
		}
		return string(raw), nil
	case "UTF-8":
		return string(raw), nil
	case "UTF-16LE":
		enc = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case "UTF-16BE":
		enc = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case "UTF-32LE":
		enc = utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
	case "UTF-32BE":
		enc = utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)
	case "CP437", "IBM437":
		enc = charmap.CodePage437
	case "ISO-8859-1", "Latin1", "LATIN1":
		enc = charmap.ISO8859_1
	case "SHIFT_JIS", "SJIS":
		enc = japanese.ShiftJIS
	case "EUC-JP":
		enc = japanese.EUCJP
	default:
		return "", fmt.Errorf("ksvalue: unsupported encoding %q", encodingName)
	}

	decoder := enc.NewDecoder()
	out, err := decoder.String(string(raw))
	if err != nil {
		return "", fmt.Errorf("ksvalue: decode %s: %w", encodingName, err)
	}
	return out, nil
}
