package sweep

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// code pages commonly reported by Windows consoles
var codePages = map[int]encoding.Encoding{
	437:   charmap.CodePage437,
	850:   charmap.CodePage850,
	852:   charmap.CodePage852,
	855:   charmap.CodePage855,
	858:   charmap.CodePage858,
	860:   charmap.CodePage860,
	862:   charmap.CodePage862,
	863:   charmap.CodePage863,
	865:   charmap.CodePage865,
	866:   charmap.CodePage866,
	874:   charmap.Windows874,
	1250:  charmap.Windows1250,
	1251:  charmap.Windows1251,
	1252:  charmap.Windows1252,
	1253:  charmap.Windows1253,
	1254:  charmap.Windows1254,
	1255:  charmap.Windows1255,
	1256:  charmap.Windows1256,
	1257:  charmap.Windows1257,
	1258:  charmap.Windows1258,
	20866: charmap.KOI8R,
	21866: charmap.KOI8U,
	28591: charmap.ISO8859_1,
	65001: unicode.UTF8,
}

// CodePage maps a numeric Windows code page to an encoding.
func CodePage(cp int) (encoding.Encoding, bool) {
	enc, ok := codePages[cp]
	return enc, ok
}

// ResolveEncoding turns a configured code page into an encoding. "auto" (or
// empty) asks the platform for the console output code page; numbers are
// Windows code pages; anything else is looked up as an IANA charset name.
func ResolveEncoding(setting string) (encoding.Encoding, error) {
	s := strings.TrimSpace(setting)
	switch strings.ToLower(s) {
	case "", "auto":
		return consoleEncoding(), nil
	case "utf-8", "utf8":
		return unicode.UTF8, nil
	}
	if cp, err := strconv.Atoi(s); err == nil {
		if enc, ok := CodePage(cp); ok {
			return enc, nil
		}
		return nil, fmt.Errorf("unsupported code page %d", cp)
	}
	enc, err := ianaindex.IANA.Encoding(s)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", s, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %q has no decoder", s)
	}
	if !asciiCompatible(enc) {
		return nil, fmt.Errorf("charset %q is not ASCII-compatible; tool output is split on single-byte newlines", s)
	}
	return enc, nil
}

// asciiSample covers the bytes the line parsers rely on.
const asciiSample = "app.exe pid: 0123456789 SERVICE_NAME:\r\n"

// asciiCompatible reports whether enc encodes ASCII as itself, which rules
// out multi-byte code units such as UTF-16 and UTF-32.
func asciiCompatible(enc encoding.Encoding) bool {
	out, err := enc.NewEncoder().String(asciiSample)
	return err == nil && out == asciiSample
}
