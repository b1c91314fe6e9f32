//go:build !windows

package sweep

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

func consoleEncoding() encoding.Encoding {
	return unicode.UTF8
}
