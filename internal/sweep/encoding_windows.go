//go:build windows

package sweep

import (
	"golang.org/x/sys/windows"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// consoleEncoding follows the console output code page, falling back to the
// ANSI code page when the process has no console (e.g. running as a service).
func consoleEncoding() encoding.Encoding {
	cp, err := windows.GetConsoleOutputCP()
	if err != nil || cp == 0 {
		cp = windows.GetACP()
	}
	if enc, ok := CodePage(int(cp)); ok {
		return enc
	}
	return unicode.UTF8
}
