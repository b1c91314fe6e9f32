package sweep

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// LineWriter is an io.WriteCloser that splits a tool's stdout into lines,
// decodes each line from the console code page and feeds it to a LineParser.
// Accepted values are handed to the accept callback together with the line.
type LineWriter struct {
	enc    encoding.Encoding
	parser LineParser
	accept func(value, line string)
	buf    []byte
}

// NewLineWriter returns a LineWriter. A nil encoding means UTF-8.
func NewLineWriter(enc encoding.Encoding, parser LineParser, accept func(value, line string)) *LineWriter {
	if enc == nil {
		enc = unicode.UTF8
	}
	return &LineWriter{enc: enc, parser: parser, accept: accept}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.eol(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Close flushes a trailing line that was not terminated by a newline.
func (w *LineWriter) Close() error {
	if len(w.buf) > 0 {
		w.eol(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *LineWriter) eol(raw []byte) {
	raw = bytes.TrimSuffix(raw, []byte{'\r'})
	decoded, err := w.enc.NewDecoder().Bytes(raw)
	if err != nil {
		decoded = raw
	}
	line := strings.TrimSpace(string(decoded))
	value, ok := w.parser.Feed(line)
	if ok && w.accept != nil {
		w.accept(value, line)
	}
}
