package tabular

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ParseError reports input that could not be decoded in any supported
// encoding (or, for spreadsheets, could not be opened at all).
type ParseError struct {
	Source   string
	Encoding string
	Fallback string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Fallback == "" {
		return fmt.Sprintf("parse %s: cannot decode as %s: %v", e.Source, e.Encoding, e.Err)
	}
	return fmt.Sprintf("parse %s: cannot decode as %s or %s: %v", e.Source, e.Encoding, e.Fallback, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errInvalidUTF8 = errors.New("invalid utf-8 byte sequence")

// decodeUTF8 strips a byte order mark (converting UTF-16 when its BOM is
// present) and rejects anything that is not valid UTF-8.
func decodeUTF8(data []byte) ([]byte, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		return nil, eris.Wrap(err, "decode utf-8")
	}
	if !utf8.Valid(out) {
		return nil, errInvalidUTF8
	}
	return out, nil
}

// decodeWith transcodes data from the named encoding to UTF-8.
func decodeWith(name string, data []byte) ([]byte, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "unsupported encoding %q", name)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, eris.Wrapf(err, "decode %s", name)
	}
	return out, nil
}

func logFallback(source, fallback string, cause error) {
	zap.L().Warn("tabular: utf-8 decode failed, retrying with fallback encoding",
		zap.String("source", source),
		zap.String("fallback", fallback),
		zap.Error(cause),
	)
}
