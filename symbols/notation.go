package symbols

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrSyntax is returned by Parse for malformed text.
var ErrSyntax = errors.New("symbols: syntax error")

// Parse reads the bracketed L-system notation, e.g.
//
//	n(0.5, 4, 10)F[n(0.5, 0, 10)]a(2)
//
// Each rune is one symbol whose code is the rune value. A parenthesized,
// comma-separated list of numbers directly after a rune becomes its
// parameters. Whitespace between symbols is ignored.
func Parse(text string) (*String, error) {
	s := &String{}
	for pos := 0; pos < len(text); {
		r, size := utf8.DecodeRuneInString(text[pos:])
		if r == utf8.RuneError && size == 1 {
			return nil, fmt.Errorf("%w at offset %d: invalid utf-8", ErrSyntax, pos)
		}
		if unicode.IsSpace(r) {
			pos += size
			continue
		}
		if r == '(' || r == ')' || r == ',' {
			return nil, fmt.Errorf("%w at offset %d: unexpected %q", ErrSyntax, pos, r)
		}
		pos += size

		if pos >= len(text) || text[pos] != '(' {
			s.Append(Symbol(r))
			continue
		}

		end := strings.IndexByte(text[pos:], ')')
		if end < 0 {
			return nil, fmt.Errorf("%w at offset %d: unclosed parameter list", ErrSyntax, pos)
		}
		params, err := parseParams(text[pos+1:pos+end], pos+1)
		if err != nil {
			return nil, err
		}
		if len(params) > 0xFFFF {
			return nil, fmt.Errorf("%w at offset %d: %d parameters exceed descriptor range", ErrSyntax, pos, len(params))
		}
		s.Append(Symbol(r), params...)
		pos += end + 1
	}
	return s, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// built-in samples.
func MustParse(text string) *String {
	s, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return s
}

func parseParams(list string, offset int) ([]float32, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	fields := strings.Split(list, ",")
	params := make([]float32, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
		if err != nil {
			return nil, fmt.Errorf("%w at offset %d: parameter %q: %v", ErrSyntax, offset, strings.TrimSpace(field), err)
		}
		params = append(params, float32(v))
		offset += len(field) + 1
	}
	return params, nil
}

// Format writes s in the notation read by Parse. Symbols without parameters
// are written bare.
func Format(s *String) string {
	var b strings.Builder
	for i := 0; i < s.Len(); i++ {
		b.WriteRune(rune(s.Symbols[i]))
		params := s.Params(i)
		if len(params) == 0 {
			continue
		}
		b.WriteByte('(')
		for p, v := range params {
			if p > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
		}
		b.WriteByte(')')
	}
	return b.String()
}
