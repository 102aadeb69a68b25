// Package lsblk parses the KEY="value" pair output produced by lsblk -P,
// lvs --nameprefixes and os-release style files.
//
// Each non-blank line is one record. Tokens are separated by blanks. A value
// is either double quoted, in which case it may contain blanks and the
// escapes \" \\ and \xHH, or bare, in which case it runs to the next blank.
// Keys may contain any non-blank byte except '=' (lsblk emits MAJ:MIN).
package lsblk

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrParse is wrapped by every ParseError
var ErrParse = errors.New("parse error")

// ParseError locates a grammar violation
type ParseError struct {
	Line int // 1-based
	Col  int // 1-based byte offset within the line
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d col %d: %s", e.Line, e.Col, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

// Pair is one KEY=value token
type Pair struct {
	Key   string
	Value string
}

// Record is the ordered pairs of one output line
type Record []Pair

// Get returns the value of the first pair named key
func (r Record) Get(key string) (string, bool) {
	for _, p := range r {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Value returns the value for key, or "" when the key is absent
func (r Record) Value(key string) string {
	v, _ := r.Get(key)
	return v
}

const blanks = " \t\r\v\f"

func isBlank(c byte) bool {
	return strings.IndexByte(blanks, c) >= 0
}

// Parse splits data into records
func Parse(data []byte) ([]Record, error) {
	var records []Record
	for i, line := range strings.Split(string(data), "\n") {
		if strings.Trim(line, blanks) == "" {
			continue
		}
		rec, err := parseLine(line, i+1)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ParseLine parses a single line into a record
func ParseLine(line string) (Record, error) {
	return parseLine(line, 1)
}

func parseLine(line string, lineNo int) (Record, error) {
	var rec Record
	i := 0
	n := len(line)

	for {
		for i < n && isBlank(line[i]) {
			i++
		}
		if i >= n {
			return rec, nil
		}

		start := i
		for i < n && line[i] != '=' && !isBlank(line[i]) {
			i++
		}
		if i >= n || line[i] != '=' {
			return nil, &ParseError{Line: lineNo, Col: start + 1, Msg: fmt.Sprintf("token %q has no '='", line[start:i])}
		}
		if i == start {
			return nil, &ParseError{Line: lineNo, Col: start + 1, Msg: "empty key"}
		}
		key := line[start:i]
		i++ // '='

		var value string
		if i < n && line[i] == '"' {
			v, next, err := readQuoted(line, i+1)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Col: i + 1, Msg: err.Error()}
			}
			value = v
			i = next
			if i < n && !isBlank(line[i]) {
				return nil, &ParseError{Line: lineNo, Col: i + 1, Msg: "missing blank after quoted value"}
			}
		} else {
			vs := i
			for i < n && !isBlank(line[i]) {
				i++
			}
			value = line[vs:i]
		}

		rec = append(rec, Pair{Key: key, Value: value})
	}
}

// readQuoted reads from just after an opening quote up to and including the
// closing quote, returning the unescaped value and the index after the quote.
func readQuoted(line string, i int) (string, int, error) {
	var b strings.Builder
	n := len(line)
	for i < n {
		c := line[i]
		switch c {
		case '"':
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= n {
				return "", 0, errors.New("dangling escape")
			}
			switch line[i+1] {
			case '"', '\\':
				b.WriteByte(line[i+1])
				i += 2
			case 'x':
				if i+3 < n {
					if v, err := strconv.ParseUint(line[i+2:i+4], 16, 8); err == nil {
						b.WriteByte(byte(v))
						i += 4
						continue
					}
				}
				b.WriteByte('\\')
				i++
			default:
				b.WriteByte('\\')
				i++
			}
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, errors.New("unterminated quoted value")
}

// Format renders records back into pair output. Every value is quoted and
// bytes that would confuse the grammar are written as \xHH.
func Format(records []Record) []byte {
	var b strings.Builder
	for _, rec := range records {
		for j, p := range rec {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(p.Key)
			b.WriteString(`="`)
			b.WriteString(escape(p.Value))
			b.WriteByte('"')
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func escape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' || c < 0x20 || c == 0x7f {
			fmt.Fprintf(&b, `\x%02x`, c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
