// Package bencode implements the bencoding grammar used throughout the
// BitTorrent wire protocols: byte strings, integers, lists, and
// dictionaries with keys in ascending lexicographic order.
package bencode

import (
	"fmt"
	"sort"
)

// maxDepth bounds recursion so a hostile peer cannot crash the decoder
// with deeply nested containers.
const maxDepth = 200

// Error is raised for any malformed bencoded input.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return "bencode: " + e.Msg
}

func newError(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// Marshal encodes a value using the bencoding grammar. Supported types are
// []byte, string, int, int64, uint32, uint64, []any, map[string]any (or
// map[string][]byte), and Raw; any other type is an error. Dictionary keys
// are always emitted in ascending order.
func Marshal(v any) ([]byte, error) {
	var buf []byte
	buf, err := appendValue(buf, v)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func appendValue(buf []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return appendString(buf, x), nil
	case string:
		return appendString(buf, []byte(x)), nil
	case int:
		return appendInt(buf, int64(x)), nil
	case int64:
		return appendInt(buf, x), nil
	case uint32:
		return appendInt(buf, int64(x)), nil
	case uint64:
		return appendInt(buf, int64(x)), nil
	case []any:
		buf = append(buf, 'l')
		for _, item := range x {
			var err error
			buf, err = appendValue(buf, item)
			if err != nil {
				return nil, err
			}
		}
		return append(buf, 'e'), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, 'd')
		for _, k := range keys {
			buf = appendString(buf, []byte(k))
			var err error
			buf, err = appendValue(buf, x[k])
			if err != nil {
				return nil, err
			}
		}
		return append(buf, 'e'), nil
	case map[string][]byte:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = v
		}
		return appendValue(buf, m)
	case Raw:
		return append(buf, x...), nil
	default:
		return nil, newError("cannot encode value of type %T", v)
	}
}

func appendString(buf []byte, s []byte) []byte {
	buf = append(buf, fmt.Sprintf("%d:", len(s))...)
	return append(buf, s...)
}

func appendInt(buf []byte, n int64) []byte {
	return append(buf, fmt.Sprintf("i%de", n)...)
}

// Raw holds an already-bencoded blob that should be copied verbatim by
// Marshal instead of being re-encoded, mirroring zeebo/bencode's
// RawMessage used for pass-through info dictionaries.
type Raw []byte

// Unmarshal decodes a complete bencoded buffer. It is an error for the
// buffer to contain trailing bytes after the value.
func Unmarshal(data []byte) (any, error) {
	v, rest, err := UnmarshalPartial(data)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, newError("trailing bytes after value")
	}
	return v, nil
}

// UnmarshalPartial decodes a single bencoded value from the front of data
// and returns the value along with any unconsumed trailing bytes. This is
// required by BEP 9 data messages, which append a raw metadata chunk
// after a bencoded dict.
func UnmarshalPartial(data []byte) (any, []byte, error) {
	d := &decoder{buf: data}
	v, err := d.decodeValue(0)
	if err != nil {
		return nil, nil, err
	}
	return v, d.buf[d.pos:], nil
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) eof() bool {
	return d.pos >= len(d.buf)
}

func (d *decoder) peek() (byte, error) {
	if d.eof() {
		return 0, newError("short input")
	}
	return d.buf[d.pos], nil
}

func (d *decoder) next() (byte, error) {
	b, err := d.peek()
	if err != nil {
		return 0, err
	}
	d.pos++
	return b, nil
}

func (d *decoder) decodeValue(depth int) (any, error) {
	if depth > maxDepth {
		return nil, newError("structure nested too deeply")
	}
	c, err := d.peek()
	if err != nil {
		return nil, err
	}
	switch {
	case c == 'd':
		return d.decodeDict(depth)
	case c == 'l':
		return d.decodeList(depth)
	case c == 'i':
		return d.decodeInt()
	case c >= '0' && c <= '9':
		return d.decodeString()
	default:
		return nil, newError("invalid byte %q in input", c)
	}
}

func (d *decoder) decodeDict(depth int) (any, error) {
	d.pos++ // consume 'd'
	dict := make(map[string]any)
	var prevKey string
	haveKey := false
	for {
		c, err := d.peek()
		if err != nil {
			return nil, err
		}
		if c == 'e' {
			d.pos++
			return dict, nil
		}
		keyVal, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, err
		}
		keyBytes, ok := keyVal.([]byte)
		if !ok {
			return nil, newError("dict key is not a byte string")
		}
		key := string(keyBytes)
		if haveKey && key <= prevKey {
			return nil, newError("dict keys not in strictly ascending order")
		}
		val, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, err
		}
		dict[key] = val
		prevKey = key
		haveKey = true
	}
}

func (d *decoder) decodeList(depth int) (any, error) {
	d.pos++ // consume 'l'
	list := make([]any, 0)
	for {
		c, err := d.peek()
		if err != nil {
			return nil, err
		}
		if c == 'e' {
			d.pos++
			return list, nil
		}
		v, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
}

func (d *decoder) decodeInt() (any, error) {
	d.pos++ // consume 'i'
	start := d.pos
	for {
		c, err := d.next()
		if err != nil {
			return nil, err
		}
		if c == 'e' {
			break
		}
		if !(c >= '0' && c <= '9') && !(c == '-' && d.pos-1 == start) {
			return nil, newError("non-digit in integer")
		}
	}
	digits := d.buf[start : d.pos-1]
	return parseInt(digits)
}

func parseInt(digits []byte) (int64, error) {
	if len(digits) == 0 {
		return 0, newError("empty integer")
	}
	s := string(digits)
	if s == "-0" {
		return 0, newError("integer is '-0'")
	}
	neg := s[0] == '-'
	unsigned := s
	if neg {
		unsigned = s[1:]
	}
	if len(unsigned) == 0 {
		return 0, newError("invalid integer %q", s)
	}
	if unsigned[0] == '0' && len(unsigned) > 1 {
		return 0, newError("integer %q has leading zero", s)
	}
	var n int64
	for _, c := range []byte(unsigned) {
		if c < '0' || c > '9' {
			return 0, newError("non-digit in integer")
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

func (d *decoder) decodeString() (any, error) {
	start := d.pos
	for {
		c, err := d.peek()
		if err != nil {
			return nil, err
		}
		if c == ':' {
			break
		}
		if c < '0' || c > '9' {
			return nil, newError("non-digit in string length")
		}
		d.pos++
	}
	lengthDigits := d.buf[start:d.pos]
	if len(lengthDigits) > 1 && lengthDigits[0] == '0' {
		return nil, newError("string length has leading zero")
	}
	d.pos++ // consume ':'
	var length int
	for _, c := range lengthDigits {
		length = length*10 + int(c-'0')
	}
	if d.pos+length > len(d.buf) {
		return nil, newError("short input")
	}
	s := d.buf[d.pos : d.pos+length]
	d.pos += length
	return s, nil
}
