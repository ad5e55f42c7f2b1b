// Package mutf8 converts between Go strings and the modified UTF-8 form used by
// class files and the output container: NUL is written as the two-byte sequence
// C0 80 and supplementary characters are written as surrogate pairs, three
// bytes per surrogate. Lone surrogates survive a round trip as three raw bytes.
package mutf8

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/transform"
)

// ErrInvalid reports a byte sequence that is not well-formed modified UTF-8.
var ErrInvalid = errors.New("mutf8: invalid encoding")

// Decoder transforms modified UTF-8 into UTF-8.
type Decoder struct{ transform.NopResetter }

// Encoder transforms UTF-8 into modified UTF-8.
type Encoder struct{ transform.NopResetter }

func isCont(b byte) bool { return b&0xc0 == 0x80 }

func isSurrogateLead(src []byte) bool {
	return len(src) >= 2 && src[0] == 0xed && src[1] >= 0xa0
}

func decode3(src []byte) rune {
	return rune(src[0]&0x0f)<<12 | rune(src[1]&0x3f)<<6 | rune(src[2]&0x3f)
}

// Transform implements transform.Transformer.
func (Decoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		b := src[nSrc]
		switch {
		case b == 0:
			return nDst, nSrc, fmt.Errorf("%w: bad byte 00 at offset %08x", ErrInvalid, nSrc)
		case b < 0x80:
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = b
			nDst++
			nSrc++
		case b&0xe0 == 0xc0:
			if nSrc+2 > len(src) {
				if !atEOF {
					return nDst, nSrc, transform.ErrShortSrc
				}
				return nDst, nSrc, fmt.Errorf("%w: truncated sequence at offset %08x", ErrInvalid, nSrc)
			}
			if !isCont(src[nSrc+1]) {
				return nDst, nSrc, fmt.Errorf("%w: bad continuation at offset %08x", ErrInvalid, nSrc+1)
			}
			r := rune(b&0x1f)<<6 | rune(src[nSrc+1]&0x3f)
			if r != 0 && r < 0x80 {
				return nDst, nSrc, fmt.Errorf("%w: overlong sequence at offset %08x", ErrInvalid, nSrc)
			}
			if nDst+utf8.RuneLen(r) > len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			nDst += utf8.EncodeRune(dst[nDst:], r)
			nSrc += 2
		case b&0xf0 == 0xe0:
			if nSrc+3 > len(src) {
				if !atEOF {
					return nDst, nSrc, transform.ErrShortSrc
				}
				return nDst, nSrc, fmt.Errorf("%w: truncated sequence at offset %08x", ErrInvalid, nSrc)
			}
			if !isCont(src[nSrc+1]) || !isCont(src[nSrc+2]) {
				return nDst, nSrc, fmt.Errorf("%w: bad continuation at offset %08x", ErrInvalid, nSrc+1)
			}
			r := decode3(src[nSrc:])
			if r < 0x800 {
				return nDst, nSrc, fmt.Errorf("%w: overlong sequence at offset %08x", ErrInvalid, nSrc)
			}
			if r >= 0xd800 && r <= 0xdbff {
				rest := src[nSrc+3:]
				if len(rest) < 3 && !atEOF && (len(rest) == 0 || rest[0] == 0xed) {
					return nDst, nSrc, transform.ErrShortSrc
				}
				if len(rest) >= 3 && isSurrogateLead(rest) && isCont(rest[1]) && isCont(rest[2]) {
					lo := decode3(rest)
					if lo >= 0xdc00 && lo <= 0xdfff {
						full := 0x10000 + (r-0xd800)<<10 + (lo - 0xdc00)
						if nDst+4 > len(dst) {
							return nDst, nSrc, transform.ErrShortDst
						}
						nDst += utf8.EncodeRune(dst[nDst:], full)
						nSrc += 6
						continue
					}
				}
			}
			if nDst+3 > len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			// Surrogates are copied raw so they survive re-encoding.
			nDst += copy(dst[nDst:], src[nSrc:nSrc+3])
			nSrc += 3
		default:
			return nDst, nSrc, fmt.Errorf("%w: bad byte %02x at offset %08x", ErrInvalid, b, nSrc)
		}
	}
	return nDst, nSrc, nil
}

func surrogateBytes(dst []byte, c rune) {
	dst[0] = 0xe0 | byte(c>>12)
	dst[1] = 0x80 | byte((c>>6)&0x3f)
	dst[2] = 0x80 | byte(c&0x3f)
}

// Transform implements transform.Transformer.
func (Encoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		b := src[nSrc]
		if b == 0 {
			if nDst+2 > len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst], dst[nDst+1] = 0xc0, 0x80
			nDst += 2
			nSrc++
			continue
		}
		if b < utf8.RuneSelf {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = b
			nDst++
			nSrc++
			continue
		}
		if isSurrogateLead(src[nSrc:]) {
			if nSrc+3 > len(src) {
				if !atEOF {
					return nDst, nSrc, transform.ErrShortSrc
				}
				return nDst, nSrc, fmt.Errorf("%w: truncated surrogate at offset %08x", ErrInvalid, nSrc)
			}
			if nDst+3 > len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			nDst += copy(dst[nDst:], src[nSrc:nSrc+3])
			nSrc += 3
			continue
		}
		if !utf8.FullRune(src[nSrc:]) {
			if !atEOF {
				return nDst, nSrc, transform.ErrShortSrc
			}
			return nDst, nSrc, fmt.Errorf("%w: truncated rune at offset %08x", ErrInvalid, nSrc)
		}
		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError && size == 1 {
			return nDst, nSrc, fmt.Errorf("%w: bad byte %02x at offset %08x", ErrInvalid, b, nSrc)
		}
		if r < 0x10000 {
			if nDst+size > len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			nDst += copy(dst[nDst:], src[nSrc:nSrc+size])
			nSrc += size
			continue
		}
		if nDst+6 > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		r -= 0x10000
		surrogateBytes(dst[nDst:], 0xd800+(r>>10))
		surrogateBytes(dst[nDst+3:], 0xdc00+(r&0x3ff))
		nDst += 6
		nSrc += size
	}
	return nDst, nSrc, nil
}

// Decode converts modified UTF-8 bytes into a string.
func Decode(b []byte) (string, error) {
	out, _, err := transform.Bytes(Decoder{}, b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Encode converts s into modified UTF-8.
func Encode(s string) ([]byte, error) {
	out, _, err := transform.Bytes(Encoder{}, []byte(s))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// units calls fn with each UTF-16 code unit of s.
func units(s string, fn func(u uint16) bool) {
	b := []byte(s)
	for i := 0; i < len(b); {
		if isSurrogateLead(b[i:]) && i+3 <= len(b) {
			if !fn(uint16(decode3(b[i:]))) {
				return
			}
			i += 3
			continue
		}
		r, size := utf8.DecodeRune(b[i:])
		i += size
		if r >= 0x10000 {
			r -= 0x10000
			if !fn(uint16(0xd800 + (r >> 10))) {
				return
			}
			if !fn(uint16(0xdc00 + (r & 0x3ff))) {
				return
			}
			continue
		}
		if !fn(uint16(r)) {
			return
		}
	}
}

// UTF16Len returns the number of UTF-16 code units in s.
func UTF16Len(s string) int {
	n := 0
	units(s, func(uint16) bool { n++; return true })
	return n
}

// CompareUTF16 orders strings by their UTF-16 code units, which is the order
// string tables in the output container must follow.
func CompareUTF16(a, b string) int {
	var ua, ub []uint16
	units(a, func(u uint16) bool { ua = append(ua, u); return true })
	units(b, func(u uint16) bool { ub = append(ub, u); return true })
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ua) < len(ub):
		return -1
	case len(ua) > len(ub):
		return 1
	}
	return 0
}
