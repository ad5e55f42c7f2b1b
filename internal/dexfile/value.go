package dexfile

import (
	"bytes"
	"fmt"
	"io"

	"fortio.org/safecast"

	"classdex/internal/cst"
	"classdex/internal/leb128"
)

// AppendArray appends an encoded_array: a count followed by the values.
func AppendArray(out []byte, a *cst.Array, idx IndexResolver) ([]byte, error) {
	n, err := safecast.Conv[uint32](len(a.Values))
	if err != nil {
		return nil, err
	}
	out = leb128.AppendUnsigned(out, n)
	for _, v := range a.Values {
		if out, err = AppendValue(out, v, idx); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AppendValue appends the encoded_value form of c. Integers use the fewest
// bytes that sign- or zero-extend back to the value; floating point values
// drop low-order zero bytes.
func AppendValue(out []byte, c cst.Constant, idx IndexResolver) ([]byte, error) {
	switch v := c.(type) {
	case cst.Boolean:
		arg := byte(0)
		if v.Value {
			arg = 1
		}
		return append(out, arg<<5|valueBoolean), nil
	case cst.KnownNull:
		return append(out, valueNull), nil
	case cst.Byte:
		return appendSigned(out, valueByte, int64(v.Value)), nil
	case cst.Short:
		return appendSigned(out, valueShort, int64(v.Value)), nil
	case cst.Char:
		return appendUnsigned(out, valueChar, uint64(v.Value)), nil
	case cst.Integer:
		return appendSigned(out, valueInt, int64(v.Value)), nil
	case cst.Long:
		return appendSigned(out, valueLong, v.Value), nil
	case cst.Float:
		return appendRightZeroExtended(out, valueFloat, uint64(v.RawBits)<<32), nil
	case cst.Double:
		return appendRightZeroExtended(out, valueDouble, v.RawBits), nil
	case cst.Array:
		return AppendArray(append(out, valueArray), &v, idx)
	case cst.AnnotationValue:
		return nil, fmt.Errorf("annotation values are not encoded")
	}
	typ, err := refValueType(c)
	if err != nil {
		return nil, err
	}
	n, err := idx.IndexOf(c)
	if err != nil {
		return nil, err
	}
	u, err := safecast.Conv[uint64](n)
	if err != nil {
		return nil, err
	}
	return appendUnsigned(out, typ, u), nil
}

func refValueType(c cst.Constant) (byte, error) {
	switch c.(type) {
	case cst.String:
		return valueString, nil
	case cst.Type:
		return valueType, nil
	case cst.FieldRef:
		return valueField, nil
	case cst.MethodRef, cst.InterfaceMethodRef:
		return valueMethod, nil
	case cst.EnumRef:
		return valueEnum, nil
	}
	return 0, fmt.Errorf("cannot encode %s constant as a value", c.Kind())
}

func signedWidth(v int64) int {
	for n := 1; n < 8; n++ {
		shift := 64 - 8*n
		if (v<<shift)>>shift == v {
			return n
		}
	}
	return 8
}

func unsignedWidth(v uint64) int {
	n := 1
	for n < 8 && v>>(8*n) != 0 {
		n++
	}
	return n
}

func appendLE(out []byte, v uint64, n int) []byte {
	for range n {
		out = append(out, byte(v))
		v >>= 8
	}
	return out
}

func header(typ byte, n int) byte { return byte(n-1)<<5 | typ } //nolint:gosec // n is 1..8

func appendSigned(out []byte, typ byte, v int64) []byte {
	n := signedWidth(v)
	return appendLE(append(out, header(typ, n)), uint64(v), n) //nolint:gosec // two's complement bytes
}

func appendUnsigned(out []byte, typ byte, v uint64) []byte {
	n := unsignedWidth(v)
	return appendLE(append(out, header(typ, n)), v, n)
}

// appendRightZeroExtended writes the high-order bytes of a left-aligned
// 64-bit pattern.
func appendRightZeroExtended(out []byte, typ byte, v uint64) []byte {
	n := 8
	for n > 1 && v&0xff == 0 {
		v >>= 8
		n--
	}
	return appendLE(append(out, header(typ, n)), v, n)
}

// valueDecoder turns encoded values back into constants using the tables of
// a decoded container.
type valueDecoder struct {
	r *bytes.Reader
	d *Dex
}

func (vd *valueDecoder) array() (*cst.Array, error) {
	n, err := leb128.ReadUnsigned(vd.r)
	if err != nil {
		return nil, err
	}
	if int(n) > vd.r.Len() {
		return nil, fmt.Errorf("encoded array of %d values overruns its data", n)
	}
	a := &cst.Array{Values: make([]cst.Constant, 0, n)}
	for range n {
		v, err := vd.value()
		if err != nil {
			return nil, err
		}
		a.Values = append(a.Values, v)
	}
	return a, nil
}

func (vd *valueDecoder) value() (cst.Constant, error) {
	h, err := vd.r.ReadByte()
	if err != nil {
		return nil, err
	}
	typ, arg := h&0x1f, int(h>>5)
	switch typ {
	case valueBoolean:
		return cst.Boolean{Value: arg != 0}, nil
	case valueNull:
		return cst.KnownNull{}, nil
	case valueArray:
		a, err := vd.array()
		if err != nil {
			return nil, err
		}
		return *a, nil
	}
	raw, err := vd.bytes(arg + 1)
	if err != nil {
		return nil, err
	}
	switch typ {
	case valueByte:
		return cst.Byte{Value: int8(signExtend(raw, arg+1))}, nil //nolint:gosec // one byte
	case valueShort:
		return cst.Short{Value: int16(signExtend(raw, arg+1))}, nil //nolint:gosec // at most two bytes
	case valueChar:
		return cst.Char{Value: uint16(raw)}, nil //nolint:gosec // at most two bytes
	case valueInt:
		return cst.Integer{Value: int32(signExtend(raw, arg+1))}, nil //nolint:gosec // at most four bytes
	case valueLong:
		return cst.Long{Value: signExtend(raw, arg+1)}, nil
	case valueFloat:
		return cst.Float{RawBits: uint32(raw << (8 * (3 - arg)))}, nil //nolint:gosec // left-aligned four bytes
	case valueDouble:
		return cst.Double{RawBits: raw << (8 * (7 - arg))}, nil
	}
	i := int(raw) //nolint:gosec // table index
	switch typ {
	case valueString:
		if i < len(vd.d.Strings) {
			return cst.String{Value: vd.d.Strings[i]}, nil
		}
	case valueType:
		if i < len(vd.d.Types) {
			return vd.d.Types[i], nil
		}
	case valueField:
		if i < len(vd.d.Fields) {
			return vd.d.Fields[i], nil
		}
	case valueMethod:
		if i < len(vd.d.Methods) {
			return vd.d.Methods[i], nil
		}
	case valueEnum:
		if i < len(vd.d.Fields) {
			return cst.EnumRef{NAT: vd.d.Fields[i].NAT}, nil
		}
	default:
		return nil, fmt.Errorf("unsupported encoded value type %#02x", typ)
	}
	return nil, fmt.Errorf("encoded value index %d out of range", i)
}

func (vd *valueDecoder) bytes(n int) (uint64, error) {
	var v uint64
	for i := range n {
		b, err := vd.r.ReadByte()
		if err != nil {
			return 0, io.ErrUnexpectedEOF
		}
		v |= uint64(b) << (8 * i)
	}
	return v, nil
}

func signExtend(v uint64, n int) int64 {
	shift := 64 - 8*n
	return int64(v<<shift) >> shift //nolint:gosec // reinterpreting the bit pattern
}
