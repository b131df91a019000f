package protocol

import (
	"fmt"
	"math"
)

// MaxDecodeDepth bounds container recursion while decoding. Adversarial
// input can nest containers up to the buffer size; without a cap that
// exhausts the stack before it exhausts the input.
const MaxDecodeDepth = 64

// Encode serializes a value to its wire representation: tag byte followed
// by the tag-specific payload. Containers are encoded recursively.
func Encode(v Value) []byte {
	b := NewBuilder()
	EncodeTo(b, v)
	out := make([]byte, b.Len())
	copy(out, b.Bytes())
	return out
}

// EncodeTo appends the wire representation of v to b.
func EncodeTo(b *Builder, v Value) {
	b.WriteUint8(byte(v.Type))

	switch v.Type {
	case TypeNull:
		// Tag only.
	case TypeBool:
		val, _ := v.Bool()
		b.WriteBool(val)
	case TypeByte:
		val, _ := v.Byte()
		b.WriteInt8(val)
	case TypeShort:
		val, _ := v.Short()
		b.WriteInt16(val)
	case TypeInt:
		val, _ := v.Int()
		b.WriteInt32(val)
	case TypeLong:
		val, _ := v.Long()
		b.WriteInt64(val)
	case TypeFloat:
		val, _ := v.Float()
		b.WriteFloat32(val)
	case TypeDouble:
		val, _ := v.Double()
		b.WriteFloat64(val)
	case TypeString:
		val, _ := v.AsString()
		b.WriteUTF(val)
	case TypeText:
		val, _ := v.AsString()
		b.WriteText(val)
	case TypeBoolArray:
		arr, _ := v.BoolArrayValue()
		arr = capElements(arr)
		b.WriteInt16(int16(len(arr)))
		for _, e := range arr {
			b.WriteBool(e)
		}
	case TypeByteArray:
		arr, _ := v.ByteArrayValue()
		arr = capElements(arr)
		b.WriteInt16(int16(len(arr)))
		for _, e := range arr {
			b.WriteInt8(e)
		}
	case TypeShortArray:
		arr, _ := v.ShortArrayValue()
		arr = capElements(arr)
		b.WriteInt16(int16(len(arr)))
		for _, e := range arr {
			b.WriteInt16(e)
		}
	case TypeIntArray:
		arr, _ := v.IntArrayValue()
		arr = capElements(arr)
		b.WriteInt16(int16(len(arr)))
		for _, e := range arr {
			b.WriteInt32(e)
		}
	case TypeLongArray:
		arr, _ := v.LongArrayValue()
		arr = capElements(arr)
		b.WriteInt16(int16(len(arr)))
		for _, e := range arr {
			b.WriteInt64(e)
		}
	case TypeFloatArray:
		arr, _ := v.FloatArrayValue()
		arr = capElements(arr)
		b.WriteInt16(int16(len(arr)))
		for _, e := range arr {
			b.WriteFloat32(e)
		}
	case TypeDoubleArray:
		arr, _ := v.DoubleArrayValue()
		arr = capElements(arr)
		b.WriteInt16(int16(len(arr)))
		for _, e := range arr {
			b.WriteFloat64(e)
		}
	case TypeStringArray:
		arr, _ := v.StringArrayValue()
		arr = capElements(arr)
		b.WriteInt16(int16(len(arr)))
		for _, e := range arr {
			b.WriteUTF(e)
		}
	case TypeArray:
		arr, ok := v.Array()
		if !ok || arr == nil {
			arr = NewArray()
		}
		items := capElements(arr.Items())
		b.WriteInt16(int16(len(items)))
		for _, e := range items {
			EncodeTo(b, e)
		}
	case TypeObject:
		obj, ok := v.Object()
		if !ok || obj == nil {
			obj = NewObject()
		}
		keys := capElements(obj.Keys())
		b.WriteInt16(int16(len(keys)))
		for _, key := range keys {
			member, _ := obj.Get(key)
			b.WriteUTF(key)
			EncodeTo(b, member)
		}
	}
}

// capElements truncates a slice to the signed 16-bit count limit. The
// declared count must agree with the elements actually emitted; a clamped
// count over a full element list would leave orphan bytes after the value.
func capElements[T any](arr []T) []T {
	if len(arr) > math.MaxInt16 {
		return arr[:math.MaxInt16]
	}
	return arr
}

// Decode deserializes one value from the front of buf and returns it with
// the number of bytes consumed. Fails with ErrMalformedWireData on
// truncated input, negative counts, or unknown tags.
func Decode(buf []byte) (Value, int, error) {
	c := NewCursor(buf)
	v, err := DecodeFrom(c)
	if err != nil {
		return Value{}, 0, err
	}
	return v, c.Pos(), nil
}

// DecodeFrom deserializes one value from the cursor's current position.
func DecodeFrom(c *Cursor) (Value, error) {
	return decodeValue(c, 0)
}

func decodeValue(c *Cursor, depth int) (Value, error) {
	if depth > MaxDecodeDepth {
		return Value{}, fmt.Errorf("%w: container nesting exceeds %d levels",
			ErrMalformedWireData, MaxDecodeDepth)
	}

	tag, err := c.ReadUint8()
	if err != nil {
		return Value{}, err
	}

	t := TypeID(tag)
	switch t {
	case TypeNull:
		return Null(), nil
	case TypeBool:
		v, err := c.ReadBool()
		return Bool(v), err
	case TypeByte:
		v, err := c.ReadInt8()
		return Byte(v), err
	case TypeShort:
		v, err := c.ReadInt16()
		return Short(v), err
	case TypeInt:
		v, err := c.ReadInt32()
		return Int(v), err
	case TypeLong:
		v, err := c.ReadInt64()
		return Long(v), err
	case TypeFloat:
		v, err := c.ReadFloat32()
		return Float(v), err
	case TypeDouble:
		v, err := c.ReadFloat64()
		return Double(v), err
	case TypeString:
		v, err := c.ReadUTF()
		return String(v), err
	case TypeText:
		v, err := c.ReadText()
		return Text(v), err
	case TypeBoolArray:
		n, err := readCount(c)
		if err != nil {
			return Value{}, err
		}
		arr := make([]bool, n)
		for i := range arr {
			if arr[i], err = c.ReadBool(); err != nil {
				return Value{}, err
			}
		}
		return BoolArray(arr), nil
	case TypeByteArray:
		n, err := readCount(c)
		if err != nil {
			return Value{}, err
		}
		arr := make([]int8, n)
		for i := range arr {
			if arr[i], err = c.ReadInt8(); err != nil {
				return Value{}, err
			}
		}
		return ByteArray(arr), nil
	case TypeShortArray:
		n, err := readCount(c)
		if err != nil {
			return Value{}, err
		}
		arr := make([]int16, n)
		for i := range arr {
			if arr[i], err = c.ReadInt16(); err != nil {
				return Value{}, err
			}
		}
		return ShortArray(arr), nil
	case TypeIntArray:
		n, err := readCount(c)
		if err != nil {
			return Value{}, err
		}
		arr := make([]int32, n)
		for i := range arr {
			if arr[i], err = c.ReadInt32(); err != nil {
				return Value{}, err
			}
		}
		return IntArray(arr), nil
	case TypeLongArray:
		n, err := readCount(c)
		if err != nil {
			return Value{}, err
		}
		arr := make([]int64, n)
		for i := range arr {
			if arr[i], err = c.ReadInt64(); err != nil {
				return Value{}, err
			}
		}
		return LongArray(arr), nil
	case TypeFloatArray:
		n, err := readCount(c)
		if err != nil {
			return Value{}, err
		}
		arr := make([]float32, n)
		for i := range arr {
			if arr[i], err = c.ReadFloat32(); err != nil {
				return Value{}, err
			}
		}
		return FloatArray(arr), nil
	case TypeDoubleArray:
		n, err := readCount(c)
		if err != nil {
			return Value{}, err
		}
		arr := make([]float64, n)
		for i := range arr {
			if arr[i], err = c.ReadFloat64(); err != nil {
				return Value{}, err
			}
		}
		return DoubleArray(arr), nil
	case TypeStringArray:
		n, err := readCount(c)
		if err != nil {
			return Value{}, err
		}
		arr := make([]string, n)
		for i := range arr {
			if arr[i], err = c.ReadUTF(); err != nil {
				return Value{}, err
			}
		}
		return StringArray(arr), nil
	case TypeArray:
		n, err := readCount(c)
		if err != nil {
			return Value{}, err
		}
		arr := NewArray()
		for i := 0; i < n; i++ {
			elem, err := decodeValue(c, depth+1)
			if err != nil {
				return Value{}, err
			}
			arr.Add(elem)
		}
		return arr.Value(), nil
	case TypeObject:
		n, err := readCount(c)
		if err != nil {
			return Value{}, err
		}
		obj := NewObject()
		for i := 0; i < n; i++ {
			key, err := c.ReadUTF()
			if err != nil {
				return Value{}, err
			}
			member, err := decodeValue(c, depth+1)
			if err != nil {
				return Value{}, err
			}
			obj.Put(key, member)
		}
		return obj.Value(), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown type tag 0x%02X at offset %d",
			ErrMalformedWireData, tag, c.Pos()-1)
	}
}

// readCount reads a signed 16-bit element count and rejects negatives.
func readCount(c *Cursor) (int, error) {
	n, err := c.ReadInt16()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative element count %d at offset %d",
			ErrMalformedWireData, n, c.Pos()-2)
	}
	return int(n), nil
}
