package protocol

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripScalars(t *testing.T) {
	cases := []struct {
		name  string
		value Value
	}{
		{"null", Null()},
		{"bool_true", Bool(true)},
		{"bool_false", Bool(false)},
		{"byte", Byte(-5)},
		{"byte_min", Byte(math.MinInt8)},
		{"short", Short(-1234)},
		{"short_max", Short(math.MaxInt16)},
		{"int", Int(-70000)},
		{"int_max", Int(math.MaxInt32)},
		{"long", Long(-1 << 40)},
		{"long_min", Long(math.MinInt64)},
		{"float", Float(3.5)},
		{"double", Double(-2.25e100)},
		{"string", String("hello")},
		{"string_empty", String("")},
		{"string_utf8", String("héllo wörld ✓")},
		{"text", Text("a longer body of text")},
		{"text_empty", Text("")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := Encode(tc.value)
			decoded, consumed, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, len(encoded), consumed)
			assert.Equal(t, tc.value, decoded)
		})
	}
}

func TestRoundTripHomogeneousArrays(t *testing.T) {
	cases := []struct {
		name  string
		value Value
	}{
		{"bool_array", BoolArray([]bool{true, false, true})},
		{"bool_array_empty", BoolArray([]bool{})},
		{"byte_array", ByteArray([]int8{-128, 0, 127})},
		{"short_array", ShortArray([]int16{math.MinInt16, -1, math.MaxInt16})},
		{"int_array", IntArray([]int32{math.MinInt32, 0, math.MaxInt32})},
		{"long_array", LongArray([]int64{math.MinInt64, 42, math.MaxInt64})},
		{"float_array", FloatArray([]float32{-1.5, 0, 2.75})},
		{"double_array", DoubleArray([]float64{math.SmallestNonzeroFloat64, 1e308})},
		{"string_array", StringArray([]string{"a", "", "ccc"})},
		{"string_array_empty", StringArray([]string{})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := Encode(tc.value)
			decoded, consumed, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, len(encoded), consumed)
			assert.Equal(t, tc.value, decoded)
		})
	}
}

func TestRoundTripNestedContainers(t *testing.T) {
	inner := NewObject().
		PutString("name", "deep").
		PutInt("depth", 3)

	middle := NewArray().
		Add(inner.Value()).
		AddInt(7).
		Add(Null())

	outer := NewObject().
		PutString("kind", "nested").
		PutArray("items", middle).
		PutBool("ok", true)

	encoded := Encode(outer.Value())
	decoded, consumed, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), consumed)

	got, ok := decoded.Object()
	require.True(t, ok)

	// Key insertion order must survive the round trip.
	assert.Equal(t, []string{"kind", "items", "ok"}, got.Keys())

	items, ok := got.GetArray("items")
	require.True(t, ok)
	require.Equal(t, 3, items.Size())

	first, _ := items.Get(0)
	innerGot, ok := first.Object()
	require.True(t, ok)
	name, _ := innerGot.GetString("name")
	assert.Equal(t, "deep", name)
	depth, _ := innerGot.GetInt("depth")
	assert.Equal(t, int32(3), depth)

	third, _ := items.Get(2)
	assert.True(t, third.IsNull())
}

func TestDecodeEmptyContainers(t *testing.T) {
	obj := NewObject()
	decoded, _, err := Decode(Encode(obj.Value()))
	require.NoError(t, err)
	gotObj, ok := decoded.Object()
	require.True(t, ok)
	assert.Equal(t, 0, gotObj.Size())

	arr := NewArray()
	decoded, _, err = Decode(Encode(arr.Value()))
	require.NoError(t, err)
	gotArr, ok := decoded.Array()
	require.True(t, ok)
	assert.Equal(t, 0, gotArr.Size())
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"unknown_tag", []byte{0x7F}},
		{"truncated_int", []byte{byte(TypeInt), 0x00, 0x01}},
		{"truncated_string_body", []byte{byte(TypeString), 0x00, 0x05, 'a', 'b'}},
		{"negative_string_length", []byte{byte(TypeString), 0xFF, 0xFF}},
		{"negative_text_length", []byte{byte(TypeText), 0xFF, 0xFF, 0xFF, 0xFF}},
		{"negative_array_count", []byte{byte(TypeArray), 0x80, 0x00}},
		{"negative_object_count", []byte{byte(TypeObject), 0xFF, 0xFE}},
		{"object_missing_member", []byte{byte(TypeObject), 0x00, 0x01, 0x00, 0x01, 'k'}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Decode(tc.buf)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedWireData)
		})
	}
}

func TestDecodeDepthCap(t *testing.T) {
	// Arrays nested one past the cap: each level is tag + count(1).
	levels := MaxDecodeDepth + 2
	buf := make([]byte, 0, levels*3)
	for i := 0; i < levels; i++ {
		buf = append(buf, byte(TypeArray), 0x00, 0x01)
	}
	buf = append(buf, byte(TypeNull))

	_, _, err := Decode(buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedWireData)

	// At the cap it must still succeed.
	buf = buf[:0]
	for i := 0; i < MaxDecodeDepth; i++ {
		buf = append(buf, byte(TypeArray), 0x00, 0x01)
	}
	buf = append(buf, byte(TypeNull))
	_, _, err = Decode(buf)
	require.NoError(t, err)
}

func TestEncodeBigEndianLayout(t *testing.T) {
	encoded := Encode(Int(0x01020304))
	require.Equal(t, []byte{byte(TypeInt), 0x01, 0x02, 0x03, 0x04}, encoded)

	encoded = Encode(String("ab"))
	require.Equal(t, []byte{byte(TypeString), 0x00, 0x02, 'a', 'b'}, encoded)

	encoded = Encode(Long(1))
	require.Equal(t, byte(TypeLong), encoded[0])
	require.Equal(t, uint64(1), binary.BigEndian.Uint64(encoded[1:]))
}

func TestObjectDuplicateKeyKeepsPosition(t *testing.T) {
	obj := NewObject().
		PutInt("a", 1).
		PutInt("b", 2).
		PutInt("a", 3)

	assert.Equal(t, []string{"a", "b"}, obj.Keys())
	v, _ := obj.GetInt("a")
	assert.Equal(t, int32(3), v)
	assert.Equal(t, 2, obj.Size())
}

func TestDecodeReportsConsumedBytes(t *testing.T) {
	encoded := Encode(Short(9))
	// Append trailing bytes; Decode must stop at the value boundary.
	buf := append(encoded, 0xDE, 0xAD)

	v, consumed, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), consumed)
	got, _ := v.Short()
	assert.Equal(t, int16(9), got)
}

func TestEncodeOversizedArrayStaysConsistent(t *testing.T) {
	elems := make([]int32, math.MaxInt16+1)
	for i := range elems {
		elems[i] = int32(i)
	}

	encoded := Encode(IntArray(elems))

	// The count field and the emitted elements must agree; Decode has to
	// consume every byte with nothing orphaned after the value.
	v, consumed, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), consumed)

	got, ok := v.IntArrayValue()
	require.True(t, ok)
	assert.Len(t, got, math.MaxInt16)
	assert.Equal(t, int32(math.MaxInt16-1), got[len(got)-1])
}

func TestWriteUTFTruncatesOnRuneBoundary(t *testing.T) {
	// A 3-byte rune placed so the byte limit falls mid-rune.
	s := strings.Repeat("a", math.MaxInt16-1) + "€"
	encoded := Encode(String(s))

	v, consumed, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), consumed)

	got, _ := v.AsString()
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", math.MaxInt16-1), got)
}
