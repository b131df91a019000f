package protocol

import "fmt"

// Value is one wire-format datum: a type tag plus the decoded Go
// representation. The concrete type held in data is fixed per tag:
//
//	TypeNull        nil
//	TypeBool        bool
//	TypeByte        int8
//	TypeShort       int16
//	TypeInt         int32
//	TypeLong        int64
//	TypeFloat       float32
//	TypeDouble      float64
//	TypeString/Text string
//	Type*Array      []T of the element type above
//	TypeStringArray []string
//	TypeArray       *Array
//	TypeObject      *Object
type Value struct {
	Type TypeID
	data interface{}
}

// Null returns the null value.
func Null() Value {
	return Value{Type: TypeNull}
}

// Bool wraps a bool.
func Bool(v bool) Value { return Value{Type: TypeBool, data: v} }

// Byte wraps a signed byte.
func Byte(v int8) Value { return Value{Type: TypeByte, data: v} }

// Short wraps an int16.
func Short(v int16) Value { return Value{Type: TypeShort, data: v} }

// Int wraps an int32.
func Int(v int32) Value { return Value{Type: TypeInt, data: v} }

// Long wraps an int64.
func Long(v int64) Value { return Value{Type: TypeLong, data: v} }

// Float wraps a float32.
func Float(v float32) Value { return Value{Type: TypeFloat, data: v} }

// Double wraps a float64.
func Double(v float64) Value { return Value{Type: TypeDouble, data: v} }

// String wraps a short (<=32KB) UTF-8 string.
func String(v string) Value { return Value{Type: TypeString, data: v} }

// Text wraps a long UTF-8 string with a 32-bit length prefix.
func Text(v string) Value { return Value{Type: TypeText, data: v} }

// BoolArray wraps a homogeneous bool array.
func BoolArray(v []bool) Value { return Value{Type: TypeBoolArray, data: v} }

// ByteArray wraps a homogeneous signed-byte array.
func ByteArray(v []int8) Value { return Value{Type: TypeByteArray, data: v} }

// ShortArray wraps a homogeneous int16 array.
func ShortArray(v []int16) Value { return Value{Type: TypeShortArray, data: v} }

// IntArray wraps a homogeneous int32 array.
func IntArray(v []int32) Value { return Value{Type: TypeIntArray, data: v} }

// LongArray wraps a homogeneous int64 array.
func LongArray(v []int64) Value { return Value{Type: TypeLongArray, data: v} }

// FloatArray wraps a homogeneous float32 array.
func FloatArray(v []float32) Value { return Value{Type: TypeFloatArray, data: v} }

// DoubleArray wraps a homogeneous float64 array.
func DoubleArray(v []float64) Value { return Value{Type: TypeDoubleArray, data: v} }

// StringArray wraps a homogeneous string array.
func StringArray(v []string) Value { return Value{Type: TypeStringArray, data: v} }

// Value wraps an Array.
func (a *Array) Value() Value { return Value{Type: TypeArray, data: a} }

// Value wraps an Object.
func (o *Object) Value() Value { return Value{Type: TypeObject, data: o} }

// IsNull reports whether the value carries the null tag.
func (v Value) IsNull() bool { return v.Type == TypeNull }

// Bool returns the held bool.
func (v Value) Bool() (bool, bool) {
	b, ok := v.data.(bool)
	return b, ok && v.Type == TypeBool
}

// Byte returns the held int8.
func (v Value) Byte() (int8, bool) {
	b, ok := v.data.(int8)
	return b, ok && v.Type == TypeByte
}

// Short returns the held int16.
func (v Value) Short() (int16, bool) {
	s, ok := v.data.(int16)
	return s, ok && v.Type == TypeShort
}

// Int returns the held int32.
func (v Value) Int() (int32, bool) {
	i, ok := v.data.(int32)
	return i, ok && v.Type == TypeInt
}

// Long returns the held int64.
func (v Value) Long() (int64, bool) {
	l, ok := v.data.(int64)
	return l, ok && v.Type == TypeLong
}

// Float returns the held float32.
func (v Value) Float() (float32, bool) {
	f, ok := v.data.(float32)
	return f, ok && v.Type == TypeFloat
}

// Double returns the held float64.
func (v Value) Double() (float64, bool) {
	d, ok := v.data.(float64)
	return d, ok && v.Type == TypeDouble
}

// AsString returns the held string for both utf_string and text values.
func (v Value) AsString() (string, bool) {
	s, ok := v.data.(string)
	return s, ok && (v.Type == TypeString || v.Type == TypeText)
}

// BoolArrayValue returns the held bool slice.
func (v Value) BoolArrayValue() ([]bool, bool) {
	a, ok := v.data.([]bool)
	return a, ok
}

// ByteArrayValue returns the held int8 slice.
func (v Value) ByteArrayValue() ([]int8, bool) {
	a, ok := v.data.([]int8)
	return a, ok
}

// ShortArrayValue returns the held int16 slice.
func (v Value) ShortArrayValue() ([]int16, bool) {
	a, ok := v.data.([]int16)
	return a, ok
}

// IntArrayValue returns the held int32 slice.
func (v Value) IntArrayValue() ([]int32, bool) {
	a, ok := v.data.([]int32)
	return a, ok
}

// LongArrayValue returns the held int64 slice.
func (v Value) LongArrayValue() ([]int64, bool) {
	a, ok := v.data.([]int64)
	return a, ok
}

// FloatArrayValue returns the held float32 slice.
func (v Value) FloatArrayValue() ([]float32, bool) {
	a, ok := v.data.([]float32)
	return a, ok
}

// DoubleArrayValue returns the held float64 slice.
func (v Value) DoubleArrayValue() ([]float64, bool) {
	a, ok := v.data.([]float64)
	return a, ok
}

// StringArrayValue returns the held string slice.
func (v Value) StringArrayValue() ([]string, bool) {
	a, ok := v.data.([]string)
	return a, ok
}

// Array returns the held *Array.
func (v Value) Array() (*Array, bool) {
	a, ok := v.data.(*Array)
	return a, ok
}

// Object returns the held *Object.
func (v Value) Object() (*Object, bool) {
	o, ok := v.data.(*Object)
	return o, ok
}

// GoString renders the value for debugging output.
func (v Value) GoString() string {
	return fmt.Sprintf("%s(%v)", v.Type, v.data)
}

// Object is an ordered collection of unique string keys mapped to values.
// Insertion order is preserved for wire compatibility; lookups are by key.
type Object struct {
	keys   []string
	values map[string]Value
}

// NewObject creates an empty Object.
func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Put sets key to v. A repeated key keeps its original position.
func (o *Object) Put(key string, v Value) *Object {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
	return o
}

// PutBool sets a bool member.
func (o *Object) PutBool(key string, v bool) *Object { return o.Put(key, Bool(v)) }

// PutInt sets an int32 member.
func (o *Object) PutInt(key string, v int32) *Object { return o.Put(key, Int(v)) }

// PutLong sets an int64 member.
func (o *Object) PutLong(key string, v int64) *Object { return o.Put(key, Long(v)) }

// PutString sets a utf_string member.
func (o *Object) PutString(key, v string) *Object { return o.Put(key, String(v)) }

// PutObject sets a nested object member.
func (o *Object) PutObject(key string, v *Object) *Object { return o.Put(key, v.Value()) }

// PutArray sets a nested array member.
func (o *Object) PutArray(key string, v *Array) *Object { return o.Put(key, v.Value()) }

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.values[key]
	return v, ok
}

// GetBool returns a bool member.
func (o *Object) GetBool(key string) (bool, bool) {
	v, ok := o.values[key]
	if !ok {
		return false, false
	}
	return v.Bool()
}

// GetInt returns an int32 member.
func (o *Object) GetInt(key string) (int32, bool) {
	v, ok := o.values[key]
	if !ok {
		return 0, false
	}
	return v.Int()
}

// GetLong returns an int64 member.
func (o *Object) GetLong(key string) (int64, bool) {
	v, ok := o.values[key]
	if !ok {
		return 0, false
	}
	return v.Long()
}

// GetString returns a string member.
func (o *Object) GetString(key string) (string, bool) {
	v, ok := o.values[key]
	if !ok {
		return "", false
	}
	return v.AsString()
}

// GetObject returns a nested object member.
func (o *Object) GetObject(key string) (*Object, bool) {
	v, ok := o.values[key]
	if !ok {
		return nil, false
	}
	return v.Object()
}

// GetArray returns a nested array member.
func (o *Object) GetArray(key string) (*Array, bool) {
	v, ok := o.values[key]
	if !ok {
		return nil, false
	}
	return v.Array()
}

// Keys returns the keys in insertion order. The slice is owned by the object.
func (o *Object) Keys() []string {
	return o.keys
}

// Size returns the number of members.
func (o *Object) Size() int {
	return len(o.keys)
}

// Array is an ordered, 0-indexed sequence of values. Elements may be of
// mixed types; each carries its own tag on the wire.
type Array struct {
	items []Value
}

// NewArray creates an empty Array.
func NewArray() *Array {
	return &Array{}
}

// Add appends v.
func (a *Array) Add(v Value) *Array {
	a.items = append(a.items, v)
	return a
}

// AddBool appends a bool element.
func (a *Array) AddBool(v bool) *Array { return a.Add(Bool(v)) }

// AddInt appends an int32 element.
func (a *Array) AddInt(v int32) *Array { return a.Add(Int(v)) }

// AddString appends a utf_string element.
func (a *Array) AddString(v string) *Array { return a.Add(String(v)) }

// Get returns the element at index i.
func (a *Array) Get(i int) (Value, bool) {
	if i < 0 || i >= len(a.items) {
		return Value{}, false
	}
	return a.items[i], true
}

// Size returns the number of elements.
func (a *Array) Size() int {
	return len(a.items)
}

// Items returns the backing slice. The slice is owned by the array.
func (a *Array) Items() []Value {
	return a.items
}
