// Package protocol implements the SFS2X-compatible binary wire format:
// the tagged typed-value codec, the message framer, and the bounds-checked
// cursor they are built on. All multi-byte integers and floats are big-endian
// regardless of host architecture; container element counts and string length
// prefixes are signed and must never be negative on the wire.
package protocol

// TypeID is the tag byte preceding every value on the wire.
type TypeID byte

const (
	TypeNull           TypeID = 0
	TypeBool           TypeID = 1
	TypeByte           TypeID = 2 // int8
	TypeShort          TypeID = 3 // int16
	TypeInt            TypeID = 4 // int32
	TypeLong           TypeID = 5 // int64
	TypeFloat          TypeID = 6
	TypeDouble         TypeID = 7
	TypeString         TypeID = 8 // UTF-8, 16-bit length prefix (<=32KB)
	TypeBoolArray      TypeID = 9
	TypeByteArray      TypeID = 10
	TypeShortArray     TypeID = 11
	TypeIntArray       TypeID = 12
	TypeLongArray      TypeID = 13
	TypeFloatArray     TypeID = 14
	TypeDoubleArray    TypeID = 15
	TypeStringArray    TypeID = 16
	TypeArray          TypeID = 17 // heterogeneous, recursive
	TypeObject         TypeID = 18 // ordered key/value pairs, recursive
	TypeText           TypeID = 19 // UTF-8, 32-bit length prefix
)

// typeStrings maps TypeID values to their wire-format names.
var typeStrings = map[TypeID]string{
	TypeNull:        "null",
	TypeBool:        "bool",
	TypeByte:        "byte",
	TypeShort:       "short",
	TypeInt:         "int",
	TypeLong:        "long",
	TypeFloat:       "float",
	TypeDouble:      "double",
	TypeString:      "utf_string",
	TypeBoolArray:   "bool_array",
	TypeByteArray:   "byte_array",
	TypeShortArray:  "short_array",
	TypeIntArray:    "int_array",
	TypeLongArray:   "long_array",
	TypeFloatArray:  "float_array",
	TypeDoubleArray: "double_array",
	TypeStringArray: "utf_string_array",
	TypeArray:       "array",
	TypeObject:      "object",
	TypeText:        "text",
}

// String returns the wire-format name of the type tag.
func (t TypeID) String() string {
	if s, ok := typeStrings[t]; ok {
		return s
	}
	return "unknown"
}

// Valid reports whether t is a recognized type tag.
func (t TypeID) Valid() bool {
	_, ok := typeStrings[t]
	return ok
}
