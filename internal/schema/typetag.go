// Package schema holds the primitive type vocabulary used for inference:
// type tags, destination dialects, the promotion lattice, value
// classification and column type guessing.
package schema

import (
	"hermannm.dev/enumnames"
)

// TypeTag is the primitive type of a single observed value or of a column.
type TypeTag uint8

const (
	Null TypeTag = iota + 1
	Integer
	Float
	Boolean
	Text
	DateTime
	Nested
)

var typeTagNames = enumnames.NewMap(map[TypeTag]string{
	Null:     "NULL",
	Integer:  "INTEGER",
	Float:    "FLOAT",
	Boolean:  "BOOLEAN",
	Text:     "TEXT",
	DateTime: "DATETIME",
	Nested:   "NESTED",
})

// AllTags lists every tag in declaration order.
var AllTags = []TypeTag{Null, Integer, Float, Boolean, Text, DateTime, Nested}

func (t TypeTag) IsValid() bool {
	return typeTagNames.ContainsEnumValue(t)
}

func (t TypeTag) String() string {
	return typeTagNames.GetNameOrFallback(t, "INVALID_TYPE_TAG")
}

func (t TypeTag) MarshalJSON() ([]byte, error) {
	return typeTagNames.MarshalToNameJSON(t)
}

func (t *TypeTag) UnmarshalJSON(bytes []byte) error {
	return typeTagNames.UnmarshalFromNameJSON(bytes, t)
}
