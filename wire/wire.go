// Package wire implements the Wayland wire protocol: argument primitives,
// payload encoding, message framing and the unix socket transport that carries
// file descriptors alongside message bytes. It is primarily intended for use by
// generated protocol code and by the connection machinery of package wayland.
package wire

import (
	"encoding/binary"
	"math"
)

// byteOrder of every word on the wire.
var byteOrder = binary.LittleEndian

// ObjectID identifies a live protocol object within one connection. The zero
// value encodes null on the wire and is never a valid id of a live object.
type ObjectID uint32

// Object id ranges.
const (
	DisplayID ObjectID = 1

	ClientIDMin ObjectID = 1
	ClientIDMax ObjectID = 0xFEFFFFFF
	ServerIDMin ObjectID = 0xFF000000
	ServerIDMax ObjectID = 0xFFFFFFFF
)

// NewObjectID returns the id for raw, or false if raw is zero.
func NewObjectID(raw uint32) (ObjectID, bool) {
	if raw == 0 {
		return 0, false
	}
	return ObjectID(raw), true
}

// Raw returns the id as transported on the wire.
func (id ObjectID) Raw() uint32 { return uint32(id) }

// IsServer reports whether id lies in the server-allocated range.
func (id ObjectID) IsServer() bool { return id >= ServerIDMin }

// Fixed is a signed 24.8 fixed-point number.
type Fixed int32

// FixedFromFloat converts v, rounding to the nearest representable value.
func FixedFromFloat(v float64) Fixed {
	return Fixed(math.Round(v * 256))
}

// Range of integers a Fixed represents exactly.
const (
	FixedMinInt = -1 << 23
	FixedMaxInt = 1<<23 - 1
)

// FixedFromInt converts v, clamping it to [FixedMinInt, FixedMaxInt].
func FixedFromInt(v int) Fixed {
	v = min(max(v, FixedMinInt), FixedMaxInt)
	return Fixed(v * 256)
}

// Float returns f as a float64. The conversion is exact.
func (f Fixed) Float() float64 {
	return float64(f) / 256
}

// Int returns the integer part of f, rounded toward negative infinity.
func (f Fixed) Int() int {
	return int(f >> 8)
}

// NewID is a new_id argument whose interface is not known from the message
// signature, so the payload carries the interface name and version too.
type NewID struct {
	Interface string
	Version   uint32
	ID        ObjectID
}
