package uuid

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// UUIDSize is the size of a UUID in bytes.
	UUIDSize = 16
)

// UUID represents a 128-bit universally unique identifier as specified in RFC 4122.
type UUID struct {
	bytes [UUIDSize]byte
}

// NewV7 generates a new UUID version 7: a time-ordered UUID combining a
// millisecond timestamp with random data. Sorting v7 UUIDs lexicographically
// roughly sorts them by creation time.
func NewV7() (UUID, error) {
	var uuid UUID

	// First 6 bytes carry the Unix millisecond timestamp, big-endian
	now := time.Now().UnixMilli()
	uuid.bytes[0] = byte(now >> 40)
	uuid.bytes[1] = byte(now >> 32)
	uuid.bytes[2] = byte(now >> 24)
	uuid.bytes[3] = byte(now >> 16)
	uuid.bytes[4] = byte(now >> 8)
	uuid.bytes[5] = byte(now)

	if _, err := rand.Read(uuid.bytes[6:]); err != nil {
		return UUID{}, fmt.Errorf("read random: %w", err)
	}

	// Version 7 in the high nibble of byte 6
	uuid.bytes[6] = (uuid.bytes[6] & 0x0F) | 0x70

	// RFC 4122 variant: high bits of byte 8 are "10"
	uuid.bytes[8] = (uuid.bytes[8] & 0x3F) | 0x80

	return uuid, nil
}

// String returns the canonical string representation of the UUID,
// formatted according to RFC 4122 with hyphens (8-4-4-4-12 format).
func (u UUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		binary.BigEndian.Uint32(u.bytes[0:4]),
		binary.BigEndian.Uint16(u.bytes[4:6]),
		binary.BigEndian.Uint16(u.bytes[6:8]),
		binary.BigEndian.Uint16(u.bytes[8:10]),
		u.bytes[10:16])
}

// Bytes returns the raw bytes of the UUID.
func (u UUID) Bytes() []byte {
	return u.bytes[:]
}
