// Package filetime converts between time.Time and the
// FILETIME representation used by the driver protocol: the
// count of 100-nanosecond intervals since 1601-01-01 UTC.
//
// The zero FILETIME is reserved to mean "unavailable", so
// the zero time.Time converts to 0 and back.
package filetime

import (
	"time"
)

const (
	// UnixEpoch is the FILETIME of 1970-01-01 UTC.
	UnixEpoch uint64 = 116444736000000000

	ticksPerSecond = 10000000
	nsecPerTick    = 100
)

// Timestamp converts t to a FILETIME. The zero time and
// times before 1601 convert to 0.
func Timestamp(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	sec := t.Unix()
	ticks := int64(t.Nanosecond()) / nsecPerTick
	// Seconds between 1601 and 1970.
	const epochDelta = int64(UnixEpoch / ticksPerSecond)
	sec += epochDelta
	if sec < 0 {
		return 0
	}
	return uint64(sec)*ticksPerSecond + uint64(ticks)
}

// Time converts a FILETIME to time.Time. The value 0 is
// converted to the zero time.
func Time(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	sec := int64(ft/ticksPerSecond) - int64(UnixEpoch/ticksPerSecond)
	nsec := int64(ft%ticksPerSecond) * nsecPerTick
	return time.Unix(sec, nsec)
}

// Split returns the low and high 32-bit halves, which is
// the layout of the FILETIME struct on the wire.
func Split(ft uint64) (low, high uint32) {
	return uint32(ft), uint32(ft >> 32)
}

// Join is the reverse of Split.
func Join(low, high uint32) uint64 {
	return uint64(high)<<32 | uint64(low)
}
