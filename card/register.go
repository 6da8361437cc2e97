package card

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// field extracts register bits [msb:msb-width+1]. Bit 0 is the LSB of the
// last byte.
func field(reg *[16]byte, msb, width int) uint32 {
	var v uint32
	for i := width - 1; i >= 0; i-- {
		bit := msb - width + 1 + i
		b := reg[15-bit/8] >> (bit % 8) & 1
		v = v<<1 | uint32(b)
	}
	return v
}

// CSD is the card-specific data register, most significant byte first.
type CSD [16]byte

// CSD structure versions.
const (
	CSDVersion1 = 0 // Standard capacity
	CSDVersion2 = 1 // High and extended capacity
)

// Structure returns the CSD_STRUCTURE field.
func (r *CSD) Structure() uint8 {
	return uint8(field((*[16]byte)(r), 127, 2))
}

// TranSpeed returns the raw TRAN_SPEED field.
func (r *CSD) TranSpeed() uint8 {
	return uint8(field((*[16]byte)(r), 103, 8))
}

// Transfer rate units in kbit/s and time values times ten (TRAN_SPEED).
var (
	tranRateKHz = [...]uint32{100, 1000, 10000, 100000}
	tranTimeX10 = [...]uint32{0, 10, 12, 13, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60, 70, 80}
)

// MaxClockKHz decodes TRAN_SPEED into the maximum card clock in kHz. It
// returns 0 for reserved encodings.
func (r *CSD) MaxClockKHz() uint32 {
	ts := r.TranSpeed()
	unit := ts & 0x7
	if int(unit) >= len(tranRateKHz) {
		return 0
	}
	return tranRateKHz[unit] * tranTimeX10[ts>>3&0xF] / 10
}

// CCC returns the supported command classes bitmap.
func (r *CSD) CCC() uint16 {
	return uint16(field((*[16]byte)(r), 95, 12))
}

// ReadBlockLen returns the maximum read block length in bytes.
func (r *CSD) ReadBlockLen() uint32 {
	return 1 << field((*[16]byte)(r), 83, 4)
}

// Blocks returns the user data capacity in 512-byte blocks.
func (r *CSD) Blocks() uint64 {
	reg := (*[16]byte)(r)
	switch r.Structure() {
	case CSDVersion1:
		cSize := uint64(field(reg, 73, 12))
		mult := field(reg, 49, 3)
		readBlLen := field(reg, 83, 4)
		return (cSize + 1) << (mult + 2) << readBlLen / blockSize
	case CSDVersion2:
		return (uint64(field(reg, 69, 22)) + 1) * 1024
	default:
		return 0
	}
}

// Capacity returns the user data capacity in bytes.
func (r *CSD) Capacity() uint64 {
	return r.Blocks() * blockSize
}

// CID is the card identification register, most significant byte first.
type CID [16]byte

// ManufacturerID returns the MID field.
func (r *CID) ManufacturerID() uint8 {
	return r[0]
}

// OEMID returns the two-character OID field.
func (r *CID) OEMID() string {
	return string(r[1:3])
}

// ProductName returns the five-character PNM field.
func (r *CID) ProductName() string {
	return strings.TrimRight(string(r[3:8]), "\x00 ")
}

// Revision returns the PRV field as major and minor digits.
func (r *CID) Revision() (major, minor uint8) {
	return r[8] >> 4, r[8] & 0xF
}

// Serial returns the PSN field.
func (r *CID) Serial() uint32 {
	return binary.BigEndian.Uint32(r[9:13])
}

// ManufacturingDate returns the MDT field.
func (r *CID) ManufacturingDate() (year int, month time.Month) {
	reg := (*[16]byte)(r)
	return 2000 + int(field(reg, 19, 8)), time.Month(field(reg, 11, 4))
}

// String returns a one-line summary of the card identity.
func (r *CID) String() string {
	major, minor := r.Revision()
	year, month := r.ManufacturingDate()
	return fmt.Sprintf("%s rev %d.%d mid 0x%02X oid %q sn 0x%08X %04d-%02d",
		r.ProductName(), major, minor, r.ManufacturerID(), r.OEMID(), r.Serial(), year, int(month))
}
