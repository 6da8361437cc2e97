package host

import (
	"bytes"
	"slices"
	"testing"
)

func filled(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

// =============================================================================
// PutResponse Tests
// =============================================================================

func TestPutResponse_Short(t *testing.T) {
	buf := filled(ResponseLen48, 0xA5)
	PutResponse(buf, []uint32{0x12345678})

	want := []byte{0xA5, 0x12, 0x34, 0x56, 0x78, 0xA5}
	if !bytes.Equal(buf, want) {
		t.Errorf("buf = % X, want % X", buf, want)
	}
}

func TestPutResponse_Long(t *testing.T) {
	buf := filled(ResponseLen136, 0xA5)
	PutResponse(buf, []uint32{0x11223344, 0x55667788, 0x99AABBCC, 0x00DDEEFF})

	want := []byte{
		0x00, 0xDD, 0xEE, 0xFF,
		0x99, 0xAA, 0xBB, 0xCC,
		0x55, 0x66, 0x77, 0x88,
		0x11, 0x22, 0x33, 0x44,
		0xA5, // CRC byte untouched
	}
	if !bytes.Equal(buf, want) {
		t.Errorf("buf = % X, want % X", buf, want)
	}
}

func TestPutResponse_CSDStructure(t *testing.T) {
	// CSD version 2.0 puts CSD_STRUCTURE=1 in bits [127:126], which the
	// controller reports in word 3 bits [23:22].
	buf := make([]byte, ResponseLen136)
	PutResponse(buf, []uint32{0, 0, 0, 0x00400000})

	if buf[1]>>6 != 1 {
		t.Errorf("CSD_STRUCTURE = %d, want 1", buf[1]>>6)
	}
}

func TestWordsFor(t *testing.T) {
	tests := []struct {
		size     int
		expected int
	}{
		{ResponseLen48, 1},
		{ResponseLen136, 4},
		{16, 3},
		{10, 2},
	}

	for _, tt := range tests {
		if got := wordsFor(tt.size); got != tt.expected {
			t.Errorf("wordsFor(%d) = %d, want %d", tt.size, got, tt.expected)
		}
	}
}

// =============================================================================
// ResponseWords Tests
// =============================================================================

func TestResponseWords_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		words []uint32
	}{
		{"48", ResponseLen48, []uint32{0x00000900}},
		{"136", ResponseLen136, []uint32{0xDEADBEEF, 0x01020304, 0xCAFEF00D, 0x00A1B2C3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.size)
			PutResponse(buf, tt.words)
			if got := ResponseWords(buf); !slices.Equal(got, tt.words) {
				t.Errorf("ResponseWords() = %08X, want %08X", got, tt.words)
			}
		})
	}
}
