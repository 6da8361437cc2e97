package host

import "encoding/binary"

// wordsFor returns how many 32-bit response words fill a buffer of size
// bytes. The leading reserved byte does not count.
func wordsFor(size int) int {
	if size <= ResponseLen48 {
		return 1
	}
	return (size - 1) / 4
}

// PutResponse unpacks controller response words into dst, whose length
// selects the response kind.
//
// For a 48-bit response (len(dst) <= 6) words[0] lands big-endian at offsets
// 1..4. Offset 0 and the CRC offset 5 are not written.
//
// For a 136-bit response (len(dst) > 6) the first word fills the stride that
// ends at offset len(dst)-2 and each further word the 4 bytes below it, most
// significant byte first. With the 17-byte buffer this places CID/CSD bits
// [127:8] at offsets 1..15; offset 16, which would carry CRC7 and the end
// bit, is not written.
//
// PutResponse panics if words holds fewer words than the buffer needs or if
// dst is shorter than a 48-bit response.
func PutResponse(dst []byte, words []uint32) {
	size := len(dst)
	if size <= ResponseLen48 {
		binary.BigEndian.PutUint32(dst[1:5], words[0])
		return
	}
	i := size - 2
	for _, w := range words[:wordsFor(size)] {
		binary.BigEndian.PutUint32(dst[i-3:i+1], w)
		i -= 4
	}
}

// ResponseWords is the inverse of PutResponse: it re-packs the bytes of src
// into the controller words they were unpacked from.
func ResponseWords(src []byte) []uint32 {
	size := len(src)
	if size <= ResponseLen48 {
		return []uint32{binary.BigEndian.Uint32(src[1:5])}
	}
	words := make([]uint32, wordsFor(size))
	i := size - 2
	for n := range words {
		words[n] = binary.BigEndian.Uint32(src[i-3 : i+1])
		i -= 4
	}
	return words
}
