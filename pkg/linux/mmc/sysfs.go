//go:build linux

package mmc

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ardnew/softmmc/card"
)

// SysfsPath is where the kernel lists enumerated SD/MMC cards.
const SysfsPath = "/sys/bus/mmc/devices"

// Card is an SD/MMC card the kernel has identified.
type Card struct {
	Name string // sysfs name, "<host>:<rca>"
	Path string // sysfs directory
	Host string // host controller, e.g. "mmc0"
	Type string // "SD", "MMC", "SDIO" or "SDcombo"
	RCA  uint16
	OCR  uint32

	// Registers are empty for SDIO-only cards.
	CID card.CID
	CSD card.CSD

	// Block is the block device name, e.g. "mmcblk0", or empty.
	Block string
}

// Blocks returns the capacity in 512-byte blocks decoded from the CSD.
func (c *Card) Blocks() uint64 {
	return c.CSD.Blocks()
}

// IsMemory reports whether the card has a memory portion.
func (c *Card) IsMemory() bool {
	return c.Type != "SDIO"
}

// =============================================================================
// Sysfs Parsing
// =============================================================================

// Scan lists the cards below root, normally [SysfsPath]. A missing root
// means no card has been enumerated and returns no error. Entries that
// cannot be parsed are skipped.
func Scan(root string) ([]Card, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cards []Card
	for _, entry := range entries {
		// Card entries are "<host>:<rca>", e.g. "mmc0:aaaa".
		if !strings.Contains(entry.Name(), ":") {
			continue
		}
		c, err := Parse(filepath.Join(root, entry.Name()))
		if err != nil {
			continue
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// Parse reads the card at the sysfs directory path.
func Parse(path string) (Card, error) {
	c := Card{
		Name: filepath.Base(path),
		Path: path,
	}
	host, rca, ok := strings.Cut(c.Name, ":")
	if !ok {
		return c, fmt.Errorf("%s: not a card entry", c.Name)
	}
	c.Host = host
	if v, err := strconv.ParseUint(rca, 16, 16); err == nil {
		c.RCA = uint16(v)
	}

	var err error
	if c.Type, err = readString(filepath.Join(path, "type")); err != nil {
		return c, err
	}
	if v, err := readHex(filepath.Join(path, "ocr"), 32); err == nil {
		c.OCR = uint32(v)
	}
	if !c.IsMemory() {
		return c, nil
	}

	cid, err := readRegister(filepath.Join(path, "cid"))
	if err != nil {
		return c, err
	}
	csd, err := readRegister(filepath.Join(path, "csd"))
	if err != nil {
		return c, err
	}
	c.CID, c.CSD = card.CID(cid), card.CSD(csd)
	c.Block = blockDevice(path)
	return c, nil
}

// blockDevice returns the first block device below the card, if any.
func blockDevice(path string) string {
	entries, err := os.ReadDir(filepath.Join(path, "block"))
	if err != nil || len(entries) == 0 {
		return ""
	}
	return entries[0].Name()
}

// =============================================================================
// Sysfs Read Helpers
// =============================================================================

// readString reads a sysfs attribute without surrounding whitespace.
func readString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// readHex reads a hexadecimal attribute with or without a 0x prefix.
func readHex(path string, bitSize int) (uint64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, bitSize)
}

// readRegister reads a 128-bit register printed as 32 hex digits, most
// significant first.
func readRegister(path string) ([16]byte, error) {
	var reg [16]byte
	s, err := readString(path)
	if err != nil {
		return reg, err
	}
	if len(s) != 2*len(reg) {
		return reg, fmt.Errorf("%s: %d hex digits, want %d", path, len(s), 2*len(reg))
	}
	if _, err := hex.Decode(reg[:], []byte(s)); err != nil {
		return reg, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}
