package card

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ardnew/softmmc/pkg"
)

// Storage is a block device. [Card] implements it; [FileStorage] provides
// an image-file backend to copy cards to and from.
type Storage interface {
	// BlockSize returns the size of a storage block in bytes.
	BlockSize() uint32

	// BlockCount returns the total number of blocks.
	BlockCount() uint64

	// Read reads blocks starting at lba into buf.
	// Returns number of blocks read or error.
	Read(lba uint64, blocks uint32, buf []byte) (uint32, error)

	// Write writes blocks from buf starting at lba.
	// Returns number of blocks written or error.
	Write(lba uint64, blocks uint32, buf []byte) (uint32, error)

	// Sync flushes any cached writes to storage.
	Sync() error

	// IsReadOnly returns true if storage is read-only.
	IsReadOnly() bool

	// IsRemovable returns true if media is removable.
	IsRemovable() bool

	// IsPresent returns true if media is present (for removable media).
	IsPresent() bool

	// Eject ejects removable media (optional operation).
	Eject() error
}

var (
	_ Storage = (*Card)(nil)
	_ Storage = (*FileStorage)(nil)
)

// FileStorage is a Storage backed by a raw disk image file.
type FileStorage struct {
	mu       sync.RWMutex
	file     *os.File
	blocks   uint64
	readOnly bool
}

// CreateImage creates (or truncates) an image file of the given size in
// blocks.
func CreateImage(path string, blocks uint64) (*FileStorage, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := file.Truncate(int64(blocks * blockSize)); err != nil {
		file.Close()
		return nil, fmt.Errorf("size image %s: %w", path, err)
	}
	return &FileStorage{file: file, blocks: blocks}, nil
}

// OpenImage opens an existing image file. A trailing partial block is not
// addressable.
func OpenImage(path string, readOnly bool) (*FileStorage, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}
	file, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	return &FileStorage{
		file:     file,
		blocks:   uint64(stat.Size()) / blockSize,
		readOnly: readOnly,
	}, nil
}

// BlockSize returns the block size.
func (f *FileStorage) BlockSize() uint32 {
	return blockSize
}

// BlockCount returns the number of blocks.
func (f *FileStorage) BlockCount() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.blocks
}

func (f *FileStorage) span(lba uint64, blocks uint32, buf []byte) (int64, int, error) {
	if lba+uint64(blocks) > f.blocks {
		return 0, 0, fmt.Errorf("lba %d+%d: %w", lba, blocks, pkg.ErrOutOfRange)
	}
	length := int(blocks) * blockSize
	if len(buf) < length {
		return 0, 0, io.ErrShortBuffer
	}
	return int64(lba * blockSize), length, nil
}

// Read reads blocks from the image.
func (f *FileStorage) Read(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	offset, length, err := f.span(lba, blocks, buf)
	if err != nil {
		return 0, err
	}
	n, err := f.file.ReadAt(buf[:length], offset)
	if err != nil && err != io.EOF {
		return uint32(n / blockSize), err
	}
	return uint32(n / blockSize), nil
}

// Write writes blocks to the image.
func (f *FileStorage) Write(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.readOnly {
		return 0, pkg.ErrWriteProtected
	}
	offset, length, err := f.span(lba, blocks, buf)
	if err != nil {
		return 0, err
	}
	n, err := f.file.WriteAt(buf[:length], offset)
	return uint32(n / blockSize), err
}

// Sync flushes the image file.
func (f *FileStorage) Sync() error {
	return f.file.Sync()
}

// IsReadOnly returns whether the image was opened read-only.
func (f *FileStorage) IsReadOnly() bool {
	return f.readOnly
}

// IsRemovable returns false.
func (f *FileStorage) IsRemovable() bool {
	return false
}

// IsPresent returns true.
func (f *FileStorage) IsPresent() bool {
	return true
}

// Eject is not supported for images.
func (f *FileStorage) Eject() error {
	return pkg.ErrNotSupported
}

// Close closes the image file.
func (f *FileStorage) Close() error {
	return f.file.Close()
}

// Copy copies blocks starting at lba from src to dst, chunk blocks at a
// time, and returns the number of blocks copied. Both devices must use the
// same block size.
func Copy(dst, src Storage, lba uint64, blocks uint64, chunk uint32) (uint64, error) {
	if dst.BlockSize() != src.BlockSize() {
		return 0, fmt.Errorf("copy: block size %d to %d: %w",
			src.BlockSize(), dst.BlockSize(), pkg.ErrInvalidParameter)
	}
	if chunk == 0 {
		chunk = 1
	}
	buf := make([]byte, uint64(chunk)*uint64(src.BlockSize()))

	var done uint64
	for done < blocks {
		n := uint32(min(blocks-done, uint64(chunk)))
		if _, err := src.Read(lba+done, n, buf); err != nil {
			return done, fmt.Errorf("copy: %w", err)
		}
		if _, err := dst.Write(lba+done, n, buf); err != nil {
			return done, fmt.Errorf("copy: %w", err)
		}
		done += uint64(n)
	}
	return done, dst.Sync()
}
