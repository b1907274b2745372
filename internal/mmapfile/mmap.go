// Package mmapfile memory-maps read-only files: the passage jsonl and
// the embedding blob are opened this way so the OS page cache, not engine
// heap, backs random reads into them (§5 — "the embedding blob is
// read-only and mmap'ed").
package mmapfile

import (
	"fmt"
	"os"
	"syscall"
)

// Mapped is a read-only memory-mapped file.
type Mapped struct {
	file *os.File
	Data []byte
}

// Open memory-maps path for reading. Callers must call Close when done.
func Open(path string) (*Mapped, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmapfile: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmapfile: stat %s: %w", path, err)
	}

	size := info.Size()
	if size == 0 {
		return &Mapped{file: f, Data: nil}, nil
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmapfile: mmap %s: %w", path, err)
	}

	return &Mapped{file: f, Data: data}, nil
}

// Close unmaps the file and closes the underlying file descriptor.
func (m *Mapped) Close() error {
	var err error
	if m.Data != nil {
		err = syscall.Munmap(m.Data)
	}
	if cerr := m.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
