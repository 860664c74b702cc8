// Package filestore implements raw paged I/O over a single on-disk heap
// file (spec.md C4): readRawPage/writeRawPage, page size 4096, seeking to
// pageID * PageSize.
package filestore

import (
	"io"
	"os"

	"github.com/dsnet/golib/memfile"
	"github.com/ncw/directio"
	"github.com/pkg/errors"

	"github.com/takoyaki-db/bitmapdb/storage/page"
)

// PageSize is the fixed transfer size of every raw page operation.
const PageSize = page.Size

// IOError is returned for short reads/writes, seek failures, or open
// failures.
var IOError = errors.New("filestore: io error")

// backend is the minimal surface FileStore needs from its underlying
// storage: *os.File already satisfies it.
type backend interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Close() error
}

// FileStore performs raw paged I/O over a single backend. fileType is
// accepted on every call but only page.Table is in scope (spec.md §4.4);
// the parameter exists for future expansion.
type FileStore struct {
	backend backend
}

// Open opens (creating if necessary) the on-disk heap file
// "<tableName>.db" using direct, unbuffered I/O (O_DIRECT) so that page
// transfers bypass the OS page cache — the buffer pool above FileStore is
// the only cache in this system (spec.md §4.4/§4.5).
func Open(tableName string) (*FileStore, error) {
	f, err := directio.OpenFile(tableName+".db", os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(IOError, "open %q: %v", tableName+".db", err)
	}
	return &FileStore{backend: f}, nil
}

// memBackend adapts an in-memory *memfile.File to the backend interface,
// for use by OpenMemory.
type memBackend struct {
	f *memfile.File
}

func (m *memBackend) ReadAt(p []byte, off int64) (int, error)  { return m.f.ReadAt(p, off) }
func (m *memBackend) WriteAt(p []byte, off int64) (int, error) { return m.f.WriteAt(p, off) }
func (m *memBackend) Close() error                             { return nil }

// OpenMemory returns a FileStore backed entirely by memory
// (github.com/dsnet/golib/memfile), for use by tests that must never touch
// the filesystem.
func OpenMemory() *FileStore {
	return &FileStore{backend: &memBackend{f: memfile.New(nil)}}
}

func (fs *FileStore) offset(pageID page.ID) int64 {
	return int64(pageID) * PageSize
}

// ReadRawPage seeks to pageID*PageSize and fills buf with exactly
// PageSize bytes, failing with IOError on a short read.
func (fs *FileStore) ReadRawPage(fileType page.FileType, pageID page.ID, buf *[PageSize]byte) error {
	if fileType != page.Table {
		return errors.Wrapf(IOError, "unsupported file type %d", fileType)
	}
	aligned := directio.AlignedBlock(PageSize)
	n, err := fs.backend.ReadAt(aligned, fs.offset(pageID))
	if err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrapf(IOError, "read page %d: %v", pageID, err)
	}
	if n < PageSize {
		return errors.Wrapf(IOError, "short read on page %d: got %d of %d bytes", pageID, n, PageSize)
	}
	copy(buf[:], aligned)
	return nil
}

// WriteRawPage seeks to pageID*PageSize and writes exactly PageSize bytes
// from buf, failing with IOError on a short write.
func (fs *FileStore) WriteRawPage(fileType page.FileType, pageID page.ID, buf *[PageSize]byte) error {
	if fileType != page.Table {
		return errors.Wrapf(IOError, "unsupported file type %d", fileType)
	}
	aligned := directio.AlignedBlock(PageSize)
	copy(aligned, buf[:])
	n, err := fs.backend.WriteAt(aligned, fs.offset(pageID))
	if err != nil {
		return errors.Wrapf(IOError, "write page %d: %v", pageID, err)
	}
	if n < PageSize {
		return errors.Wrapf(IOError, "short write on page %d: wrote %d of %d bytes", pageID, n, PageSize)
	}
	return nil
}

// Close closes the underlying backend.
func (fs *FileStore) Close() error {
	return fs.backend.Close()
}
