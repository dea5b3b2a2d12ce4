package gofat

import (
	"io"
	"sync"

	"github.com/roundwheel/gofat/checkpoint"
	"github.com/spf13/afero"
)

// BlockDevice is the only collaborator gofat needs from the host: a
// byte-addressable, randomly-accessible, sector-sized store. It intentionally
// says nothing about partition tables or host file systems - wrapping an
// afero.File, an os.File or a plain io.ReaderAt/WriterAt is enough.
type BlockDevice interface {
	// ReadAt reads len(p) bytes starting at off. It behaves like io.ReaderAt.
	ReadAt(p []byte, off int64) (n int, err error)
	// WriteAt writes len(p) bytes starting at off. It behaves like io.WriterAt.
	WriteAt(p []byte, off int64) (n int, err error)
	// Size returns the total addressable size of the device in bytes.
	Size() (int64, error)
	// SectorSize returns the device's native sector size in bytes.
	SectorSize() uint32
	// Flush persists any buffering the device itself may perform.
	Flush() error
	// IsReadOnly reports whether WriteAt must be rejected by callers.
	IsReadOnly() bool
}

// fileBlockDevice adapts any io.ReaderAt + io.WriterAt + io.Closer-ish handle
// (os.File and afero.File both qualify) to BlockDevice.
type fileBlockDevice struct {
	mu         sync.Mutex
	file       afero.File
	sectorSize uint32
	readOnly   bool
}

// NewFileBlockDevice wraps an afero.File (which an *os.File also satisfies
// through afero.OsFs) as a BlockDevice with the given sector size.
func NewFileBlockDevice(file afero.File, sectorSize uint32, readOnly bool) BlockDevice {
	return &fileBlockDevice{
		file:       file,
		sectorSize: sectorSize,
		readOnly:   readOnly,
	}
}

func (d *fileBlockDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.ReadAt(p, off)
}

func (d *fileBlockDevice) WriteAt(p []byte, off int64) (int, error) {
	if d.readOnly {
		return 0, checkpoint.From(ErrReadOnly)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.WriteAt(p, off)
}

func (d *fileBlockDevice) Size() (int64, error) {
	info, err := d.file.Stat()
	if err != nil {
		return 0, checkpoint.From(err)
	}
	return info.Size(), nil
}

func (d *fileBlockDevice) SectorSize() uint32 {
	return d.sectorSize
}

func (d *fileBlockDevice) Flush() error {
	if d.readOnly {
		return nil
	}
	return d.file.Sync()
}

func (d *fileBlockDevice) IsReadOnly() bool {
	return d.readOnly
}

// memBlockDevice is a fixed-size, in-memory BlockDevice backed by afero's
// in-memory file system. It is the device used by the property tests and
// end-to-end scenarios in the testable-properties section: no real disk is
// touched, but the data path (Sector, Fat, ClusterChain) is identical to the
// one used against a real file.
type memBlockDevice struct {
	fileBlockDevice
	fs afero.Fs
}

// NewMemBlockDevice creates a BlockDevice of exactly size bytes, entirely in
// memory, formatted with zero bytes.
func NewMemBlockDevice(size int64, sectorSize uint32) (BlockDevice, error) {
	fs := afero.NewMemMapFs()
	f, err := fs.Create("disk.img")
	if err != nil {
		return nil, checkpoint.From(err)
	}

	if err := f.Truncate(size); err != nil {
		return nil, checkpoint.From(err)
	}

	return &memBlockDevice{
		fileBlockDevice: fileBlockDevice{
			file:       f,
			sectorSize: sectorSize,
			readOnly:   false,
		},
		fs: fs,
	}, nil
}

// readSeekerBlockDevice adapts a plain io.ReadSeeker (as accepted by the
// teacher's original New/NewSkipChecks) to BlockDevice. It is always
// read-only since io.ReadSeeker alone cannot express writes; callers needing
// a writable device should use NewFileBlockDevice or NewMemBlockDevice.
type readSeekerBlockDevice struct {
	mu         sync.Mutex
	reader     io.ReadSeeker
	size       int64
	sectorSize uint32
}

// NewReadSeekerBlockDevice wraps an io.ReadSeeker (e.g. an already-opened
// *os.File) as a read-only BlockDevice of the given sector size. size must be
// the total addressable length of reader.
func NewReadSeekerBlockDevice(reader io.ReadSeeker, size int64, sectorSize uint32) BlockDevice {
	return &readSeekerBlockDevice{
		reader:     reader,
		size:       size,
		sectorSize: sectorSize,
	}
}

func (d *readSeekerBlockDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.reader.Seek(off, io.SeekStart); err != nil {
		return 0, checkpoint.From(err)
	}
	return io.ReadFull(d.reader, p)
}

func (d *readSeekerBlockDevice) WriteAt(p []byte, off int64) (int, error) {
	return 0, checkpoint.From(ErrReadOnly)
}

func (d *readSeekerBlockDevice) Size() (int64, error) {
	return d.size, nil
}

func (d *readSeekerBlockDevice) SectorSize() uint32 {
	return d.sectorSize
}

func (d *readSeekerBlockDevice) Flush() error {
	return nil
}

func (d *readSeekerBlockDevice) IsReadOnly() bool {
	return true
}
