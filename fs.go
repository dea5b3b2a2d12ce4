package gofat

import (
	"errors"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/roundwheel/gofat/checkpoint"
	"github.com/spf13/afero"
)

// MountOptions controls how Mount tolerates deviations from a strictly
// well-formed volume. The zero value is the strict default.
type MountOptions struct {
	// ReadOnly rejects every mutating operation after mount.
	ReadOnly bool
	// IgnoreFatDifferences skips the FAT-mirror comparison (spec §3's
	// "all FAT copies are byte-identical" invariant, normally enforced).
	IgnoreFatDifferences bool
	// SkipBootSectorChecks disables signature/geometry validation on the
	// boot sector, allowing non-standard images to mount.
	SkipBootSectorChecks bool
}

// Fs is a mounted FAT12/16/32 volume, implementing afero.Fs.
type Fs struct {
	lock sync.Mutex

	device     BlockDevice
	bootSector BootSector
	fat        *Fat
	fsInfo     *fsInfoSector

	filesOff  int64
	rootOff   int64
	rootCount int

	root *fatLfnDirectory

	readOnly bool
	opts     MountOptions
}

// New mounts a FAT filesystem from reader, read-only, matching the
// teacher's original entry point. Internally it wraps reader in a
// read-only BlockDevice; use Mount directly for a writable volume.
func New(reader io.ReadSeeker) (*Fs, error) {
	return mountReader(reader, MountOptions{ReadOnly: true})
}

// NewSkipChecks behaves like New but tolerates non-standard boot sectors.
func NewSkipChecks(reader io.ReadSeeker) (*Fs, error) {
	return mountReader(reader, MountOptions{ReadOnly: true, SkipBootSectorChecks: true})
}

func mountReader(reader io.ReadSeeker, opts MountOptions) (*Fs, error) {
	size, err := reader.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, checkpoint.From(err)
	}
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return nil, checkpoint.From(err)
	}

	device := NewReadSeekerBlockDevice(reader, size, 512)
	return Mount(device, opts)
}

// Mount reads the boot sector, FAT copies and root directory from device
// and returns a ready-to-use filesystem, following the ordering of spec
// §4.11: boot sector -> FAT #0 -> compare FAT #1..n -> root directory ->
// FSInfo (FAT32) -> wrap root in the LFN view.
func Mount(device BlockDevice, opts MountOptions) (*Fs, error) {
	bs, err := readBootSector(device, opts.SkipBootSectorChecks)
	if err != nil {
		return nil, err
	}

	bytesPerCluster := int64(bs.BytesPerCluster())
	fatOffset := int64(bs.ReservedSectorCount()) * int64(bs.BytesPerSector())

	var rootOffset int64
	var filesOffset int64
	rootEntryCount := int(bs.RootDirEntryCount())

	if bs.FatType() == FAT32 {
		filesOffset = fatOffset + int64(bs.NumFATs())*int64(bs.SectorsPerFat())*int64(bs.BytesPerSector())
	} else {
		rootOffset = fatOffset + int64(bs.NumFATs())*int64(bs.SectorsPerFat())*int64(bs.BytesPerSector())
		filesOffset = rootOffset + int64(rootEntryCount)*directoryEntrySize
	}

	deviceSize, err := device.Size()
	if err != nil {
		return nil, err
	}
	dataClusterCount := uint32((deviceSize - filesOffset) / bytesPerCluster)

	actualType := classifyFatType(dataClusterCount)
	bs.setFatType(actualType)

	fatBytes := make([]byte, int64(bs.SectorsPerFat())*int64(bs.BytesPerSector()))
	if _, err := device.ReadAt(fatBytes, fatOffset); err != nil {
		return nil, checkpoint.From(err)
	}
	fat, err := readFat(actualType, dataClusterCount, fatBytes)
	if err != nil {
		return nil, err
	}

	if !opts.IgnoreFatDifferences {
		for i := 1; i < int(bs.NumFATs()); i++ {
			off := fatOffset + int64(i)*int64(bs.SectorsPerFat())*int64(bs.BytesPerSector())
			copyBytes := make([]byte, len(fatBytes))
			if _, err := device.ReadAt(copyBytes, off); err != nil {
				return nil, checkpoint.From(err)
			}
			otherFat, err := readFat(actualType, dataClusterCount, copyBytes)
			if err != nil {
				return nil, err
			}
			if !fat.equal(otherFat) {
				return nil, checkpoint.From(ErrFatMismatch)
			}
		}
	}

	fs := &Fs{
		device:     device,
		bootSector: bs,
		fat:        fat,
		filesOff:   filesOffset,
		rootOff:    rootOffset,
		rootCount:  rootEntryCount,
		readOnly:   opts.ReadOnly || device.IsReadOnly(),
		opts:       opts,
	}

	if actualType == FAT32 {
		chain := newClusterChain(fat, device, filesOffset, bytesPerCluster, bs.RootDirFirstCluster(), fs.readOnly)
		fs.root = newFatLfnDirectory(fs, newClusterChainDirectory(chain), true, nil)
	} else {
		backing := newFat16RootDirectory(device, rootOffset, rootEntryCount, fs.readOnly)
		fs.root = newFatLfnDirectory(fs, backing, true, nil)
	}

	if err := fs.root.load(); err != nil {
		return nil, err
	}

	if actualType == FAT32 {
		fsInfo, err := readFsInfo(device, bs.FSInfoSectorNr(), bs.BytesPerSector())
		if err == nil {
			if !opts.SkipBootSectorChecks {
				if err := fsInfo.checkAgainst(fat); err != nil {
					return nil, err
				}
			}
			fs.fsInfo = fsInfo
		}
	}

	return fs, nil
}

func (fs *Fs) filesOffset() int64 { return fs.filesOff }

// Label returns the volume label, preferring the root directory's
// pseudo-entry over the boot sector's copy per spec §3.
func (fs *Fs) Label() string {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if label := fs.root.volumeLabel(); label != "" {
		return label
	}
	if fs.bootSector.FatType() != FAT32 {
		return fs.bootSector.VolumeLabel()
	}
	return ""
}

// SetVolumeLabel updates the volume label, keeping the FAT12/16 boot-sector
// copy coherent on the next flush.
func (fs *Fs) SetVolumeLabel(label string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return fs.root.setVolumeLabel(label)
}

// FSType reports the authoritative FAT type decided at mount time.
func (fs *Fs) FSType() FATType {
	return fs.bootSector.FatType()
}

func (fs *Fs) FreeSpace() int64 {
	return int64(fs.fat.freeClusterCount()) * int64(fs.bootSector.BytesPerCluster())
}

func (fs *Fs) TotalSpace() int64 {
	return int64(fs.fat.totalClusters) * int64(fs.bootSector.BytesPerCluster())
}

// resolve walks path (afero-style, "/" separated) and returns the parent
// directory plus the resolved entry, which is nil if the leaf doesn't exist.
func (fs *Fs) resolve(name string) (*fatLfnDirectory, *FatLfnDirectoryEntry, error) {
	clean := strings.Trim(path.Clean("/"+filepathToSlash(name)), "/")
	if clean == "" || clean == "." {
		return nil, nil, nil
	}

	parts := strings.Split(clean, "/")
	dir := fs.root
	for i, part := range parts {
		entry, err := dir.getEntry(part)
		if err != nil {
			return nil, nil, err
		}
		if i == len(parts)-1 {
			return dir, entry, nil
		}
		if entry == nil || !entry.IsDirectory() {
			return nil, nil, checkpoint.From(ErrNotDirectory)
		}
		sub, err := dir.openSubdir(entry)
		if err != nil {
			return nil, nil, err
		}
		if err := sub.ensureLoaded(); err != nil {
			return nil, nil, err
		}
		dir = sub
	}
	return dir, nil, nil
}

func filepathToSlash(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}

func leafName(name string) string {
	clean := strings.Trim(path.Clean("/"+filepathToSlash(name)), "/")
	if i := strings.LastIndex(clean, "/"); i >= 0 {
		return clean[i+1:]
	}
	return clean
}

func (fs *Fs) newFile(dirPath string, entry *FatLfnDirectoryEntry) *File {
	return &File{
		fs:           fs,
		path:         dirPath,
		isDirectory:  entry.IsDirectory(),
		isReadOnly:   entry.header.Attribute&AttrReadOnly != 0,
		isHidden:     entry.header.Attribute&AttrHidden != 0,
		isSystem:     entry.header.Attribute&AttrSystem != 0,
		firstCluster: fatEntry{fs.bootSector.FatType(), entry.header.firstCluster()},
		stat:         entryHeaderFileInfo{ExtendedEntryHeader{EntryHeader: entry.header, ExtendedName: entry.name}},
		entry:        entry,
	}
}

func (fs *Fs) Create(name string) (afero.File, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.readOnly {
		return nil, checkpoint.From(ErrReadOnly)
	}

	dir, existing, err := fs.resolve(name)
	if err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, checkpoint.From(ErrNotDirectory)
	}
	if existing != nil {
		if err := dir.remove(existing.name); err != nil {
			return nil, err
		}
	}

	entry, err := dir.addEntry(leafName(name), false)
	if err != nil {
		return nil, err
	}
	return fs.newFile(name, entry), nil
}

func (fs *Fs) Mkdir(name string, _ os.FileMode) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.readOnly {
		return checkpoint.From(ErrReadOnly)
	}
	dir, existing, err := fs.resolve(name)
	if err != nil {
		return err
	}
	if dir == nil {
		return checkpoint.From(ErrNotDirectory)
	}
	if existing != nil {
		return checkpoint.From(ErrDuplicateName)
	}
	_, err = dir.addEntry(leafName(name), true)
	return err
}

func (fs *Fs) MkdirAll(dirPath string, perm os.FileMode) error {
	clean := strings.Trim(filepathToSlash(dirPath), "/")
	if clean == "" {
		return nil
	}
	parts := strings.Split(clean, "/")
	cur := ""
	for _, part := range parts {
		cur += "/" + part
		if err := fs.Mkdir(cur, perm); err != nil && !errors.Is(err, ErrDuplicateName) {
			return err
		}
	}
	return nil
}

func (fs *Fs) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

func (fs *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	clean := strings.Trim(filepathToSlash(name), "/")
	if clean == "" {
		return &File{fs: fs, path: "", isDirectory: true, stat: rootFileInfo{}}, nil
	}

	dir, entry, err := fs.resolve(name)
	if err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, checkpoint.From(ErrNotDirectory)
	}

	if entry == nil {
		if flag&os.O_CREATE == 0 {
			return nil, os.ErrNotExist
		}
		if fs.readOnly {
			return nil, checkpoint.From(ErrReadOnly)
		}
		entry, err = dir.addEntry(leafName(name), false)
		if err != nil {
			return nil, err
		}
	}

	return fs.newFile(name, entry), nil
}

func (fs *Fs) Remove(name string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.readOnly {
		return checkpoint.From(ErrReadOnly)
	}
	dir, entry, err := fs.resolve(name)
	if err != nil {
		return err
	}
	if dir == nil || entry == nil {
		return os.ErrNotExist
	}
	return dir.remove(entry.name)
}

func (fs *Fs) RemoveAll(dirPath string) error {
	fs.lock.Lock()
	dir, entry, err := fs.resolve(dirPath)
	fs.lock.Unlock()
	if err != nil {
		return err
	}
	if dir == nil || entry == nil {
		return nil
	}

	if entry.IsDirectory() {
		sub, err := dir.openSubdir(entry)
		if err != nil {
			return err
		}
		if err := sub.ensureLoaded(); err != nil {
			return err
		}
		for _, child := range append([]*FatLfnDirectoryEntry{}, sub.order...) {
			n := shortNameOf(child.header).String()
			if n == "." || n == ".." {
				continue
			}
			if err := fs.RemoveAll(dirPath + "/" + child.name); err != nil {
				return err
			}
		}
	}

	fs.lock.Lock()
	defer fs.lock.Unlock()
	return dir.remove(entry.name)
}

func (fs *Fs) Rename(oldname, newname string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.readOnly {
		return checkpoint.From(ErrReadOnly)
	}

	oldDir, entry, err := fs.resolve(oldname)
	if err != nil {
		return err
	}
	if oldDir == nil || entry == nil {
		return os.ErrNotExist
	}

	newDir, _, err := fs.resolve(newname)
	if err != nil {
		return err
	}
	if newDir == nil {
		return checkpoint.From(ErrNotDirectory)
	}

	if newDir == oldDir {
		return oldDir.rename(entry.name, leafName(newname))
	}

	isDir := entry.IsDirectory()
	var sub *fatLfnDirectory
	if isDir {
		sub, err = oldDir.openSubdir(entry)
		if err != nil {
			return err
		}
		if err := sub.ensureLoaded(); err != nil {
			return err
		}
	}

	moved, err := newDir.addEntryWithHeader(leafName(newname), entry.header)
	if err != nil {
		return err
	}

	if isDir {
		parentCluster := uint32(0)
		if !newDir.isRoot && newDir.self != nil {
			parentCluster = newDir.self.header.firstCluster()
		}
		for _, child := range sub.order {
			if shortNameOf(child.header).String() == ".." {
				child.header.setFirstCluster(parentCluster)
				break
			}
		}
		if err := sub.flush(); err != nil {
			return err
		}
		sub.self = moved
		moved.subdir = sub
	}

	return oldDir.unlink(entry.name)
}

func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	clean := strings.Trim(filepathToSlash(name), "/")
	if clean == "" {
		return rootFileInfo{}, nil
	}

	_, entry, err := fs.resolve(name)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, os.ErrNotExist
	}
	return entryHeaderFileInfo{ExtendedEntryHeader{EntryHeader: entry.header, ExtendedName: entry.name}}, nil
}

func (fs *Fs) Name() string {
	return "gofat"
}

func (fs *Fs) Chmod(name string, mode os.FileMode) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.readOnly {
		return checkpoint.From(ErrReadOnly)
	}
	_, entry, err := fs.resolve(name)
	if err != nil {
		return err
	}
	if entry == nil {
		return os.ErrNotExist
	}
	if mode&0200 == 0 {
		entry.header.Attribute |= AttrReadOnly
	} else {
		entry.header.Attribute &^= AttrReadOnly
	}
	return entry.parent.flush()
}

func (fs *Fs) Chown(name string, uid, gid int) error {
	// FAT has no concept of ownership; accepted as a no-op for afero.Fs
	// compatibility, matching how the format itself has no uid/gid fields.
	return nil
}

func (fs *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.readOnly {
		return checkpoint.From(ErrReadOnly)
	}
	_, entry, err := fs.resolve(name)
	if err != nil {
		return err
	}
	if entry == nil {
		return os.ErrNotExist
	}
	entry.header.LastAccessDate = FormatDate(atime)
	entry.header.WriteDate = FormatDate(mtime)
	entry.header.WriteTime = FormatTime(mtime)
	return entry.parent.flush()
}

// Flush persists dirty state in the strict order required by spec §4.11:
// boot sector, each FAT copy, directory entries (already write-through on
// every mutation), FSInfo, then the device itself.
func (fs *Fs) Flush() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.bootSector.sector().isDirty() {
		if err := fs.bootSector.sector().write(); err != nil {
			return err
		}
	}

	fatOffset := int64(fs.bootSector.ReservedSectorCount()) * int64(fs.bootSector.BytesPerSector())
	for i := 0; i < int(fs.bootSector.NumFATs()); i++ {
		off := fatOffset + int64(i)*int64(fs.bootSector.SectorsPerFat())*int64(fs.bootSector.BytesPerSector())
		if err := fs.fat.writeCopy(fs.device, off); err != nil {
			return err
		}
	}

	if err := fs.root.flush(); err != nil {
		return err
	}

	if fs.fsInfo != nil {
		fs.fsInfo.refresh(fs.fat)
		if err := fs.fsInfo.write(); err != nil {
			return err
		}
	}

	return fs.device.Flush()
}

// rootFileInfo describes the mount point itself for Stat("/").
type rootFileInfo struct{}

func (rootFileInfo) Name() string       { return "/" }
func (rootFileInfo) Size() int64        { return 0 }
func (rootFileInfo) Mode() os.FileMode  { return os.ModeDir }
func (rootFileInfo) ModTime() time.Time { return time.Time{} }
func (rootFileInfo) IsDir() bool        { return true }
func (rootFileInfo) Sys() interface{}   { return nil }
