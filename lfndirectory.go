package gofat

import (
	"strings"
	"time"

	"github.com/roundwheel/gofat/checkpoint"
)

// FatLfnDirectoryEntry is the public directory view's per-entry handle,
// pairing a resolved long name with its short (8.3) directory entry. Handles
// are cached by fatLfnDirectory so repeated lookups return the same pointer,
// matching the identity invariant of spec §9.
type FatLfnDirectoryEntry struct {
	name    string
	header  EntryHeader
	parent  *fatLfnDirectory
	subdir  *fatLfnDirectory // non-nil once a directory entry has been opened
}

func (e *FatLfnDirectoryEntry) Name() string       { return e.name }
func (e *FatLfnDirectoryEntry) IsDirectory() bool  { return e.header.isDirectory() }
func (e *FatLfnDirectoryEntry) Size() int64        { return int64(e.header.FileSize) }
func (e *FatLfnDirectoryEntry) FirstCluster() uint32 { return e.header.firstCluster() }

// fatLfnDirectory is the public directory abstraction over an
// abstractDirectory: it maintains a lowercased-long-name -> entry index,
// rebuilt whenever the backing store is (re)loaded.
type fatLfnDirectory struct {
	fs       *Fs
	backing  abstractDirectory
	isRoot   bool
	self     *FatLfnDirectoryEntry // nil for the root
	byName   map[string]*FatLfnDirectoryEntry
	order    []*FatLfnDirectoryEntry
	deleted  map[*FatLfnDirectoryEntry]bool
	loaded   bool
}

func newFatLfnDirectory(fs *Fs, backing abstractDirectory, isRoot bool, self *FatLfnDirectoryEntry) *fatLfnDirectory {
	return &fatLfnDirectory{
		fs:      fs,
		backing: backing,
		isRoot:  isRoot,
		self:    self,
		byName:  make(map[string]*FatLfnDirectoryEntry),
		deleted: make(map[*FatLfnDirectoryEntry]bool),
	}
}

// load parses every slot of the backing directory into resolved entries,
// pairing LFN chains with their trailing short entry and validating
// checksums per spec §4.7; a broken chain falls back to the short name
// alone (ErrBrokenLfnChain is absorbed, not propagated).
func (d *fatLfnDirectory) load() error {
	raws, terminated, err := readAllRaw(d.backing)
	if err != nil {
		return err
	}
	if !terminated {
		return checkpoint.From(ErrDirTerminatorMissing)
	}

	d.byName = make(map[string]*FatLfnDirectoryEntry)
	d.order = nil

	var pendingLfn []LongFilenameEntry
	for _, raw := range raws {
		header := decodeEntry(raw)

		if header.isFree() {
			pendingLfn = nil
			continue
		}

		if header.isLongNameSlot() {
			pendingLfn = append([]LongFilenameEntry{decodeLfnSlot(raw)}, pendingLfn...)
			continue
		}

		if header.isVolumeLabel() {
			pendingLfn = nil
			d.order = append(d.order, &FatLfnDirectoryEntry{name: shortNameOf(header).String(), header: header, parent: d})
			continue
		}

		name := shortNameOf(header).String()
		if len(pendingLfn) > 0 {
			if verifyLfnChain(pendingLfn, shortNameOf(header).checksum()) {
				if longName, err := unpackLongName(pendingLfn); err == nil {
					name = longName
				}
			}
			// A broken chain is a soft error (ErrBrokenLfnChain): silently
			// degrade to the short name already assigned above.
			pendingLfn = nil
		}

		entry := &FatLfnDirectoryEntry{name: name, header: header, parent: d}
		d.byName[strings.ToLower(name)] = entry
		d.order = append(d.order, entry)
	}

	d.loaded = true
	return nil
}

func shortNameOf(h EntryHeader) shortName {
	return parseShortName(h.Name)
}

func decodeLfnSlot(raw []byte) LongFilenameEntry {
	var e LongFilenameEntry
	e.Sequence = raw[0]
	for i := 0; i < 5; i++ {
		e.First[i] = uint16(raw[1+i*2]) | uint16(raw[2+i*2])<<8
	}
	e.Attribute = raw[11]
	e.EntryType = raw[12]
	e.Checksum = raw[13]
	for i := 0; i < 6; i++ {
		e.Second[i] = uint16(raw[14+i*2]) | uint16(raw[15+i*2])<<8
	}
	e.Zero[0], e.Zero[1] = raw[26], raw[27]
	for i := 0; i < 2; i++ {
		e.Third[i] = uint16(raw[28+i*2]) | uint16(raw[29+i*2])<<8
	}
	return e
}

func encodeLfnSlot(e LongFilenameEntry) []byte {
	raw := make([]byte, directoryEntrySize)
	raw[0] = e.Sequence
	for i := 0; i < 5; i++ {
		raw[1+i*2] = byte(e.First[i])
		raw[2+i*2] = byte(e.First[i] >> 8)
	}
	raw[11] = e.Attribute
	raw[12] = e.EntryType
	raw[13] = e.Checksum
	for i := 0; i < 6; i++ {
		raw[14+i*2] = byte(e.Second[i])
		raw[15+i*2] = byte(e.Second[i] >> 8)
	}
	raw[26], raw[27] = e.Zero[0], e.Zero[1]
	for i := 0; i < 2; i++ {
		raw[28+i*2] = byte(e.Third[i])
		raw[29+i*2] = byte(e.Third[i] >> 8)
	}
	return raw
}

func (d *fatLfnDirectory) ensureLoaded() error {
	if d.loaded {
		return nil
	}
	return d.load()
}

// getEntry looks up name case-insensitively, matching against long names
// first and falling back to short-name equality.
func (d *fatLfnDirectory) getEntry(name string) (*FatLfnDirectoryEntry, error) {
	if err := d.ensureLoaded(); err != nil {
		return nil, err
	}
	if e, ok := d.byName[strings.ToLower(name)]; ok {
		return e, nil
	}
	upper := strings.ToUpper(name)
	for _, e := range d.order {
		if shortNameOf(e.header).String() == upper {
			return e, nil
		}
	}
	return nil, nil
}

func (d *fatLfnDirectory) uniqueShortName(candidate string) bool {
	upper := strings.ToUpper(candidate)
	for _, e := range d.order {
		if shortNameOf(e.header).String() == upper {
			return false
		}
	}
	return true
}

// addEntry allocates a short-name slot for name (building an LFN chain if
// its canonical short form differs), optionally as a directory with a
// freshly allocated first cluster carrying "." and ".." entries.
func (d *fatLfnDirectory) addEntry(name string, isDirectory bool) (*FatLfnDirectoryEntry, error) {
	if d.fs.readOnly {
		return nil, checkpoint.From(ErrReadOnly)
	}
	if err := d.ensureLoaded(); err != nil {
		return nil, err
	}
	if existing, _ := d.getEntry(name); existing != nil {
		return nil, checkpoint.From(ErrDuplicateName)
	}

	sn, err := shortNameFor(name, d.uniqueShortName)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	header := EntryHeader{
		Name:       sn.bytes(),
		CreateDate: FormatDate(now),
		CreateTime: FormatTime(now),
		WriteDate:  FormatDate(now),
		WriteTime:  FormatTime(now),
	}
	if isDirectory {
		header.Attribute = AttrDirectory
	}

	entry := &FatLfnDirectoryEntry{name: name, header: header, parent: d}

	if isDirectory {
		chain := newClusterChain(d.fs.fat, d.fs.device, d.fs.filesOffset(), int64(d.fs.bootSector.BytesPerCluster()), 0, false)
		if err := chain.setChainLength(int64(d.fs.bootSector.BytesPerCluster())); err != nil {
			return nil, err
		}
		entry.header.setFirstCluster(chain.startCluster())

		subBacking := newClusterChainDirectory(chain)
		sub := newFatLfnDirectory(d.fs, subBacking, false, entry)
		sub.loaded = true

		parentCluster := uint32(0)
		if !d.isRoot && d.self != nil {
			parentCluster = d.self.header.firstCluster()
		}
		dot := EntryHeader{Attribute: AttrDirectory}
		copy(dot.Name[:], ".          ")
		dot.setFirstCluster(chain.startCluster())
		dotdot := EntryHeader{Attribute: AttrDirectory}
		copy(dotdot.Name[:], "..         ")
		dotdot.setFirstCluster(parentCluster)

		if err := writeAllRaw(subBacking, [][]byte{encodeEntry(dot), encodeEntry(dotdot)}); err != nil {
			return nil, err
		}
		for _, h := range []EntryHeader{dot, dotdot} {
			child := &FatLfnDirectoryEntry{name: shortNameOf(h).String(), header: h, parent: sub}
			sub.byName[child.name] = child
			sub.order = append(sub.order, child)
		}

		entry.subdir = sub
	}

	d.byName[strings.ToLower(name)] = entry
	d.order = append(d.order, entry)

	return entry, d.flush()
}

// addEntryWithHeader inserts a new slot for name using an already-populated
// header — preserving its attributes, size, timestamps and first cluster —
// instead of allocating a fresh cluster chain. Used by Fs.Rename when moving
// an existing file or directory into a new parent directory so the original
// chain is reused rather than orphaned.
func (d *fatLfnDirectory) addEntryWithHeader(name string, header EntryHeader) (*FatLfnDirectoryEntry, error) {
	if d.fs.readOnly {
		return nil, checkpoint.From(ErrReadOnly)
	}
	if err := d.ensureLoaded(); err != nil {
		return nil, err
	}
	if existing, _ := d.getEntry(name); existing != nil {
		return nil, checkpoint.From(ErrDuplicateName)
	}

	sn, err := shortNameFor(name, d.uniqueShortName)
	if err != nil {
		return nil, err
	}
	header.Name = sn.bytes()

	entry := &FatLfnDirectoryEntry{name: name, header: header, parent: d}
	d.byName[strings.ToLower(name)] = entry
	d.order = append(d.order, entry)

	return entry, d.flush()
}

func shortNameFor(name string, unique func(string) bool) (shortName, error) {
	if sn, err := newShortNameFromLiteral(name); err == nil && unique(sn.String()) {
		return sn, nil
	}
	return generateShortName(name, unique)
}

// remove marks name's slots deleted and, for a file, frees its cluster
// chain. Non-empty directories are rejected with ErrDirectoryNotEmpty.
func (d *fatLfnDirectory) remove(name string) error {
	if d.fs.readOnly {
		return checkpoint.From(ErrReadOnly)
	}
	entry, err := d.getEntry(name)
	if err != nil {
		return err
	}
	if entry == nil {
		return checkpoint.From(ErrNotFile)
	}

	if entry.IsDirectory() {
		sub, err := d.openSubdir(entry)
		if err != nil {
			return err
		}
		if err := sub.ensureLoaded(); err != nil {
			return err
		}
		liveCount := 0
		for _, child := range sub.order {
			n := shortNameOf(child.header).String()
			if n != "." && n != ".." {
				liveCount++
			}
		}
		if liveCount > 0 {
			return checkpoint.From(ErrDirectoryNotEmpty)
		}
	}

	if entry.header.firstCluster() != 0 {
		if err := d.fs.fat.freeChain(entry.header.firstCluster()); err != nil {
			return err
		}
	}

	return d.unlink(name)
}

// unlink removes name's slot from the directory without freeing its cluster
// chain. Used by Fs.Rename, which transfers ownership of an existing chain
// to a new parent directory instead of deleting it.
func (d *fatLfnDirectory) unlink(name string) error {
	if d.fs.readOnly {
		return checkpoint.From(ErrReadOnly)
	}
	entry, err := d.getEntry(name)
	if err != nil {
		return err
	}
	if entry == nil {
		return checkpoint.From(ErrNotFile)
	}

	delete(d.byName, strings.ToLower(name))
	for i, e := range d.order {
		if e == entry {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}

	return d.flush()
}

func (d *fatLfnDirectory) openSubdir(entry *FatLfnDirectoryEntry) (*fatLfnDirectory, error) {
	if entry.subdir != nil {
		return entry.subdir, nil
	}
	chain := newClusterChain(d.fs.fat, d.fs.device, d.fs.filesOffset(), int64(d.fs.bootSector.BytesPerCluster()), entry.header.firstCluster(), d.fs.readOnly)
	sub := newFatLfnDirectory(d.fs, newClusterChainDirectory(chain), false, entry)
	entry.subdir = sub
	return sub, nil
}

// rename removes the entry under oldName and re-adds it under newName,
// preserving its attributes and first cluster.
func (d *fatLfnDirectory) rename(oldName, newName string) error {
	entry, err := d.getEntry(oldName)
	if err != nil {
		return err
	}
	if entry == nil {
		return checkpoint.From(ErrNotFile)
	}
	if existing, _ := d.getEntry(newName); existing != nil {
		return checkpoint.From(ErrDuplicateName)
	}

	sn, err := shortNameFor(newName, d.uniqueShortName)
	if err != nil {
		return err
	}

	delete(d.byName, strings.ToLower(oldName))
	entry.name = newName
	entry.header.Name = sn.bytes()
	d.byName[strings.ToLower(newName)] = entry

	return d.flush()
}

// flush reserializes every live entry (LFN chain, if its long name differs
// from its short form, followed by the short entry) in insertion order and
// writes through the backing store, per spec §4.9.
func (d *fatLfnDirectory) flush() error {
	if d.fs.readOnly {
		return checkpoint.From(ErrReadOnly)
	}

	var raws [][]byte
	for _, e := range d.order {
		sn := shortNameOf(e.header)
		if !e.header.isVolumeLabel() && e.name != sn.String() {
			slots, err := packLongName(e.name, sn.checksum())
			if err != nil {
				return err
			}
			for i := len(slots) - 1; i >= 0; i-- {
				raws = append(raws, encodeLfnSlot(slots[i]))
			}
		}
		raws = append(raws, encodeEntry(e.header))
	}

	if err := writeAllRaw(d.backing, raws); err != nil {
		return err
	}

	if d.isRoot && d.fs.bootSector.FatType() != FAT32 {
		// The FAT12/16 root also carries the volume label in the boot
		// sector itself; keep both copies coherent on write.
		if label := d.volumeLabel(); label != "" {
			d.fs.bootSector.SetVolumeLabel(label)
			d.fs.bootSector.sector().markDirty()
		}
	}

	return nil
}

func (d *fatLfnDirectory) volumeLabel() string {
	for _, e := range d.order {
		if e.header.isVolumeLabel() {
			return shortNameOf(e.header).String()
		}
	}
	return ""
}

func (d *fatLfnDirectory) setVolumeLabel(label string) error {
	sn, err := newShortNameFromLiteral(label)
	if err != nil {
		return err
	}
	for _, e := range d.order {
		if e.header.isVolumeLabel() {
			e.header.Name = sn.bytes()
			return d.flush()
		}
	}
	entry := &FatLfnDirectoryEntry{name: label, header: EntryHeader{Name: sn.bytes(), Attribute: AttrVolumeID}, parent: d}
	d.order = append(d.order, entry)
	return d.flush()
}
