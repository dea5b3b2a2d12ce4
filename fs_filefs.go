package gofat

import "github.com/roundwheel/gofat/checkpoint"

// readFileAt satisfies fatFileFs for File: it walks the cluster chain
// rooted at cluster and reads up to readSize bytes starting at offset,
// bounded by fileSize (spec §4.10's "read exactly min(buflen, length-offset)
// bytes" rule).
func (fs *Fs) readFileAt(cluster fatEntry, fileSize int64, offset int64, readSize int64) ([]byte, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if offset >= fileSize {
		return nil, nil
	}
	if offset+readSize > fileSize {
		readSize = fileSize - offset
	}

	chain := newClusterChain(fs.fat, fs.device, fs.filesOff, int64(fs.bootSector.BytesPerCluster()), cluster.Value(), true)
	buf := make([]byte, readSize)
	n, err := chain.read(offset, buf)
	if err != nil {
		return buf[:n], err
	}
	return buf[:n], nil
}

// readRoot lists the root directory's live entries.
func (fs *Fs) readRoot() ([]ExtendedEntryHeader, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if err := fs.root.ensureLoaded(); err != nil {
		return nil, err
	}
	return listEntries(fs.root), nil
}

// readDir lists the live entries of the directory whose first cluster is
// given, excluding the synthetic "." and ".." slots.
func (fs *Fs) readDir(cluster fatEntry) ([]ExtendedEntryHeader, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	chain := newClusterChain(fs.fat, fs.device, fs.filesOff, int64(fs.bootSector.BytesPerCluster()), cluster.Value(), true)
	dir := newFatLfnDirectory(fs, newClusterChainDirectory(chain), false, nil)
	if err := dir.load(); err != nil {
		return nil, checkpoint.From(err)
	}
	return listEntries(dir), nil
}

func listEntries(d *fatLfnDirectory) []ExtendedEntryHeader {
	var out []ExtendedEntryHeader
	for _, e := range d.order {
		name := shortNameOf(e.header).String()
		if name == "." || name == ".." || e.header.isVolumeLabel() {
			continue
		}
		out = append(out, ExtendedEntryHeader{EntryHeader: e.header, ExtendedName: e.name})
	}
	return out
}
