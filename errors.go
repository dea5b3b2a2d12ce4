package gofat

import "errors"

// Error kinds returned by gofat operations. Callers should use errors.Is
// against these sentinels; the underlying error is usually wrapped by
// checkpoint.Wrap so the original cause is still reachable via errors.Unwrap.
var (
	// ErrUnrecognizedFormat means no boot sector dialect validated the device.
	ErrUnrecognizedFormat = errors.New("gofat: disk format not recognized")

	// ErrFatMismatch means FAT copy i disagrees with FAT copy 0 on mount.
	ErrFatMismatch = errors.New("gofat: fat copies differ")
	// ErrFatChainCycle means a cluster chain loops back on itself.
	ErrFatChainCycle = errors.New("gofat: cluster chain contains a cycle")
	// ErrBadClusterInChain means a chain walk hit a reserved/bad FAT entry.
	ErrBadClusterInChain = errors.New("gofat: chain references a bad cluster")
	// ErrFsInfoStale means the FAT32 FSInfo free-cluster count looks newer than reality.
	ErrFsInfoStale = errors.New("gofat: fsinfo free cluster count is stale")
	// ErrBrokenLfnChain is a soft error: it is absorbed and the short name used instead.
	ErrBrokenLfnChain = errors.New("gofat: long file name chain is broken")
	// ErrDirTerminatorMissing means a directory ran out of slots before a 0x00 terminator.
	ErrDirTerminatorMissing = errors.New("gofat: directory has no end-of-entries terminator")

	// ErrNotDirectory means a file operation that requires a directory got a file.
	ErrNotDirectory = errors.New("gofat: not a directory")
	// ErrNotFile means a directory operation that requires a file got a directory.
	ErrNotFile = errors.New("gofat: not a file")
	// ErrDirectoryNotEmpty means remove() was called on a non-empty directory.
	ErrDirectoryNotEmpty = errors.New("gofat: directory not empty")
	// ErrNameTooLong means a long name exceeds 255 UCS-2 code units.
	ErrNameTooLong = errors.New("gofat: name too long")
	// ErrIllegalShortName means a short name contains a character outside the 8.3 charset.
	ErrIllegalShortName = errors.New("gofat: illegal short name")
	// ErrDuplicateName means addFile/addDirectory was called with a name already present.
	ErrDuplicateName = errors.New("gofat: duplicate name")

	// ErrNoFreeCluster means Fat.allocNew could not find a free cluster.
	ErrNoFreeCluster = errors.New("gofat: no free cluster")
	// ErrRootDirFull means the fixed-size FAT12/16 root directory has no free slot.
	ErrRootDirFull = errors.New("gofat: root directory is full")
	// ErrDeviceTooSmall means the device is smaller than the smallest supported volume.
	ErrDeviceTooSmall = errors.New("gofat: device too small for requested fat type")
	// ErrDeviceTooLarge means the device is larger than the chosen fat type supports.
	ErrDeviceTooLarge = errors.New("gofat: device too large for requested fat type")

	// ErrReadOnly means a mutating operation was attempted on a read-only mount.
	ErrReadOnly = errors.New("gofat: file system is mounted read-only")
)
