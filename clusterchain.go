package gofat

import (
	"github.com/roundwheel/gofat/checkpoint"
)

// clusterChain is a byte-addressable view over a (possibly empty) chain of
// clusters rooted at startCluster. It never interprets the bytes it stores;
// FatFile and AbstractDirectory layer their own meaning on top.
type clusterChain struct {
	fat               *Fat
	device            BlockDevice
	filesOffset       int64
	bytesPerCluster   int64
	start             uint32
	readOnly          bool
}

func newClusterChain(fat *Fat, device BlockDevice, filesOffset int64, bytesPerCluster int64, start uint32, readOnly bool) *clusterChain {
	return &clusterChain{
		fat:             fat,
		device:          device,
		filesOffset:     filesOffset,
		bytesPerCluster: bytesPerCluster,
		start:           start,
		readOnly:        readOnly,
	}
}

func (c *clusterChain) startCluster() uint32 {
	return c.start
}

func (c *clusterChain) setStartCluster(n uint32) {
	c.start = n
}

// clusterOffset returns the device byte offset of the start of cluster n.
func (c *clusterChain) clusterOffset(n uint32) int64 {
	return c.filesOffset + int64(n-MinCluster)*c.bytesPerCluster
}

// length returns the chain's total byte capacity: chainLength * bytesPerCluster.
func (c *clusterChain) length() (int64, error) {
	if c.start == 0 {
		return 0, nil
	}
	n, err := c.fat.getChainLength(c.start)
	if err != nil {
		return 0, err
	}
	return int64(n) * c.bytesPerCluster, nil
}

// zeroCluster overwrites a whole cluster with zero bytes, used when a chain
// grows so newly allocated space never exposes stale device contents.
func (c *clusterChain) zeroCluster(n uint32) error {
	buf := make([]byte, c.bytesPerCluster)
	if _, err := c.device.WriteAt(buf, c.clusterOffset(n)); err != nil {
		return checkpoint.From(err)
	}
	return nil
}

// setChainLength grows or shrinks the chain to hold exactly newLength bytes,
// rounded up to a whole number of clusters. Growing zero-fills new clusters;
// shrinking truncates the chain, writes a fresh EOC at the new tail and
// frees the discarded suffix.
func (c *clusterChain) setChainLength(newLength int64) error {
	if c.readOnly {
		return checkpoint.From(ErrReadOnly)
	}

	newCount := uint32((newLength + c.bytesPerCluster - 1) / c.bytesPerCluster)

	if c.start == 0 {
		if newCount == 0 {
			return nil
		}
		first, err := c.fat.allocNew()
		if err != nil {
			return err
		}
		if err := c.zeroCluster(first); err != nil {
			return err
		}
		c.start = first
		newCount--
		prev := first
		for i := uint32(0); i < newCount; i++ {
			n, err := c.fat.allocAppend(prev)
			if err != nil {
				return err
			}
			if err := c.zeroCluster(n); err != nil {
				return err
			}
			prev = n
		}
		return nil
	}

	chain, err := c.fat.getChain(c.start)
	if err != nil {
		return err
	}

	switch {
	case uint32(len(chain)) == newCount:
		return nil
	case newCount == 0:
		if err := c.fat.freeChain(c.start); err != nil {
			return err
		}
		c.start = 0
		return nil
	case uint32(len(chain)) < newCount:
		prev := chain[len(chain)-1]
		for i := uint32(len(chain)); i < newCount; i++ {
			n, err := c.fat.allocAppend(prev)
			if err != nil {
				return err
			}
			if err := c.zeroCluster(n); err != nil {
				return err
			}
			prev = n
		}
		return nil
	default:
		// Shrinking: mark the new tail EOC, free everything after it.
		newTail := chain[newCount-1]
		firstFreed := chain[newCount]
		c.fat.set(newTail, c.fat.eocValue())
		if err := c.fat.freeChain(firstFreed); err != nil {
			return err
		}
		return nil
	}
}

// read fills buffer with the bytes at logical offset..offset+len(buffer),
// walking the chain to find the clusters involved. It never reads past the
// chain's own capacity; callers bound reads by the logical file size.
func (c *clusterChain) read(offset int64, buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	chain, err := c.fat.getChain(c.start)
	if err != nil {
		return 0, err
	}

	total := int64(len(chain)) * c.bytesPerCluster
	if offset >= total {
		return 0, nil
	}

	read := 0
	remaining := buffer
	pos := offset
	for pos < total && len(remaining) > 0 {
		clusterIdx := pos / c.bytesPerCluster
		clusterOff := pos % c.bytesPerCluster
		n := chain[clusterIdx]

		chunk := c.bytesPerCluster - clusterOff
		if int64(len(remaining)) < chunk {
			chunk = int64(len(remaining))
		}

		m, err := c.device.ReadAt(remaining[:chunk], c.clusterOffset(n)+clusterOff)
		read += m
		pos += int64(m)
		remaining = remaining[m:]
		if err != nil {
			return read, checkpoint.From(err)
		}
		if int64(m) < chunk {
			break
		}
	}

	return read, nil
}

// write stores buffer at logical offset, growing the chain implicitly if
// offset+len(buffer) exceeds the current capacity. It never shrinks.
func (c *clusterChain) write(offset int64, buffer []byte) (int, error) {
	if c.readOnly {
		return 0, checkpoint.From(ErrReadOnly)
	}
	if len(buffer) == 0 {
		return 0, nil
	}

	need := offset + int64(len(buffer))
	cur, err := c.length()
	if err != nil {
		return 0, err
	}
	if need > cur {
		if err := c.setChainLength(need); err != nil {
			return 0, err
		}
	}

	chain, err := c.fat.getChain(c.start)
	if err != nil {
		return 0, err
	}

	written := 0
	remaining := buffer
	pos := offset
	for len(remaining) > 0 {
		clusterIdx := pos / c.bytesPerCluster
		clusterOff := pos % c.bytesPerCluster
		n := chain[clusterIdx]

		chunk := c.bytesPerCluster - clusterOff
		if int64(len(remaining)) < chunk {
			chunk = int64(len(remaining))
		}

		m, err := c.device.WriteAt(remaining[:chunk], c.clusterOffset(n)+clusterOff)
		written += m
		pos += int64(m)
		remaining = remaining[m:]
		if err != nil {
			return written, checkpoint.From(err)
		}
	}

	return written, nil
}
