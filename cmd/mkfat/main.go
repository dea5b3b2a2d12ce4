// Command mkfat creates a fresh super-floppy FAT volume on a file or block
// device image.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/roundwheel/gofat"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

func main() {
	var (
		fatType = pflag.StringP("fat-type", "t", "auto", "fat type to create: auto, fat12, fat16 or fat32")
		label   = pflag.StringP("label", "l", "", "volume label (max 11 characters)")
		sizeMB  = pflag.Int64P("size", "s", 0, "size in MiB for a newly created image file (ignored if the target already exists)")
	)
	pflag.Parse()

	args := pflag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: mkfat [flags] <image-path>")
		pflag.PrintDefaults()
		os.Exit(2)
	}
	path := args[0]

	device, err := openOrCreateDevice(path, *sizeMB)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mkfat:", err)
		os.Exit(1)
	}

	formatter := gofat.NewSuperFloppyFormatter(device, rand.NewSource(int64(os.Getpid())))
	if t, err := parseFatType(*fatType); err != nil {
		fmt.Fprintln(os.Stderr, "mkfat:", err)
		os.Exit(1)
	} else if t != nil {
		formatter = formatter.WithFatType(*t)
	}
	if *label != "" {
		formatter = formatter.WithLabel(*label)
	}

	fs, err := formatter.Format()
	if err != nil {
		fmt.Fprintln(os.Stderr, "mkfat: format failed:", err)
		os.Exit(1)
	}

	fmt.Printf("created %v volume %q at %s (%d bytes free)\n", fs.FSType(), fs.Label(), path, fs.FreeSpace())
}

func parseFatType(s string) (*gofat.FATType, error) {
	var t gofat.FATType
	switch strings.ToLower(s) {
	case "", "auto":
		return nil, nil
	case "fat12":
		t = gofat.FAT12
	case "fat16":
		t = gofat.FAT16
	case "fat32":
		t = gofat.FAT32
	default:
		return nil, fmt.Errorf("unknown fat type %q", s)
	}
	return &t, nil
}

const deviceSectorSize = 512

func openOrCreateDevice(path string, sizeMB int64) (gofat.BlockDevice, error) {
	osFs := afero.NewOsFs()

	if _, err := osFs.Stat(path); err != nil {
		if sizeMB <= 0 {
			return nil, fmt.Errorf("%s does not exist; pass --size to create it", path)
		}

		f, err := osFs.Create(path)
		if err != nil {
			return nil, err
		}
		if err := f.Truncate(sizeMB * 1024 * 1024); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
	}

	f, err := osFs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return gofat.NewFileBlockDevice(f, deviceSectorSize, false), nil
}
