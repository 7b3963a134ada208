// Command mkfs formats a disk image and copies a host skeleton
// directory tree into it. Grounded on the teacher's mkfs/mkfs.go
// almost verbatim in control flow (filepath.WalkDir, chunked reads
// via copydata), retargeted to call src/filesys.Format/Create/Mkdir
// instead of ufs.Ufs_t.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"blockdev"
	"filesys"
)

const defaultSectors = 1 << 16 // 32MiB image at 512 bytes/sector

func copydata(src string, fs *filesys.Fs_t, cwd *filesys.Cwd_t, dst string) {
	srcFile, err := os.Open(src)
	if err != nil {
		panic(err)
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		panic(err)
	}
	if errv := fs.Create(cwd, dst, uint32(info.Size())); errv != 0 {
		fmt.Printf("failed to create %v: %v\n", dst, errv)
		return
	}
	in, errv := fs.Lookup(cwd, dst)
	if errv != 0 {
		fmt.Printf("failed to open %v after create: %v\n", dst, errv)
		return
	}
	defer fs.Inodes.Close(in)

	buf := make([]byte, 4096)
	ofs := uint32(0)
	for {
		n, readErr := srcFile.Read(buf)
		if readErr != nil && readErr != io.EOF {
			panic(readErr)
		}
		if n > 0 {
			got := fs.Inodes.WriteAt(in, buf[:n], ofs)
			ofs += uint32(got)
		}
		if readErr == io.EOF {
			break
		}
	}
}

func addfiles(fs *filesys.Fs_t, cwd *filesys.Cwd_t, skeldir string) {
	err := filepath.WalkDir(skeldir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			fmt.Printf("failed to access %q: %v\n", path, err)
			return err
		}
		rel := strings.TrimPrefix(path, skeldir)
		if rel == "" {
			return nil
		}
		rel = "/" + strings.TrimPrefix(rel, "/")

		if d.IsDir() {
			if errv := fs.Mkdir(cwd, rel); errv != 0 {
				fmt.Printf("failed to create dir %v: %v\n", rel, errv)
			}
			return nil
		}
		copydata(path, fs, cwd, rel)
		return nil
	})
	if err != nil {
		fmt.Printf("error walking the path %q: %v\n", skeldir, err)
		os.Exit(1)
	}
}

func main() {
	if len(os.Args) < 3 {
		fmt.Printf("usage: mkfs <output image> <skel dir>\n")
		os.Exit(1)
	}
	image := os.Args[1]
	skeldir := os.Args[2]

	disk, err := blockdev.CreateFileDisk(image, defaultSectors)
	if err != nil {
		fmt.Printf("failed to create image %v: %v\n", image, err)
		os.Exit(1)
	}
	defer disk.Close()

	fs, err := filesys.Format(disk)
	if err != nil {
		fmt.Printf("format failed: %v\n", err)
		os.Exit(1)
	}
	cwd := fs.RootCwd()

	addfiles(fs, cwd, skeldir)

	if err := fs.Unmount(); err != nil {
		fmt.Printf("unmount failed: %v\n", err)
		os.Exit(1)
	}
	if err := disk.Sync(); err != nil {
		fmt.Printf("sync failed: %v\n", err)
		os.Exit(1)
	}
}
