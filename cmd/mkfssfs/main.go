// Command mkfs.sfs writes a fresh SFS image to a device or regular file.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"unsafe"

	"github.com/urfave/cli/v2"

	"github.com/sfs-fs/sfs/inode"
	"github.com/sfs-fs/sfs/storage"
	"github.com/sfs-fs/sfs/volume"
	"github.com/sfs-fs/sfs/volume/presets"
)

// Exit codes match the spec's offline-formatter contract: 0 for success or
// a user declining the confirmation prompt, 4 for a usage error, 16 for
// anything fatal encountered while formatting.
const (
	exitOK    = 0
	exitUsage = 4
	exitFatal = 16
)

// blkGetSize64 is Linux's BLKGETSIZE64 ioctl request number, which reports a
// block device's size in bytes. There's no cgo dependency available for
// this in the pack, so it's issued directly via syscall.Syscall rather than
// pulling in a dedicated ioctl package.
const blkGetSize64 = 0x80081272

func deviceSizeBytes(f *os.File) (uint64, error) {
	var size uint64
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), blkGetSize64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, errno
	}
	return size, nil
}

func isBlockDevice(info os.FileInfo) bool {
	return info.Mode()&os.ModeDevice != 0 && info.Mode()&os.ModeCharDevice == 0
}

// mountedDevices reads /proc/mounts (Linux) for every currently-mounted
// source path, so Format can refuse to clobber a live filesystem.
func mountedDevices() (map[string]bool, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, err
	}
	defer f.Close()

	mounted := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			mounted[fields[0]] = true
		}
	}
	return mounted, scanner.Err()
}

func confirmRegularFile(path string) bool {
	fmt.Fprintf(os.Stderr, "%s is a regular file, not a block device. Format it anyway? [y/N] ", path)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	return line == "y" || line == "Y"
}

func run(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: mkfs.sfs [-i inode_count] [-n max_namelen] [-preset name] <device> [<block_count>]", exitUsage)
	}
	path := c.Args().Get(0)

	mounted, err := mountedDevices()
	if err != nil {
		return cli.Exit(fmt.Sprintf("checking mount table: %v", err), exitFatal)
	}
	if mounted[path] {
		return cli.Exit(fmt.Sprintf("%s is currently mounted, refusing to format", path), exitFatal)
	}

	info, err := os.Stat(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("stat %s: %v", path, err), exitFatal)
	}
	if !isBlockDevice(info) {
		if !confirmRegularFile(path) {
			return nil
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return cli.Exit(fmt.Sprintf("open %s: %v", path, err), exitFatal)
	}
	defer f.Close()

	var totalBlocks uint32
	if c.NArg() >= 2 {
		n, err := strconv.ParseUint(c.Args().Get(1), 10, 32)
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid block_count %q: %v", c.Args().Get(1), err), exitUsage)
		}
		totalBlocks = uint32(n)
	} else if preset := c.String("preset"); preset != "" {
		p, ok := presets.Find(preset)
		if !ok {
			return cli.Exit(fmt.Sprintf("unknown preset %q (known: %s)", preset, strings.Join(presets.Names(), ", ")), exitUsage)
		}
		totalBlocks = p.TotalBlocks
	} else if isBlockDevice(info) {
		sizeBytes, err := deviceSizeBytes(f)
		if err != nil {
			return cli.Exit(fmt.Sprintf("determining device size: %v", err), exitFatal)
		}
		// Reported in bytes; 512-byte sectors, 8 sectors per 4096-byte block.
		totalBlocks = uint32(sizeBytes / 512 / 8)
	} else {
		blocks, err := storage.DetermineBlockCount(f)
		if err != nil {
			return cli.Exit(fmt.Sprintf("determining file size: %v", err), exitFatal)
		}
		totalBlocks = uint32(blocks)
	}
	if totalBlocks == 0 {
		return cli.Exit("device reports zero usable blocks", exitUsage)
	}

	inodeCount := uint32(c.Int("inode-count"))
	if inodeCount == 0 {
		inodeCount = totalBlocks / 100
	}
	if inodeCount < inode.PerBlock {
		inodeCount = inode.PerBlock
	}
	if rem := inodeCount % inode.PerBlock; rem != 0 {
		inodeCount += inode.PerBlock - rem
	}

	opts := volume.FormatOptions{
		InodeCount: inodeCount,
		MaxNameLen: uint16(c.Int("max-namelen")),
	}

	device := storage.NewDevice(f, storage.BlockNum(totalBlocks))
	if err := volume.Format(device, totalBlocks, opts); err != nil {
		return cli.Exit(fmt.Sprintf("format failed: %v", err), exitFatal)
	}

	fmt.Fprintf(os.Stderr, "%s: %d blocks, %d inodes\n", path, totalBlocks, inodeCount)
	return nil
}

func main() {
	app := &cli.App{
		Name:      "mkfs.sfs",
		Usage:     "write a fresh SFS filesystem image",
		ArgsUsage: "<device> [<block_count>]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "inode-count",
				Aliases: []string{"i"},
				Usage:   "number of inodes to allocate (default: block_count/100, rounded up)",
			},
			&cli.IntFlag{
				Name:    "max-namelen",
				Aliases: []string{"n"},
				Usage:   "maximum directory entry name length, 0 for unlimited",
			},
			&cli.StringFlag{
				Name:  "preset",
				Usage: "use a named size preset instead of an explicit block_count (" + strings.Join(presets.Names(), ", ") + ")",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			fmt.Fprintln(os.Stderr, exitErr.Error())
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFatal)
	}
}
