// Package presets loads named volume-size presets from a CSV table, the
// way the teacher's disk-geometry table drove named presets for its older
// formats — here repurposed for `mkfs.sfs -preset <name>` instead of
// picking a raw block count by hand.
package presets

import (
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/sfs-fs/sfs/errors"
)

// Preset names a combination of total blocks and inode count big enough
// for a particular rough workload, so `-preset floppy` means something
// without the caller doing the bitmap-sizing arithmetic by hand.
type Preset struct {
	Name        string `csv:"name"`
	Description string `csv:"description"`
	TotalBlocks uint32 `csv:"total_blocks"`
	InodeCount  uint32 `csv:"inode_count"`
}

// defaultTable is embedded rather than read from disk so `mkfs.sfs` works
// without a data file alongside the binary; a deployment can still supply
// its own CSV via Load.
const defaultTable = `name,description,total_blocks,inode_count
tiny,1 MiB image for quick smoke tests,256,64
floppy,1.44 MiB-equivalent image,368,64
small,16 MiB image for light development use,4096,1024
medium,128 MiB image,32768,8192
large,1 GiB image,262144,65536
`

// Load parses a presets CSV (the same shape as defaultTable) into a name
// lookup table.
func Load(csvText string) (map[string]Preset, error) {
	var rows []Preset
	if err := gocsv.UnmarshalString(csvText, &rows); err != nil {
		return nil, errors.ErrInvalid.WrapError(err)
	}
	table := make(map[string]Preset, len(rows))
	for _, row := range rows {
		table[row.Name] = row
	}
	return table, nil
}

// Default returns the built-in preset table.
func Default() map[string]Preset {
	table, err := Load(defaultTable)
	if err != nil {
		// The built-in table is a compile-time constant; a parse failure
		// here means the table itself is malformed, not a runtime
		// condition callers can recover from.
		panic(err)
	}
	return table
}

// Names returns the preset names in Default, for CLI usage text.
func Names() []string {
	names := make([]string, 0, 8)
	for name := range Default() {
		names = append(names, name)
	}
	return names
}

// Find looks up a preset name in the default table, case-insensitively.
func Find(name string) (Preset, bool) {
	p, ok := Default()[strings.ToLower(name)]
	return p, ok
}
