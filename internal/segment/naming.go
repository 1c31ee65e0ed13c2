package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FileExtension is the suffix of segment files.
const FileExtension = ".seg"

// FileName returns the file name of segment id.
func FileName(id uint64) string {
	return fmt.Sprintf("%016x%s", id, FileExtension)
}

// ParseFileName extracts the segment id from a file name produced by FileName.
func ParseFileName(name string) (uint64, bool) {
	if !strings.HasSuffix(name, FileExtension) {
		return 0, false
	}
	base := strings.TrimSuffix(name, FileExtension)
	if len(base) != 16 {
		return 0, false
	}
	id, err := strconv.ParseUint(base, 16, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// Path joins dir and the file name of segment id.
func Path(dir string, id uint64) string {
	return filepath.Join(dir, FileName(id))
}

// List returns the ids of all segment files in dir in ascending order.
// Files that do not follow the naming convention are ignored.
func List(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := ParseFileName(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// SyncDir fsyncs a directory so that file creations, renames and removals are durable.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
