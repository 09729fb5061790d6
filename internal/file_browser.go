package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type fileItem struct {
	Name  string
	Path  string
	IsDir bool
	Size  int64
}

// browseDirectory lists dir for /ls: directories first, hidden entries
// skipped.
func browseDirectory(dir string) ([]fileItem, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	items := make([]fileItem, 0, len(entries))
	for _, entry := range entries {
		if len(entry.Name()) > 0 && entry.Name()[0] == '.' {
			continue
		}
		item := fileItem{
			Name:  entry.Name(),
			Path:  filepath.Join(dir, entry.Name()),
			IsDir: entry.IsDir(),
		}
		if !entry.IsDir() {
			if info, err := entry.Info(); err == nil {
				item.Size = info.Size()
			}
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func defaultBrowsePath() string {
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// describeFileItem renders one /ls line.
func describeFileItem(item fileItem) string {
	if item.IsDir {
		return item.Name + "/"
	}
	return fmt.Sprintf("%s  (%s)", item.Name, formatFileSize(item.Size))
}

func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
