package cache

import "path/filepath"

const (
	// OriginalDirectory is the subdirectory (relative to the data
	// directory) holding original files.
	OriginalDirectory = "pictures"
	// CacheDirectory is the subdirectory (relative to the data directory)
	// holding cached derived renditions.
	CacheDirectory = "cache"
)

// Layout is the pure mapping from domain entities to on-disk paths,
// configured with a data_directory root.
type Layout struct {
	DataDirectory string
}

// NewLayout configures a Layout rooted at dataDirectory.
func NewLayout(dataDirectory string) Layout {
	return Layout{DataDirectory: dataDirectory}
}

// OriginalsDir is the absolute directory holding original files.
func (l Layout) OriginalsDir() string {
	return filepath.Join(l.DataDirectory, OriginalDirectory)
}

// CacheDir is the absolute directory holding cached derived renditions.
func (l Layout) CacheDir() string {
	return filepath.Join(l.DataDirectory, CacheDirectory)
}

// OriginalFilename is the bare filename (no directory) of an original item.
func (l Layout) OriginalFilename(item *OriginalItem) string {
	return item.ID + "." + Ext(item.Format)
}

// OriginalAbs is the absolute path of an original item's file.
func (l Layout) OriginalAbs(item *OriginalItem) string {
	return filepath.Join(l.OriginalsDir(), l.OriginalFilename(item))
}

// OriginalRel is the path of an original item's file, relative to the data directory.
func (l Layout) OriginalRel(item *OriginalItem) string {
	return filepath.Join(OriginalDirectory, l.OriginalFilename(item))
}

// DerivedAbs is the absolute path of a derived item's cached file.
func (l Layout) DerivedAbs(item *DerivedItem) string {
	return filepath.Join(l.CacheDir(), item.ID)
}

// DerivedRel is the path of a derived item's cached file, relative to the data directory.
func (l Layout) DerivedRel(item *DerivedItem) string {
	return filepath.Join(CacheDirectory, item.ID)
}
