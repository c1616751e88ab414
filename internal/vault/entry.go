package vault

import "time"

// ResourceEntry is one listing row. Entries are built per call from the
// filesystem and never persisted.
type ResourceEntry struct {
	Name         string    `json:"name"`
	RelativePath string    `json:"relativePath"` // slash-joined, root-relative, no leading slash
	IsDirectory  bool      `json:"isDirectory"`
	SizeBytes    int64     `json:"sizeBytes"` // 0 for directories
	LastModified time.Time `json:"lastModified"`
}

// TrashEntry is one soft-deleted item as reported to callers.
type TrashEntry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	OriginalPath string    `json:"originalPath"`
	IsDirectory  bool      `json:"isDirectory"`
	DeletedAt    time.Time `json:"deletedAt"`
	SizeBytes    int64     `json:"sizeBytes"`
}

// TrashMetadata is the sidecar document persisted next to each trashed
// item. The id always matches the name of the containing directory; a
// sidecar that is missing, unreadable, or mismatched makes the entry
// invisible to ListTrash but never fails enumeration.
type TrashMetadata struct {
	ID           string    `json:"id"`
	OriginalPath string    `json:"originalPath"`
	OriginalName string    `json:"originalName"`
	IsDirectory  bool      `json:"isDirectory"`
	DeletedAt    time.Time `json:"deletedAt"`
	SizeBytes    int64     `json:"sizeBytes"`
}
