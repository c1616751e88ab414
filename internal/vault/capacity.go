package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CapacitySnapshot is a point-in-time view of the storage behind one
// namespace root.
type CapacitySnapshot struct {
	Namespace            string    `json:"namespace"`
	Timestamp            time.Time `json:"timestamp"`
	VolumeTotalBytes     int64     `json:"volumeTotalBytes"`
	VolumeUsedBytes      int64     `json:"volumeUsedBytes"`
	VolumeAvailableBytes int64     `json:"volumeAvailableBytes"`
	ContentBytes         int64     `json:"contentBytes"`
	TrashBytes           int64     `json:"trashBytes"`
}

// Capacity reports volume statistics for the namespace root together
// with the bytes consumed by its visible content and by its trash.
func (s *Store) Capacity(ns Namespace) (CapacitySnapshot, error) {
	root := s.Root(ns)
	total, used, available, err := volumeStats(root)
	if err != nil {
		return CapacitySnapshot{}, err
	}

	snap := CapacitySnapshot{
		Namespace:            ns.String(),
		Timestamp:            time.Now().UTC(),
		VolumeTotalBytes:     total,
		VolumeUsedBytes:      used,
		VolumeAvailableBytes: available,
		TrashBytes:           dirSize(s.trashDir(ns)),
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return CapacitySnapshot{}, fmt.Errorf("read namespace root: %w", err)
	}
	for _, de := range entries {
		if isReservedName(de.Name()) {
			continue
		}
		if de.IsDir() {
			snap.ContentBytes += dirSize(filepath.Join(root, de.Name()))
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		snap.ContentBytes += info.Size()
	}
	return snap, nil
}
