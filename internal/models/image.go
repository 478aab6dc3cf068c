package models

import "time"

// StorageEntry is one file record from a backend folder listing.
type StorageEntry struct {
	ID       string
	Name     string
	Path     string
	Modified time.Time
	Size     int64
}

// ResolvedImage is a listed image together with a temporary direct link.
// URL stops working after the backend's link lifetime and must not be
// persisted.
type ResolvedImage struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	URL      string    `json:"url"`
	Path     string    `json:"path"`
	Modified time.Time `json:"modified"`
	Size     int64     `json:"size"`
}

// TemporaryLink is a backend-issued URL with its expiry.
type TemporaryLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the link is unusable at now once margin is
// subtracted from its lifetime.
func (l TemporaryLink) Expired(now time.Time, margin time.Duration) bool {
	return !now.Before(l.ExpiresAt.Add(-margin))
}

type EntryKind string

const (
	EntryKindFile   EntryKind = "file"
	EntryKindFolder EntryKind = "folder"
)

// Metadata describes a single path as reported by the backend.
type Metadata struct {
	Kind     EntryKind
	Name     string
	Path     string
	Modified time.Time
	Size     int64
}
