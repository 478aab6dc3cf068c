// Package storagetest provides an in-memory storage.Backend for tests.
package storagetest

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	"camtrap/internal/models"
	"camtrap/internal/storage"
)

// Backend keeps folders as ordered entry lists. Listing order is insertion
// order, which lets tests pin tie-breaking behaviour.
type Backend struct {
	mu sync.Mutex

	folders   map[string][]models.StorageEntry
	listErr   map[string]error
	linkErr   map[string]error
	linkDelay time.Duration

	LinkLifetime time.Duration
	Now          func() time.Time

	listCalls int
	linkCalls map[string]int
}

func New() *Backend {
	return &Backend{
		folders:      make(map[string][]models.StorageEntry),
		listErr:      make(map[string]error),
		linkErr:      make(map[string]error),
		linkCalls:    make(map[string]int),
		LinkLifetime: 4 * time.Hour,
		Now:          time.Now,
	}
}

var _ storage.Backend = (*Backend)(nil)

// AddFolder registers an empty folder.
func (b *Backend) AddFolder(folder string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	folder = clean(folder)
	if _, ok := b.folders[folder]; !ok {
		b.folders[folder] = nil
	}
}

// AddFile appends a file to folder, creating the folder if needed.
func (b *Backend) AddFile(folder, name string, modified time.Time) models.StorageEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	folder = clean(folder)
	entry := models.StorageEntry{
		ID:       "id:" + path.Join(folder, name),
		Name:     name,
		Path:     path.Join(folder, name),
		Modified: modified,
		Size:     int64(len(name)) * 1024,
	}
	b.folders[folder] = append(b.folders[folder], entry)
	return entry
}

// FailList makes ListFolder on folder return err.
func (b *Backend) FailList(folder string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listErr[clean(folder)] = err
}

// FailLink makes GetTemporaryLink on filePath return err.
func (b *Backend) FailLink(filePath string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.linkErr[clean(filePath)] = err
}

// SetLinkDelay slows every GetTemporaryLink call down; the call still
// honours context cancellation.
func (b *Backend) SetLinkDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.linkDelay = d
}

func (b *Backend) ListCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listCalls
}

func (b *Backend) LinkCalls(filePath string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.linkCalls[clean(filePath)]
}

func (b *Backend) ListFolder(ctx context.Context, folder string) ([]models.StorageEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listCalls++

	folder = clean(folder)
	if err := b.listErr[folder]; err != nil {
		return nil, err
	}
	entries, ok := b.folders[folder]
	if !ok {
		return nil, &storage.NotFoundError{Path: folder}
	}
	out := make([]models.StorageEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (b *Backend) GetTemporaryLink(ctx context.Context, filePath string) (models.TemporaryLink, error) {
	filePath = clean(filePath)

	b.mu.Lock()
	b.linkCalls[filePath]++
	delay := b.linkDelay
	err := b.linkErr[filePath]
	exists := b.fileExists(filePath)
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.TemporaryLink{}, ctx.Err()
		}
	}
	if err != nil {
		return models.TemporaryLink{}, err
	}
	if !exists {
		return models.TemporaryLink{}, &storage.NotFoundError{Path: filePath}
	}
	return models.TemporaryLink{
		URL:       "https://links.test/tl" + filePath,
		ExpiresAt: b.Now().Add(b.LinkLifetime),
	}, nil
}

func (b *Backend) GetMetadata(ctx context.Context, p string) (models.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return models.Metadata{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	p = clean(p)
	if err := b.listErr[p]; err != nil {
		return models.Metadata{}, err
	}
	if _, ok := b.folders[p]; ok {
		return models.Metadata{Kind: models.EntryKindFolder, Name: path.Base(p), Path: p}, nil
	}
	for _, entries := range b.folders {
		for _, e := range entries {
			if e.Path == p {
				return models.Metadata{Kind: models.EntryKindFile, Name: e.Name, Path: e.Path, Modified: e.Modified, Size: e.Size}, nil
			}
		}
	}
	return models.Metadata{}, &storage.NotFoundError{Path: p}
}

func (b *Backend) fileExists(p string) bool {
	entries := b.folders[path.Dir(p)]
	for _, e := range entries {
		if e.Path == p {
			return true
		}
	}
	return false
}

func clean(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
