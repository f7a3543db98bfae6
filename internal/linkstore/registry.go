// Package linkstore records which spreadsheet belongs to which folder so that
// concurrent runs on the same folder agree on one destination.
//
// A claim is a conditional create: the first claimant wins and every later
// claimant is told who won. Backends are Firestore, Cloud Storage and an
// in-process map for a single server.
package linkstore

import (
	"context"
	"sync"
	"time"
)

// Link ties a folder to its destination spreadsheet.
type Link struct {
	FolderID      string    `firestore:"folderId" json:"folderId"`
	DestinationID string    `firestore:"destinationId" json:"destinationId"`
	ClaimedAt     time.Time `firestore:"claimedAt" json:"claimedAt"`
}

// Registry is the folder link capability.
type Registry interface {
	// Claim records link unless the folder is already linked. It returns the
	// link that holds the folder and whether that link is the one passed in.
	Claim(ctx context.Context, link Link) (Link, bool, error)

	// Release removes the folder's link if it still points at destinationID.
	Release(ctx context.Context, folderID, destinationID string) error

	// Close releases the backend client.
	Close() error
}

// MemoryRegistry is a Registry for a single process.
type MemoryRegistry struct {
	mu    sync.Mutex
	links map[string]Link
}

// NewMemoryRegistry creates an empty in-process registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{links: make(map[string]Link)}
}

// Claim implements Registry.
func (m *MemoryRegistry) Claim(_ context.Context, link Link) (Link, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.links[link.FolderID]; ok {
		return existing, existing.DestinationID == link.DestinationID, nil
	}
	if link.ClaimedAt.IsZero() {
		link.ClaimedAt = time.Now().UTC()
	}
	m.links[link.FolderID] = link
	return link, true, nil
}

// Release implements Registry.
func (m *MemoryRegistry) Release(_ context.Context, folderID, destinationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.links[folderID]; ok && existing.DestinationID == destinationID {
		delete(m.links, folderID)
	}
	return nil
}

// Close implements Registry.
func (m *MemoryRegistry) Close() error {
	return nil
}

var _ Registry = (*MemoryRegistry)(nil)
