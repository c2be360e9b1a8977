// Package storage is the file-system side of the archive: Markdown vaults for
// import/export and the YAML agent catalog.
package storage

import "github.com/starford/lorekeeper/internal/models"

// Provider reads and writes files under a root directory.
type Provider interface {
	// List returns metadata for every matching file under dir (relative to root).
	List(dir string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to root).
	Delete(path string) error
}
