package credstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileBackup stores one file per session identifier under a configured
// directory. Writes go through a temp file + rename so a crash mid-write
// never leaves a truncated blob.
type FileBackup struct {
	dir string
}

func NewFileBackup(dir string) (*FileBackup, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup dir %s: %w", dir, err)
	}
	return &FileBackup{dir: dir}, nil
}

func (b *FileBackup) path(sessionID string) string {
	// Session IDs are opaque; keep the filename safe.
	safe := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, sessionID)
	return filepath.Join(b.dir, safe+".cred")
}

func (b *FileBackup) Write(sessionID string, blob []byte) error {
	target := b.path(sessionID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, blob, 0600); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to finalize backup file: %w", err)
	}
	return nil
}

// Read returns (nil, nil) when no backup exists for the session.
func (b *FileBackup) Read(sessionID string) ([]byte, error) {
	data, err := os.ReadFile(b.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}
	return data, nil
}

func (b *FileBackup) Delete(sessionID string) error {
	err := os.Remove(b.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete backup file: %w", err)
	}
	return nil
}

func (b *FileBackup) Exists(sessionID string) bool {
	_, err := os.Stat(b.path(sessionID))
	return err == nil
}

func (b *FileBackup) List() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".cred") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".cred"))
	}
	return ids, nil
}
