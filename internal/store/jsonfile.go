// Package store persists reminders and medical records as JSON array files.
// Every write replaces the whole file atomically and leaves a timestamped
// backup copy; a missing or corrupt file reads as an empty collection.
package store

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

const backupStampLayout = "20060102_150405"

// readFile returns the raw contents of path, or nil when the file does not
// exist or cannot be read. Store reads must degrade to an empty collection
// rather than fail a user-facing action.
func readFile(path string, logger *log.Logger) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Printf("store: read %s: %v", path, err)
		}
		return nil
	}
	return data
}

// atomicWrite replaces path with data in one rename so a concurrent read sees
// either the old or the new file, never a partial write. On success a backup
// copy is dropped in backupDir; backup trouble is logged, never propagated.
func atomicWrite(path, backupDir string, data []byte, logger *log.Logger) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}

	writeBackup(path, backupDir, logger)
	return nil
}

func writeBackup(path, backupDir string, logger *log.Logger) {
	if backupDir == "" {
		return
	}
	stamp := time.Now().Format(backupStampLayout)
	dest := filepath.Join(backupDir, fmt.Sprintf("%s.bak_%s", filepath.Base(path), stamp))
	if err := copyFile(path, dest); err != nil {
		logger.Printf("store: backup %s: %v", dest, err)
	}
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
