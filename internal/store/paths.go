package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DBFile is the result database file name inside the data directory.
const DBFile = "results.db"

// DataDir returns the per-user data directory, ~/.whiteworms.
func DataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".whiteworms"), nil
}

// DefaultDBPath returns ~/.whiteworms/results.db.
func DefaultDBPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DBFile), nil
}
