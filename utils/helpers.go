package utils

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GetEnv reads an environment variable with a fallback default.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// CreateFolder makes sure a directory exists, creating parents as needed.
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// GenerateUniqueID returns a random identifier for stored records.
func GenerateUniqueID() string {
	return uuid.NewString()
}
