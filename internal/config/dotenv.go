package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// loadDotEnvFiles loads the files that exist, earliest first. Variables
// already present in the environment are never replaced, so an earlier file
// wins over a later one.
func loadDotEnvFiles(paths ...string) error {
	var existing []string
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		existing = append(existing, path)
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}
