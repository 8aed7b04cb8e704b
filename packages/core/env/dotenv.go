package env

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DotEnvFiles lists the dotenv files read from a plan directory, in load
// order. Later files override earlier ones.
var DotEnvFiles = []string{".env", ".env.local"}

// LoadDotEnv parses a single dotenv file. It does not touch the process
// environment; use LoadAndExportDotEnv for that.
func LoadDotEnv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read env file %s: %w", path, err)
	}
	return vars, nil
}

// LoadDotEnvFiles reads every file of DotEnvFiles present in dir. Missing
// files are skipped.
func LoadDotEnvFiles(dir string) (map[string]string, error) {
	result := make(map[string]string)
	for _, name := range DotEnvFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		vars, err := LoadDotEnv(path)
		if err != nil {
			return nil, err
		}
		for k, v := range vars {
			result[k] = v
		}
	}
	return result, nil
}

// LoadAndExportDotEnv parses a dotenv file and exports its values to the
// process environment. Variables already set are left alone.
func LoadAndExportDotEnv(path string) (map[string]string, error) {
	vars, err := LoadDotEnv(path)
	if err != nil {
		return nil, err
	}

	for k, v := range vars {
		if _, ok := os.LookupEnv(k); !ok {
			_ = os.Setenv(k, v)
		}
	}

	return vars, nil
}
