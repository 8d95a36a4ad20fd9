package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EnvFileName is an optional dotenv file in the config directory. It is
// read but never written; saved keys go to the keyring.
const EnvFileName = ".env"

// ParseEnv reads KEY=value lines. Blank lines, # comments and an "export "
// prefix are skipped; one pair of matching quotes around a value is removed.
func ParseEnv(r io.Reader) (map[string]string, error) {
	env := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') ||
				(val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}
		if key != "" {
			env[key] = val
		}
	}
	return env, scanner.Err()
}

// LoadEnv returns the process environment layered over the variables in
// path. A missing file is not an error.
func LoadEnv(path string) (map[string]string, error) {
	env := make(map[string]string)
	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	default:
		defer f.Close()
		if env, err = ParseEnv(f); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	for k, v := range EnvMap() {
		if v != "" || env[k] == "" {
			env[k] = v
		}
	}
	return env, nil
}

// DefaultEnvPath returns the dotenv path in the config directory.
func DefaultEnvPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, EnvFileName), nil
}
