package pathutil

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// Expand resolves environment variables and a leading "~" in a configured path.
func Expand(path string) (string, error) {
	p := os.ExpandEnv(strings.TrimSpace(path))
	if p == "" {
		return "", nil
	}

	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := homeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(p, "~"), "/"))
	}

	return filepath.Clean(p), nil
}

// EnsureParent expands path and creates its parent directory.
func EnsureParent(path string) (string, error) {
	p, err := Expand(path)
	if err != nil {
		return "", err
	}
	if p == "" {
		return "", fmt.Errorf("path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create directory for %s: %w", p, err)
	}
	return p, nil
}

func homeDir() (string, error) {
	resolved := func(h string) bool {
		h = strings.TrimSpace(h)
		return h != "" && h != "~" && !strings.HasPrefix(h, "~/")
	}

	if home, err := os.UserHomeDir(); err == nil && resolved(home) {
		return strings.TrimSpace(home), nil
	}
	if u, err := user.Current(); err == nil && resolved(u.HomeDir) {
		return strings.TrimSpace(u.HomeDir), nil
	}
	return "", fmt.Errorf("HOME is not set or not fully resolved")
}
