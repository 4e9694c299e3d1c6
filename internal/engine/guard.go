package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveOutputPath joins name onto dir and checks, with symlinks resolved,
// that the result stays strictly inside dir. dir must exist.
func ResolveOutputPath(dir, name string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSecurityViolation, err)
	}
	root, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return "", fmt.Errorf("%w: cannot resolve %s: %v", ErrSecurityViolation, dir, err)
	}
	target, err := resolveExisting(filepath.Join(root, name))
	if err != nil {
		return "", fmt.Errorf("%w: cannot resolve %s: %v", ErrSecurityViolation, name, err)
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrSecurityViolation, name)
	}
	return target, nil
}

// resolveExisting evaluates symlinks in the longest existing prefix of path
// and appends the remaining elements unchanged.
func resolveExisting(path string) (string, error) {
	var rest []string
	current := path
	for {
		if _, err := os.Lstat(current); err == nil {
			break
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path, nil
		}
		rest = append([]string{filepath.Base(current)}, rest...)
		current = parent
	}
	resolved, err := filepath.EvalSymlinks(current)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{resolved}, rest...)...), nil
}
