package incremental

import (
	"fmt"
	"path/filepath"
	"strings"
)

// forbiddenRoots are system directories a projectPath must never normalize
// into (spec.md §4.3 "Security").
var forbiddenRoots = []string{
	"/etc", "/usr", "/bin", "/sbin", "/lib", "/lib64", "/boot", "/sys", "/proc",
	"c:\\windows",
}

// ValidateProjectPath rejects a projectPath that normalizes to a system
// directory, before any file I/O is attempted.
func ValidateProjectPath(path string) error {
	clean := filepath.Clean(path)
	lower := strings.ToLower(clean)
	for _, root := range forbiddenRoots {
		if lower == root || strings.HasPrefix(lower, root+string(filepath.Separator)) {
			return fmt.Errorf("incremental: projectPath %q resolves inside a system directory", path)
		}
	}
	if strings.HasPrefix(lower, "c:\\program files") {
		return fmt.Errorf("incremental: projectPath %q resolves inside a system directory", path)
	}
	return nil
}

// SafeJoin joins root and rel, rejecting any relative path that escapes
// root via ".." segments or that is itself absolute (testable property
// "no path escape").
func SafeJoin(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("incremental: file path %q must be relative", rel)
	}
	joined := filepath.Join(root, rel)
	cleanRoot := filepath.Clean(root)
	rootWithSep := cleanRoot + string(filepath.Separator)
	if joined != cleanRoot && !strings.HasPrefix(joined, rootWithSep) {
		return "", fmt.Errorf("incremental: file path %q escapes projectPath", rel)
	}
	return joined, nil
}
