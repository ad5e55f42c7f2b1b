package buildpipeline

import (
	"path/filepath"
	"strings"
)

// DisplayName shortens an input path for progress and diagnostics: paths
// under baseDir become relative, and separators become slashes. Archive
// entries ("lib.jar!a/B.class") keep their suffix untouched.
func DisplayName(name, baseDir string) string {
	entry := ""
	if i := strings.IndexByte(name, '!'); i >= 0 {
		name, entry = name[:i], name[i:]
	}
	p := filepath.Clean(name)
	if base := strings.TrimSpace(baseDir); base != "" {
		absBase, err1 := filepath.Abs(base)
		absPath, err2 := filepath.Abs(p)
		if err1 == nil && err2 == nil {
			if rel, err := filepath.Rel(absBase, absPath); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
				p = rel
			}
		}
	}
	return filepath.ToSlash(p) + entry
}
