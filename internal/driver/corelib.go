package driver

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrCoreClass rejects an input that defines a class in a core library
// package without the core-library option.
var ErrCoreClass = errors.New("core library class")

// javax packages that ship with the platform. Other javax packages are
// commonly bundled by applications and are allowed.
var coreJavax = []string{
	"accessibility", "crypto", "imageio", "management", "naming", "net",
	"print", "rmi", "security", "sip", "sound", "sql", "swing",
	"transaction", "xml",
}

// checkClassName reports ErrCoreClass for a class path under java/, a
// top-level javax class, or one of the platform javax packages.
func checkClassName(classPath string, coreLibrary bool) error {
	if coreLibrary {
		return nil
	}
	if isCorePath(classPath) {
		return fmt.Errorf("%w: %s", ErrCoreClass, strings.TrimSuffix(classPath, ".class"))
	}
	return nil
}

func isCorePath(name string) bool {
	if strings.HasPrefix(name, "java/") {
		return true
	}
	rest, ok := strings.CutPrefix(name, "javax/")
	if !ok {
		return false
	}
	pkg, _, nested := strings.Cut(rest, "/")
	if !nested {
		return true
	}
	return slices.Contains(coreJavax, pkg)
}
