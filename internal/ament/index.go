// Package ament resolves installed ROS 2 packages through the ament
// resource index.
//
// A package is installed under a prefix when the marker file
// <prefix>/share/ament_index/resource_index/packages/<name> exists.
// Prefixes come from AMENT_PREFIX_PATH and are searched in order.
package ament

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPackageNotFound is matched by every *PackageNotFoundError.
var ErrPackageNotFound = errors.New("package not found")

// PackageNotFoundError reports a package missing from every searched prefix.
type PackageNotFoundError struct {
	Package  string
	Searched []string
}

func (e *PackageNotFoundError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("package %q not found: AMENT_PREFIX_PATH is empty", e.Package)
	}
	return fmt.Sprintf("package %q not found in %s", e.Package, strings.Join(e.Searched, string(os.PathListSeparator)))
}

func (e *PackageNotFoundError) Is(target error) bool {
	return target == ErrPackageNotFound
}

// Locator finds installed package directories and node executables.
type Locator interface {
	// ShareDirectory returns <prefix>/share/<pkg>.
	ShareDirectory(pkg string) (string, error)
	// Executable returns <prefix>/lib/<pkg>/<exe>.
	Executable(pkg, exe string) (string, error)
}

// Index searches a list of install prefixes.
type Index struct {
	PrefixPath []string
}

var _ Locator = Index{}

// FromEnv builds an Index from AMENT_PREFIX_PATH.
func FromEnv() Index {
	return ParsePrefixPath(os.Getenv("AMENT_PREFIX_PATH"))
}

// ParsePrefixPath splits a PATH-style list, dropping empty entries.
func ParsePrefixPath(value string) Index {
	var prefixes []string
	for _, p := range filepath.SplitList(value) {
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return Index{PrefixPath: prefixes}
}

// Prefix returns the first prefix that has pkg registered.
func (ix Index) Prefix(pkg string) (string, error) {
	for _, prefix := range ix.PrefixPath {
		marker := filepath.Join(prefix, "share", "ament_index", "resource_index", "packages", pkg)
		if _, err := os.Stat(marker); err == nil {
			return prefix, nil
		}
	}
	return "", &PackageNotFoundError{Package: pkg, Searched: ix.PrefixPath}
}

func (ix Index) ShareDirectory(pkg string) (string, error) {
	prefix, err := ix.Prefix(pkg)
	if err != nil {
		return "", err
	}
	return filepath.Join(prefix, "share", pkg), nil
}

// Executable does not check that the binary exists; a missing binary
// fails when the process is started.
func (ix Index) Executable(pkg, exe string) (string, error) {
	prefix, err := ix.Prefix(pkg)
	if err != nil {
		return "", err
	}
	return filepath.Join(prefix, "lib", pkg, exe), nil
}
