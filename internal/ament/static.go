package ament

import (
	"errors"
	"path/filepath"
)

// Static maps package names directly to install prefixes, bypassing the
// resource index. Share directories may be overridden per package.
type Static struct {
	Prefixes map[string]string
	Shares   map[string]string
}

var _ Locator = Static{}

func (s Static) ShareDirectory(pkg string) (string, error) {
	if dir, ok := s.Shares[pkg]; ok {
		return dir, nil
	}
	prefix, ok := s.Prefixes[pkg]
	if !ok {
		return "", &PackageNotFoundError{Package: pkg}
	}
	return filepath.Join(prefix, "share", pkg), nil
}

func (s Static) Executable(pkg, exe string) (string, error) {
	prefix, ok := s.Prefixes[pkg]
	if !ok {
		return "", &PackageNotFoundError{Package: pkg}
	}
	return filepath.Join(prefix, "lib", pkg, exe), nil
}

// Overlay consults Primary first and falls back to Fallback only when
// Primary reports the package as missing.
type Overlay struct {
	Primary  Locator
	Fallback Locator
}

func (o Overlay) ShareDirectory(pkg string) (string, error) {
	dir, err := o.Primary.ShareDirectory(pkg)
	if err == nil || o.Fallback == nil || !isNotFound(err) {
		return dir, err
	}
	return o.Fallback.ShareDirectory(pkg)
}

func (o Overlay) Executable(pkg, exe string) (string, error) {
	path, err := o.Primary.Executable(pkg, exe)
	if err == nil || o.Fallback == nil || !isNotFound(err) {
		return path, err
	}
	return o.Fallback.Executable(pkg, exe)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrPackageNotFound)
}
