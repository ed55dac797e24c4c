// Package params writes ROS 2 parameter files for launched nodes.
//
// Files use the wildcard node layout, so the node's own name does not
// need to be known:
//
//	/**:
//	  ros__parameters:
//	    drone_ip: 192.168.0.35
package params

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ptrmu/fiducial-vlam-fg/internal/vlam"
	"gopkg.in/yaml.v3"
)

const (
	wildcardNode = "/**"
	rosParamsKey = "ros__parameters"
)

// ErrMalformed is returned by Decode for files without the expected shape.
var ErrMalformed = errors.New("malformed parameter file")

// Encode writes set to w in parameter-file layout.
func Encode(w io.Writer, set vlam.ParameterSet) error {
	doc := map[string]map[string]vlam.ParameterSet{
		wildcardNode: {rosParamsKey: set},
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding parameters: %w", err)
	}
	return enc.Close()
}

// WriteFile writes <dir>/<name>.params.yaml and returns its path.
func WriteFile(dir, name string, set vlam.ParameterSet) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating parameter dir: %w", err)
	}
	path := filepath.Join(dir, name+".params.yaml")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating parameter file: %w", err)
	}
	if err := Encode(f, set); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("writing parameter file: %w", err)
	}
	return path, nil
}

// Decode reads a parameter file back into plain values.
func Decode(r io.Reader) (map[string]any, error) {
	var doc map[string]map[string]map[string]any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty", ErrMalformed)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	node, ok := doc[wildcardNode]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformed, wildcardNode)
	}
	values, ok := node[rosParamsKey]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformed, rosParamsKey)
	}
	return values, nil
}

// ReadFile is Decode on a file path.
func ReadFile(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
