package main

import (
	"fmt"
	"os"

	"github.com/ptrmu/fiducial-vlam-fg/internal/params"
	"github.com/ptrmu/fiducial-vlam-fg/internal/vlam"
)

func cmdDescribe() {
	desc, err := vlam.GenerateLaunchDescription(locator(), os.Stderr)
	if err != nil {
		fatal("%v", err)
	}
	out, err := vlam.MarshalDescription(desc)
	if err != nil {
		fatal("%v", err)
	}
	os.Stdout.Write(out)

	if checkFlag {
		if err := checkParameterFiles(desc); err != nil {
			fatal("%v", err)
		}
	}
}

// checkParameterFiles writes each node's parameter file to a scratch
// directory and reads it back, comparing option counts.
func checkParameterFiles(desc vlam.Description) error {
	dir, err := os.MkdirTemp("", "vlam-describe-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	for i, p := range desc.Processes {
		if p.Parameters == nil {
			continue
		}
		name := fmt.Sprintf("%s-%d", p.BaseName(), i+1)
		path, err := params.WriteFile(dir, name, *p.Parameters)
		if err != nil {
			return err
		}
		got, err := params.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if len(got) != p.Parameters.Len() {
			return fmt.Errorf("%s: read back %d parameters, wrote %d", name, len(got), p.Parameters.Len())
		}
		fmt.Fprintf(os.Stderr, "ok %s (%d parameters)\n", name, len(got))
	}
	return nil
}

func cmdPaths() {
	paths, err := vlam.ResolvePaths(locator())
	if err != nil {
		fatal("%v", err)
	}
	vlam.WritePaths(os.Stdout, paths)
}
