package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// setupLogging installs a text handler on stderr at the given level.
func setupLogging(level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}
