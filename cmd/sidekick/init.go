package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pranavpai/Sidekick-Langraph-Agent/examples"
)

// runInit initializes a Sidekick working directory: the data and
// sandbox directories plus an example config. Existing files are never
// overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Sidekick workspace in %s\n", dir)

	for _, sub := range []string{"data", "sandbox"} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		fmt.Fprintf(w, "  ✓ %s/\n", path)
	}

	// The config may hold API keys.
	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, examples.ConfigYAML, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml to choose models and enable tools, then run: sidekick serve")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist.
func writeIfMissing(path string, content []byte, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
