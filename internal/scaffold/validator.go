package scaffold

import (
	"fmt"
	"os"
	"strings"
)

// CheckExisting returns an error naming every file Initialize would
// overwrite, or nil when none exist.
func CheckExisting(opts Options) error {
	files, err := getTemplateFiles(opts)
	if err != nil {
		return err
	}

	var existingFiles []string
	for _, f := range files {
		if _, err := os.Stat(f.Path); err == nil {
			existingFiles = append(existingFiles, f.Path)
		}
	}

	if len(existingFiles) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("already initialized\n\nFound existing")
	if len(existingFiles) == 1 {
		fmt.Fprintf(&b, ": %s\n", existingFiles[0])
	} else {
		b.WriteString(" files:\n")
		for _, file := range existingFiles {
			fmt.Fprintf(&b, "  - %s\n", file)
		}
	}
	b.WriteString("\nUse 'orchledger init --force' to overwrite them")

	return fmt.Errorf("%s", b.String())
}
