// Package referral produces the referral input a new install reads: a
// referrer file carrying the referring instance's id, written to a
// directory or packed into a zip bundle for sharing.
package referral

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/fsutil"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// DefaultFileName is the referrer file name install looks for.
const DefaultFileName = "referrer.txt"

// Validate checks that id can be read back from a referrer file as a
// single instance id.
func Validate(id string) error {
	if err := ledger.ValidateInstanceID(id); err != nil {
		return fmt.Errorf("invalid referrer id: %w", err)
	}
	if strings.ContainsAny(id, " \t\r\n") {
		return fmt.Errorf("invalid referrer id %q: contains whitespace", id)
	}
	return nil
}

func content(id string) []byte { return []byte(id + "\n") }

// WriteFile writes the referrer file named name into dir and returns its path.
func WriteFile(dir, name, id string) (string, error) {
	if err := Validate(id); err != nil {
		return "", err
	}
	if name == "" {
		name = DefaultFileName
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := fsutil.WriteFileAtomic(path, content(id), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// WriteBundle writes a zip archive holding the referrer file named name.
func WriteBundle(w io.Writer, name, id string) error {
	if err := Validate(id); err != nil {
		return err
	}
	if name == "" {
		name = DefaultFileName
	}

	zw := zip.NewWriter(w)
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to add %s to bundle: %w", name, err)
	}
	if _, err := f.Write(content(id)); err != nil {
		return fmt.Errorf("failed to add %s to bundle: %w", name, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish bundle: %w", err)
	}
	return nil
}

// BundleName is the archive file name for a referrer.
func BundleName(id string) string {
	return fmt.Sprintf("orchestrate-referral-%s.zip", strings.TrimPrefix(id, ledger.IDPrefix))
}
