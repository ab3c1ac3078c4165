package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/config"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/printer"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/unlock"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/wizard"
)

//go:embed templates/*
var templatesFS embed.FS

// Options locates the files written by Initialize.
type Options struct {
	ConfigPath string // orchledger.yml
	StateDir   string // catalog and wizard texts land here
}

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize writes a starter configuration, tool catalog and wizard texts.
// If force is true, existing files are replaced.
func Initialize(opts Options, force bool) ([]FileInfo, error) {
	files, err := getTemplateFiles(opts)
	if err != nil {
		return nil, err
	}

	if force {
		if err := handleForce(files); err != nil {
			return nil, err
		}
	}

	if err := writeFiles(files); err != nil {
		return nil, err
	}

	if err := validateCreatedFiles(opts.ConfigPath); err != nil {
		return nil, err
	}

	return files, nil
}

// handleForce removes files that are about to be rewritten
func handleForce(files []FileInfo) error {
	for _, f := range files {
		if _, err := os.Stat(f.Path); err != nil {
			continue
		}
		printer.Warning("Removing existing %s...\n", f.Path)
		if err := os.Remove(f.Path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", f.Path, err)
		}
	}
	return nil
}

// getTemplateFiles renders the configuration and reads the static templates
func getTemplateFiles(opts Options) ([]FileInfo, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/orchledger.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse orchledger.yml template: %w", err)
	}
	var cfg bytes.Buffer
	if err := tmpl.Execute(&cfg, struct{ StateDir string }{fmt.Sprintf("%q", opts.StateDir)}); err != nil {
		return nil, fmt.Errorf("failed to render orchledger.yml: %w", err)
	}

	files := []FileInfo{{Path: opts.ConfigPath, Content: cfg.Bytes(), Permissions: 0644}}

	static := []struct {
		template string
		path     string
	}{
		{"catalog.yml.tmpl", "catalog.yml"},
		{"instructions.md.tmpl", filepath.Join("wizard", "instructions.md")},
		{"starter.txt.tmpl", filepath.Join("wizard", "starter.txt")},
		{"schema.yaml.tmpl", filepath.Join("wizard", "schema.yaml")},
	}
	for _, s := range static {
		content, err := templatesFS.ReadFile("templates/" + s.template)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", s.template, err)
		}
		files = append(files, FileInfo{
			Path:        filepath.Join(opts.StateDir, s.path),
			Content:     content,
			Permissions: 0644,
		})
	}

	return files, nil
}

// writeFiles writes all template files to disk, creating parent directories
func writeFiles(files []FileInfo) error {
	for _, file := range files {
		if err := os.MkdirAll(filepath.Dir(file.Path), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", file.Path, err)
		}
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return nil
}

// validateCreatedFiles loads what was written the way the commands will.
// Environment overrides are not applied.
func validateCreatedFiles(configPath string) error {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read created %s: %w", configPath, err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return fmt.Errorf("created %s is not valid YAML: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("created %s is invalid: %w", configPath, err)
	}

	if _, err := unlock.LoadCatalog(cfg.Path(cfg.Catalog)); err != nil {
		return fmt.Errorf("created catalog is invalid: %w", err)
	}
	if _, err := wizard.LoadContent(cfg.WizardFiles()); err != nil {
		return fmt.Errorf("created wizard texts are unreadable: %w", err)
	}

	return nil
}

// PrintSuccess prints the created files and what to do next.
func PrintSuccess(files []FileInfo) {
	printer.Success("Initialized orchledger\n")
	printer.Info("\nCreated:\n")
	for _, f := range files {
		printer.Info("  ✓ %s\n", f.Path)
	}
	printer.Info("\nNext steps:\n")
	printer.Info("  1. Edit catalog.yml to list the tools this instance offers\n")
	printer.Info("  2. Run 'orchledger store up' and export %s for a shared ledger\n", config.EnvURL)
	printer.Info("  3. Run 'orchledger install' to register this instance\n")
}
