package wizard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/atotto/clipboard"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/config"
)

// LoadContent reads the paste texts named in cfg. Every file is required.
func LoadContent(cfg config.WizardConfig) (Content, error) {
	var c Content
	files := []struct {
		name string
		path string
		dst  *string
	}{
		{"instructions_file", cfg.InstructionsFile, &c.Instructions},
		{"starter_file", cfg.StarterFile, &c.Starter},
		{"schema_file", cfg.SchemaFile, &c.Schema},
	}
	for _, f := range files {
		if f.path == "" {
			return Content{}, fmt.Errorf("wizard.%s is not set", f.name)
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			return Content{}, fmt.Errorf("failed to read wizard.%s: %w", f.name, err)
		}
		*f.dst = string(data)
	}
	return c, nil
}

// SystemClipboard writes to the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("no clipboard utility available (install xclip, xsel or wl-clipboard)")
	}
	return clipboard.WriteAll(text)
}

// HTTPChecker expects a 2xx from a GET.
type HTTPChecker struct {
	Client  *http.Client
	Timeout time.Duration
}

func (p HTTPChecker) Check(ctx context.Context, url string) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s returned %s", url, resp.Status)
	}
	return nil
}
