package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/credit"
)

func noEnv(string) string { return "" }

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "orchledger.yml")

	validConfig := `version: "1.0"
state_dir: /data/state
store:
  backend: redis
  url: redis://ledger.internal:6379/2
  namespace: prod
sync:
  max_attempts: 8
  operation_timeout: 3s
  initial_backoff: 50ms
  max_backoff: 2s
credits:
  initial: 5
  per_referral: 0
  default_tool: outliner
catalog: tools.yml
wizard:
  instructions_file: wizard/instructions.txt
`
	require.NoError(t, os.WriteFile(configPath, []byte(validConfig), 0644))

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "/data/state", config.StateDir)
	assert.Equal(t, BackendRedis, config.Store.Backend)
	assert.Equal(t, "prod", config.Store.Namespace)
	assert.Equal(t, 8, config.Sync.MaxAttempts)
	assert.Equal(t, 3*time.Second, config.Sync.OperationTimeout)
	assert.Equal(t, 50*time.Millisecond, config.Sync.InitialBackoff)
	assert.Equal(t, "tools.yml", config.Catalog)
	assert.Equal(t, "wizard/instructions.txt", config.Wizard.InstructionsFile)

	// per_referral: 0 is an explicit value, not "unset".
	assert.Equal(t, credit.Policy{InitialCredits: 5, CreditsPerReferral: 0, DefaultTool: "outliner"}, config.Policy())

	assert.Equal(t, "/data/state/system_identity.json", config.IdentityPath())
	assert.Equal(t, "/data/state/referrer.txt", config.ReferrerPath())
	assert.Equal(t, "/data/state/referrals.json", config.RecordPath())
	assert.Equal(t, WizardConfig{InstructionsFile: "/data/state/wizard/instructions.txt"}, config.WizardFiles())
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/orchledger.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoadOptional_MissingFileGivesDefaults(t *testing.T) {
	t.Setenv(EnvStateDir, "")
	t.Setenv(EnvURL, "")
	t.Setenv(EnvBackend, "")

	config, err := LoadOptional(filepath.Join(t.TempDir(), "orchledger.yml"))
	require.NoError(t, err)
	assert.Equal(t, "/container_state", config.StateDir)
	assert.Equal(t, BackendFile, config.Store.Backend)
	assert.Equal(t, "/container_state/shared_ledger.json", config.Store.Path)
	assert.Equal(t, credit.DefaultPolicy(), config.Policy())
	assert.Equal(t, 5, config.Retry().MaxAttempts)
	assert.Equal(t, time.Second, config.Retry().MaxBackoff)
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "orchledger.yml")
	invalidYAML := `version: "1.0"
store:
  - this is invalid
    yaml syntax
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	config, err := Load(configPath)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParse_EnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		backend string
		url     string
		check   func(t *testing.T, c *Config)
	}{
		{
			name:    "http url infers http backend",
			yaml:    `version: "1.0"`,
			env:     map[string]string{EnvURL: "https://ledger.example.com", EnvToken: "tok"},
			backend: BackendHTTP,
			url:     "https://ledger.example.com",
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "tok", c.Store.Token)
			},
		},
		{
			name:    "redis url replaces file backend",
			yaml:    "version: \"1.0\"\nstore:\n  backend: file\n",
			env:     map[string]string{EnvURL: "redis://10.0.0.5:6379", EnvNamespace: "team-a"},
			backend: BackendRedis,
			url:     "redis://10.0.0.5:6379",
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "team-a", c.Store.Namespace)
			},
		},
		{
			name:    "explicit backend wins",
			yaml:    `version: "1.0"`,
			env:     map[string]string{EnvBackend: "bolt", EnvStateDir: "/tmp/s"},
			backend: BackendBolt,
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "/tmp/s/ledger.db", c.Store.Path)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := parse([]byte(tt.yaml), envMap(tt.env))
			require.NoError(t, err)
			assert.Equal(t, tt.backend, c.Store.Backend)
			if tt.url != "" {
				assert.Equal(t, tt.url, c.Store.URL)
			}
			tt.check(t, c)
		})
	}
}

func TestParse_TokenNeverReadFromFile(t *testing.T) {
	c, err := parse([]byte("version: \"1.0\"\nstore:\n  token: leaked\n"), noEnv)
	require.NoError(t, err)
	assert.Empty(t, c.Store.Token)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{"unsupported version", `version: "2.0"`, "unsupported version: 2.0"},
		{"missing version", `state_dir: /x`, "unsupported version"},
		{"unknown backend", "version: \"1.0\"\nstore:\n  backend: jsonbin\n", "invalid store.backend: jsonbin"},
		{"http without url", "version: \"1.0\"\nstore:\n  backend: http\n", "store.url is required"},
		{"bad namespace", "version: \"1.0\"\nstore:\n  backend: redis\n  namespace: Bad_NS\n", "store.namespace"},
		{"zero attempts", "version: \"1.0\"\nsync:\n  max_attempts: -1\n", "sync.max_attempts must be >= 1"},
		{"backoff order", "version: \"1.0\"\nsync:\n  initial_backoff: 2s\n  max_backoff: 1s\n", "sync.max_backoff"},
		{"negative credits", "version: \"1.0\"\ncredits:\n  initial: -3\n", "credits.initial must be >= 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse([]byte(tt.yaml), noEnv)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestPath(t *testing.T) {
	c := Default()
	c.StateDir = "/state"
	c.RecordFile = "/elsewhere/record.json"
	assert.Equal(t, "/elsewhere/record.json", c.RecordPath())
	assert.Equal(t, "/state/system_identity.json", c.IdentityPath())
}

func TestString_HidesToken(t *testing.T) {
	c := Default()
	c.Store.Token = "super-secret"
	out := c.String()
	assert.NotContains(t, out, "super-secret")
	assert.Contains(t, out, EnvToken)
}

func TestString_RedactsURLPassword(t *testing.T) {
	c, err := parse([]byte("version: \"1.0\"\nstore:\n  url: redis://:hunter2@ledger.internal:6379/0\n"), noEnv)
	require.NoError(t, err)

	out := c.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "ledger.internal:6379")
	assert.Equal(t, "redis://:hunter2@ledger.internal:6379/0", c.Store.URL, "the config itself is untouched")
}
