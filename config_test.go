package construct

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/construct/internal/logging"
	"github.com/viant/construct/policy"
)

func TestConfig_Validate(t *testing.T) {
	var testCases = []struct {
		description string
		mutate      func(c *Config)
		expectErr   bool
	}{
		{description: "defaults", mutate: func(c *Config) {}},
		{description: "missing channel", mutate: func(c *Config) { c.Channel = "" }, expectErr: true},
		{description: "unknown log level", mutate: func(c *Config) { c.Log.Level = "trace" }, expectErr: true},
		{description: "invalid event pattern", mutate: func(c *Config) {
			c.Events.Enabled = true
			c.Events.Pattern = "[task"
		}, expectErr: true},
		{description: "invalid pattern of disabled events", mutate: func(c *Config) { c.Events.Pattern = "[task" }},
		{description: "invalid plugin pattern", mutate: func(c *Config) { c.Plugins.Pattern = "[yaml" }, expectErr: true},
		{description: "unknown policy mode", mutate: func(c *Config) { c.Policy = &policy.Config{Mode: "maybe"} }, expectErr: true},
		{description: "deny policy", mutate: func(c *Config) { c.Policy = &policy.Config{Mode: policy.ModeDeny} }},
		{description: "tracing without name", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.ServiceName = ""
		}, expectErr: true},
	}

	for _, testCase := range testCases {
		config := DefaultConfig()
		testCase.mutate(config)
		err := config.Validate()
		if testCase.expectErr {
			assert.Error(t, err, testCase.description)
			continue
		}
		assert.NoError(t, err, testCase.description)
	}
	var config *Config
	assert.NoError(t, config.Validate())
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("CONSTRUCT_PLUGINS", "/opt/plugins")
	dir := t.TempDir()
	URL := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(URL, []byte(`channel: studio
log:
  level: debug
events:
  enabled: true
  pattern: "task.*"
  queue:
    retryDelay: 250ms
plugins:
  paths:
    - ${env.CONSTRUCT_PLUGINS}
policy:
  mode: deny
`), 0644))

	config, err := LoadConfig(context.Background(), URL)
	require.NoError(t, err)
	assert.Equal(t, "studio", config.Channel)
	assert.Equal(t, logging.DebugLevel, config.Log.Level)
	assert.True(t, config.Events.Enabled)
	assert.Equal(t, "task.*", config.Events.Pattern)
	assert.Equal(t, 250*time.Millisecond, config.Events.Queue.RetryDelay)
	assert.Equal(t, 100, config.Events.Queue.QueueBuffer)
	assert.Equal(t, []string{"/opt/plugins"}, config.Plugins.Paths)
	assert.Equal(t, policy.ModeDeny, config.Policy.Mode)

	require.NoError(t, os.WriteFile(URL, []byte("log:\n  level: loud\n"), 0644))
	_, err = LoadConfig(context.Background(), URL)
	assert.Error(t, err)

	_, err = LoadConfig(context.Background(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestExpandEnv(t *testing.T) {
	var testCases = []struct {
		description string
		env         map[string]string
		input       string
		expect      string
	}{
		{description: "no expressions", input: "just a plain string", expect: "just a plain string"},
		{description: "single expression", env: map[string]string{"FOO": "bar"}, input: "value is ${env.FOO}", expect: "value is bar"},
		{description: "multiple expressions", env: map[string]string{"A": "1", "B": "2"}, input: "${env.A}-${env.B}-${env.A}", expect: "1-2-1"},
		{description: "unset variable", input: "unset=${env.CONSTRUCT_NOT_SET}-end", expect: "unset=-end"},
		{description: "missing closing brace", env: map[string]string{"X": "x"}, input: "start ${env.X and ${env.Y} end", expect: "start ${env.X and  end"},
		{description: "unterminated", input: "tail ${env.Z", expect: "tail ${env.Z"},
		{description: "empty key", input: "oops ${env.} done", expect: "oops  done"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			for _, key := range []string{"FOO", "A", "B", "X", "Y"} {
				t.Setenv(key, "")
			}
			for k, v := range testCase.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, testCase.expect, expandEnv(testCase.input))
		})
	}
}
