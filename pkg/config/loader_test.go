package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadConfigMergesEnvironmentAndSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
  password: ${DB_PASSWORD}
scheduler:
  interval: 1s
  batch_size: 25
`)
	writeFile(t, dir, "staging.yaml", `
db:
  host: postgres
scheduler:
  interval: 5s
`)
	writeFile(t, dir, "secrets.env", "DB_PASSWORD=\"hunter2\"\n# comment\n")

	merged, err := LoadConfig("staging", dir)
	require.NoError(t, err)

	db, ok := merged["db"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "postgres", db["host"])
	assert.Equal(t, 5432, db["port"])
	assert.Equal(t, "hunter2", db["password"])

	scheduler := merged["scheduler"].(map[string]interface{})
	assert.Equal(t, "5s", scheduler["interval"])
	assert.Equal(t, 25, scheduler["batch_size"])
}

func TestLoadConfigMissingBase(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	require.Error(t, err)
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: "1s"},
		{in: "250ms", want: "250ms"},
		{in: "garbage", want: "1s"},
		{in: "-5s", want: "1s"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Duration(tt.in, time.Second).String())
		})
	}
}
