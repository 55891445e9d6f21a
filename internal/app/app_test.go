package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoConfig = `
pipeline "demo" {
  source "numbers" {
    values     = [1, 2, 3, 4]
    chunk_size = 2
  }

  transform "double" {
    input = "numbers"
    expr  = value * 2
  }

  sink "out" {
    input = "double"
  }
}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewConfig(t *testing.T) {
	t.Run("requires a path", func(t *testing.T) {
		_, err := NewConfig(Config{Workers: 1})
		assert.ErrorContains(t, err, "Path")
	})

	t.Run("requires at least one worker", func(t *testing.T) {
		_, err := NewConfig(Config{Path: "x.hcl"})
		assert.ErrorContains(t, err, "Workers")
	})
}

func TestAppRun(t *testing.T) {
	path := writeConfig(t, demoConfig)
	var out bytes.Buffer

	config, err := NewConfig(Config{Path: path, Workers: 4, LogLevel: "error", LogFormat: "text"})
	require.NoError(t, err)

	a, err := NewApp(&out, config)
	require.NoError(t, err)
	require.Len(t, a.Pipelines(), 1)

	require.NoError(t, a.Run(context.Background()))

	got := out.String()
	assert.Contains(t, got, "demo.out: 4 value(s)")
	assert.Contains(t, got, "2")
	assert.Contains(t, got, "8")
}

func TestAppRunDump(t *testing.T) {
	path := writeConfig(t, demoConfig)
	var out bytes.Buffer

	config, err := NewConfig(Config{Path: path, Workers: 2, LogLevel: "error", LogFormat: "json", Dump: true})
	require.NoError(t, err)

	a, err := NewApp(&out, config)
	require.NoError(t, err)
	require.NoError(t, a.Run(context.Background()))

	assert.Contains(t, out.String(), `--- pipeline "demo" ---`)
	assert.Contains(t, out.String(), "status: finished")
}

func TestNewAppConfigError(t *testing.T) {
	path := writeConfig(t, `pipeline "p" { sink "out" { input = "nope" } }`)
	var out bytes.Buffer

	config, err := NewConfig(Config{Path: path, Workers: 1})
	require.NoError(t, err)

	_, err = NewApp(&out, config)
	assert.ErrorContains(t, err, "loading configuration")
}
