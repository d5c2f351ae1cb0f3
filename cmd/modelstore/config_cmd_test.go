// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/modelstore/modelstore/internal/config"
	"github.com/modelstore/modelstore/pkg/errutil"
)

func TestConfigInitAndValidate(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out := h.mustRun("config", "init", "--config", path)
	assert.Contains(t, out, "Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, config.Validate(data))

	_, err = h.run("", "config", "init", "--config", path)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_EXISTS")
	h.mustRun("config", "init", "--config", path, "--force")

	out = h.mustRun("config", "validate", "--config", path)
	assert.Contains(t, out, "Configuration is valid ("+path+")")
}

func TestConfigValidate(t *testing.T) {
	t.Run("defaults only", func(t *testing.T) {
		h := newHarness(t)
		out := h.mustRun("config", "validate")
		assert.Contains(t, out, "not present")
	})

	t.Run("explicit missing file", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run("", "config", "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_FILE_UNREADABLE")
	})

	t.Run("schema violation", func(t *testing.T) {
		h := newHarness(t)
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("jwt:\n  lifetime: 5\n"), 0o600))
		_, err := h.run("", "config", "validate", "--config", path)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_SCHEMA_VIOLATION")
	})

	t.Run("flag override is validated", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run("", "config", "validate", "--log-level", "shout")
		require.Error(t, err)
	})
}

func TestConfigShow(t *testing.T) {
	h := newHarness(t)
	h.env["MODELSTORE_DATABASE_URL"] = "postgres://app:topsecret@db/modelstore"

	out := h.mustRun("config", "show", "--log-format", "text")
	assert.NotContains(t, out, testJWTKey)
	assert.NotContains(t, out, "topsecret")

	var shown config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "text", shown.Log.Format)
	assert.Equal(t, "postgres://app:xxxxx@db/modelstore", shown.Database.URL)
}

func TestConfigSchema(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("config", "schema")

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, config.SchemaID, doc["$id"])
}
