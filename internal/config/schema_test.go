// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package config_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelstore/modelstore/internal/config"
	"github.com/modelstore/modelstore/pkg/errutil"
)

func TestGenerateSchema(t *testing.T) {
	data, err := config.GenerateSchema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, config.SchemaID, doc["$id"])
	assert.Equal(t, false, doc["additionalProperties"])

	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"database", "jwt", "log", "metrics"} {
		assert.Contains(t, props, key)
	}

	db := props["database"].(map[string]any)["properties"].(map[string]any)
	backoff := db["connect_backoff"].(map[string]any)
	assert.Equal(t, "string", backoff["type"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantCode string
	}{
		{name: "empty document", yaml: ""},
		{name: "partial document", yaml: "log:\n  level: debug\n"},
		{name: "duration string", yaml: "database:\n  connect_backoff: 750ms\n"},
		{name: "malformed yaml", yaml: "log: [", wantCode: "CONFIG_YAML_INVALID"},
		{name: "unknown top-level key", yaml: "cache:\n  size: 1\n", wantCode: "CONFIG_SCHEMA_VIOLATION"},
		{name: "bad enum", yaml: "log:\n  format: xml\n", wantCode: "CONFIG_SCHEMA_VIOLATION"},
		{name: "wrong type", yaml: "jwt:\n  access_token_lifetime_minutes: soon\n", wantCode: "CONFIG_SCHEMA_VIOLATION"},
		{name: "below minimum", yaml: "jwt:\n  refresh_token_lifetime_days: 0\n", wantCode: "CONFIG_SCHEMA_VIOLATION"},
		{name: "bad duration", yaml: "database:\n  connect_backoff: later\n", wantCode: "CONFIG_SCHEMA_VIOLATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := config.Validate([]byte(tt.yaml))
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestValidateFile(t *testing.T) {
	err := config.ValidateFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_FILE_UNREADABLE")

	path := writeConfig(t, "metrics:\n  addr: ':9200'\n")
	require.NoError(t, config.ValidateFile(path))
}

func TestMarshal_RoundTrips(t *testing.T) {
	cfg := config.Default()
	cfg.JWT.Key = testKey

	data, err := config.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "$schema="+config.SchemaID)
	assert.Contains(t, string(data), "connect_backoff: 500ms")
	require.NoError(t, config.Validate(data))

	path := writeConfig(t, string(data))
	loaded, err := config.Load(config.Options{Path: path, Required: true, Getenv: env(nil)})
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}
