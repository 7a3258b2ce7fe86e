// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigJSON = `{
	"connectors": [{"name": "sim1", "cycle": 1, "connection_string": "connector=simulator"}],
	"tags": [{"name": "s1", "type": "float", "source": "func=sin;period=60;scale=100", "connector_name": "sim1"}],
	"scripts": []
}`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o640))
	return path
}

func TestJSONLoaderLoadsValidConfig(t *testing.T) {
	loader := NewJSONLoader(writeTemp(t, validConfigJSON))
	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, cfg.Connectors, 1)
	assert.Equal(t, "sim1", cfg.Connectors[0].Name)
	require.Len(t, cfg.Tags, 1)
	assert.Equal(t, "s1", cfg.Tags[0].Name)
}

func TestJSONLoaderRejectsInvalidType(t *testing.T) {
	bad := `{"connectors": [], "tags": [{"name": "s1", "type": "weird", "source": "x"}]}`
	loader := NewJSONLoader(writeTemp(t, bad))
	_, err := loader.Load(context.Background())
	assert.Error(t, err)
}

func TestJSONLoaderRejectsMissingRequiredField(t *testing.T) {
	bad := `{"connectors": [{"cycle": 1, "connection_string": "connector=simulator"}], "tags": []}`
	loader := NewJSONLoader(writeTemp(t, bad))
	_, err := loader.Load(context.Background())
	assert.Error(t, err)
}

func TestJSONLoaderReturnsErrorOnMissingFile(t *testing.T) {
	loader := NewJSONLoader(filepath.Join(t.TempDir(), "missing.json"))
	_, err := loader.Load(context.Background())
	assert.Error(t, err)
}

func TestLoadSettingsAppliesDefaults(t *testing.T) {
	t.Setenv("STORE_BATCH_SIZE", "")
	t.Setenv("STORE_HISTORY_HOURS", "")
	s := LoadSettings()
	assert.Equal(t, 100, s.StoreBatchSize)
	assert.Equal(t, 24.0, s.StoreHistoryHours)
}

func TestLoadSettingsReadsOverrides(t *testing.T) {
	t.Setenv("STORE_BATCH_SIZE", "50")
	t.Setenv("STORE_HISTORY_HOURS", "12.5")
	s := LoadSettings()
	assert.Equal(t, 50, s.StoreBatchSize)
	assert.Equal(t, 12.5, s.StoreHistoryHours)
}
