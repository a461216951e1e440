package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, []SheetConfig{
		{"B2B", 6}, {"B2BA", 7}, {"B2B-CDNR", 6}, {"B2B-CDNRA", 7},
	}, cfg.Sheets)
	assert.Equal(t, DefaultOutputPath, cfg.OutputPath)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	t.Setenv("GSTR2B_OUTPUT", "")
	t.Setenv("GSTR2B_ADDR", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(DefaultOutputPath), cfg.OutputPath)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
}

func TestLoad_File(t *testing.T) {
	t.Setenv("GSTR2B_OUTPUT", "")
	t.Setenv("GSTR2B_ADDR", "")

	path := writeConfig(t, `
output = "out/./result.xlsx"
verbose = true

[server]
addr = "127.0.0.1:9000"
session_ttl = "15m"

[[sheets]]
name = "B2B"
header_rows = 2

[[sheets]]
name = "IMPG"
header_rows = 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "result.xlsx"), cfg.OutputPath)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, Duration(15*time.Minute), cfg.Server.SessionTTL)
	assert.Equal(t, []SheetConfig{{"B2B", 2}, {"IMPG", 3}}, cfg.Sheets)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GSTR2B_OUTPUT", "env.xlsx")
	t.Setenv("GSTR2B_ADDR", ":7000")

	cfg, err := Load(writeConfig(t, `output = "file.xlsx"`))
	require.NoError(t, err)
	assert.Equal(t, "env.xlsx", cfg.OutputPath)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `output = [`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "[[sheets]]\nname = \"B2B\"\nheader_rows = -1\n"))
	assert.Error(t, err)
}

func TestValidateSheets(t *testing.T) {
	tests := []struct {
		name    string
		sheets  []SheetConfig
		wantErr bool
	}{
		{"defaults", DefaultSheets(), false},
		{"zero header rows", []SheetConfig{{"B2B", 0}}, false},
		{"empty list", nil, true},
		{"empty name", []SheetConfig{{"", 1}}, true},
		{"negative rows", []SheetConfig{{"B2B", -1}}, true},
		{"duplicate", []SheetConfig{{"B2B", 6}, {"B2B", 7}}, true},
		{"duplicate ignoring case", []SheetConfig{{"B2B", 6}, {"b2b", 7}}, true},
		{"bad chars", []SheetConfig{{"B2B/CDNR", 6}}, true},
		{"too long", []SheetConfig{{"ABCDEFGHIJKLMNOPQRSTUVWXYZ123456", 6}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSheets(tt.sheets)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
