package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsebik/lampshow/internal/gpio"
)

func TestLoad_missingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_overridesOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("music_dir: /opt/songs/\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/songs/", cfg.MusicDir)
	assert.Equal(t, DefaultUDPPort, cfg.UDPPort)
}

func TestLampLineTable_fallsBackWhenWrongSize(t *testing.T) {
	cfg := Config{LampLines: []uint{1, 2, 3}}
	assert.Equal(t, gpio.LampLines, cfg.LampLineTable())
}

func TestLampLineTable_usesOverrideWhenCorrectSize(t *testing.T) {
	override := []uint{1, 2, 3, 4, 5, 6, 7, 8}
	cfg := Config{LampLines: override}
	table := cfg.LampLineTable()
	for i, v := range override {
		assert.Equal(t, v, table[i])
	}
}
