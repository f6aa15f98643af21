//go:build linux

package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	assert := assert.New(t)

	content := "" +
		"interface: eth3\n" +
		"workers: 4\n" +
		"fanout: lb\n" +
		"block_size: 65536\n" +
		"num_blocks: 128\n" +
		"retire_timeout: 60ms\n" +
		"output_path: /tmp/capture.pcap\n" +
		"log:\n" +
		"  level: debug\n" +
		"  encoding: json\n"
	path := writeConfigFile(t, t.TempDir(), "capture.yaml", content)

	cfg, err := LoadConfig(path)
	assert.NoError(err)
	assert.Equal("eth3", cfg.Interface)
	assert.Equal(4, cfg.Workers)
	assert.Equal(FanoutLB, cfg.Fanout)
	assert.Equal(uint32(65536), cfg.BlockSize)
	assert.Equal(uint32(128), cfg.NumBlocks)
	assert.Equal(60*time.Millisecond, cfg.RetireTimeout)
	assert.Equal("/tmp/capture.pcap", cfg.OutputPath)
	assert.Equal("debug", cfg.Log.Level)
	assert.Equal("json", cfg.Log.Encoding)

	// Unset keys fall back to defaults.
	assert.True(cfg.Promiscuous)
	assert.Equal(uint32(65535), cfg.SnapLen)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	assert := assert.New(t)

	path := writeConfigFile(t, t.TempDir(), "capture.yaml", "interface: eth0\n")
	t.Setenv("AFRING_INTERFACE", "eth7")
	t.Setenv("AFRING_FANOUT", "cpu")

	cfg, err := LoadConfig(path)
	assert.NoError(err)
	assert.Equal("eth7", cfg.Interface)
	assert.Equal(FanoutCPU, cfg.Fanout)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWatchConfig(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	path := writeConfigFile(t, dir, "capture.yaml", "interface: eth0\n")

	changed := make(chan Config, 4)
	assert.NoError(WatchConfig(path, func(cfg Config) {
		changed <- cfg
	}))

	// Give the watcher a moment to install before rewriting.
	time.Sleep(100 * time.Millisecond)
	writeConfigFile(t, dir, "capture.yaml", "interface: eth9\n")

	select {
	case cfg := <-changed:
		assert.Equal("eth9", cfg.Interface)
	case <-time.After(5 * time.Second):
		t.Fatalf("config change not observed")
	}
}
