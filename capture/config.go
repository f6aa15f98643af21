//go:build linux

package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "AFRING"

// LoadConfig 从配置文件加载捕获配置。支持 viper 能识别的所有格式
// （yaml/json/toml），环境变量 AFRING_ 前缀可覆盖配置文件中已出现或带默认值的键。
func LoadConfig(path string) (Config, error) {
	v, err := readConfig(path)
	if err != nil {
		return Config{}, err
	}
	return unmarshalConfig(v)
}

// WatchConfig 监听配置文件变化，每次变更后重新解析并调用 onChange。
// 解析失败的变更会被忽略，已建好的 Capture 不受影响，新配置在下一次
// New 时生效。
func WatchConfig(path string, onChange func(Config)) error {
	v, err := readConfig(path)
	if err != nil {
		return err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := unmarshalConfig(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func readConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("fanout", FanoutHash)
	v.SetDefault("promiscuous", true)
	v.SetDefault("snap_len", 65535)
	v.SetDefault("retire_timeout", 100*time.Millisecond)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("capture: read config %s: %w", path, err)
	}
	return v, nil
}

func unmarshalConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("capture: decode config: %w", err)
	}
	return cfg, nil
}
