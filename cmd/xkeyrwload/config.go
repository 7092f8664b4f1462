package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// fileWorkload 是配置文件的原始结构。
// duration 为字符串形式（如 "30s"），零值字段保持内置默认。
type fileWorkload struct {
	Keys     int    `koanf:"keys"`
	Readers  int    `koanf:"readers"`
	Writers  int    `koanf:"writers"`
	Shards   int    `koanf:"shards"`
	Duration string `koanf:"duration"`
	Try      bool   `koanf:"try"`
}

// loadWorkloadConfig 从 YAML/JSON 文件加载负载配置。
// 根据文件扩展名自动检测格式。
func loadWorkloadConfig(path string) (workloadConfig, error) {
	cfg := defaultWorkloadConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return cfg, fmt.Errorf("unsupported config format %q (want .yaml/.yml/.json)", filepath.Ext(path))
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return cfg, err
	}

	var fw fileWorkload
	if err := k.Unmarshal("", &fw); err != nil {
		return cfg, err
	}

	if fw.Keys > 0 {
		cfg.Keys = fw.Keys
	}
	if fw.Readers > 0 {
		cfg.Readers = fw.Readers
	}
	if fw.Writers > 0 {
		cfg.Writers = fw.Writers
	}
	if fw.Shards > 0 {
		cfg.Shards = fw.Shards
	}
	if fw.Duration != "" {
		d, err := time.ParseDuration(fw.Duration)
		if err != nil {
			return cfg, fmt.Errorf("invalid duration %q: %w", fw.Duration, err)
		}
		cfg.Duration = d
	}
	cfg.Try = fw.Try

	return cfg, nil
}
