// Package config 加载运行时配置
//
// 配置分两层：内置默认值，以及可选的 YAML/JSON 文件（按扩展名选择解析器）或内存数据。
//
//	node:
//	  host: 0.0.0.0
//	  port: 5050
//	  acks: true
//	  send_timeout: 3s
//	log_level: debug
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/lwmacct/251217-go-pkg-process/pkg/actor"
)

// File 配置文件结构
type File struct {
	Node     actor.Config `koanf:"node"`
	LogLevel string       `koanf:"log_level"`
}

// Default 默认配置
func Default() *File {
	return &File{
		Node:     *actor.DefaultConfig(),
		LogLevel: "info",
	}
}

// Load 加载配置，path 为空时只使用默认值
func Load(path string) (*File, error) {
	k, err := defaults()
	if err != nil {
		return nil, err
	}

	if path != "" {
		parser, err := parserFor(filepath.Ext(path))
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return unmarshal(k)
}

// Parse 从内存数据加载配置，format 为 yaml、yml 或 json
// 用于嵌入的配置或测试
func Parse(data []byte, format string) (*File, error) {
	k, err := defaults()
	if err != nil {
		return nil, err
	}

	parser, err := parserFor(format)
	if err != nil {
		return nil, err
	}
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return nil, fmt.Errorf("parse %s config: %w", format, err)
	}
	return unmarshal(k)
}

func defaults() (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	return k, nil
}

func unmarshal(k *koanf.Koanf) (*File, error) {
	var out File
	if err := k.Unmarshal("", &out); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &out, nil
}

// parserFor 按扩展名或格式名选择解析器
func parserFor(format string) (koanf.Parser, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		return yaml.Parser(), nil
	case "json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
}

// Level 解析日志级别，无法识别时返回 Info
func (f *File) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(f.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
