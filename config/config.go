// Package config loads prediction pipeline options from JSON or YAML files
// with optional environment variable overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	predictor "github.com/avoskamp/go-predictor"
)

// Load reads pipeline options from the file at path, detecting the format
// from the extension. Environment variables prefixed with PREDICTOR_
// override file values, with double underscores mapping to nesting, e.g.
// PREDICTOR_FOLD_COUNT=5 or PREDICTOR_MODEL_OPTIONS__HOLT_WINTERS__ALPHA=0.4.
// The returned options are validated.
func Load(path string) (*predictor.Options, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("PREDICTOR_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "predictor_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	opt := predictor.NewDefaultOptions()
	if err := k.UnmarshalWithConf("", opt, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	return opt.Validate()
}
