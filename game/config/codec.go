package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/wricardo/mcp-training/storageyard/game/engine"
)

//go:embed preset.schema.json
var presetSchemaJSON string

var presetSchema = compilePresetSchema()

func compilePresetSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("preset.schema.json", strings.NewReader(presetSchemaJSON)); err != nil {
		panic(fmt.Sprintf("preset schema: %v", err))
	}
	return compiler.MustCompile("preset.schema.json")
}

// Format is a preset file encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// supportedExtensions in lookup order
var supportedExtensions = []string{".json", ".yaml", ".yml"}

// FormatForPath picks the encoding from a file extension
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return "", false
}

// DecodePreset validates a preset document against the schema, decodes it and
// checks the semantic rules of the engine.
func DecodePreset(data []byte, format Format) (*engine.EnvConfig, error) {
	doc, err := genericDocument(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := presetSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var cfg engine.EnvConfig
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := engine.ValidateEnvConfig(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// EncodePreset serializes a preset in the given format
func EncodePreset(cfg *engine.EnvConfig, format Format) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(cfg)
	}
	return json.MarshalIndent(cfg, "", "  ")
}

// genericDocument converts a JSON or YAML document into the value shapes the
// schema validator expects (those produced by encoding/json).
func genericDocument(data []byte, format Format) (interface{}, error) {
	if format == FormatYAML {
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		converted, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		data = converted
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
