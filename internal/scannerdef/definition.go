// Package scannerdef loads scanner definitions from files for the CLI.
//
// A definition is YAML (.yaml, .yml), TOML (.toml) or a bare script
// (.star, .py, anything else). Structured files name the code inline with
// "code" or point at a script with "code_file", resolved relative to the
// definition's directory.
package scannerdef

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/wonny/fluxscan/internal/scanner"
)

// Definition is a scanner as described in a file.
type Definition struct {
	Name        string                 `yaml:"name" toml:"name" json:"name"`
	Description string                 `yaml:"description" toml:"description" json:"description"`
	Category    string                 `yaml:"category,omitempty" toml:"category" json:"category"`
	Code        string                 `yaml:"code" toml:"code" json:"code"`
	CodeFile    string                 `yaml:"code_file,omitempty" toml:"code_file" json:"-"`
	Parameters  map[string]interface{} `yaml:"parameters" toml:"parameters" json:"parameters"`
	Settings    Settings               `yaml:"settings,omitempty" toml:"settings" json:"settings"`
}

// Settings are batch defaults a definition may carry.
type Settings struct {
	Exchange     string `yaml:"exchange" toml:"exchange" json:"exchange"`
	Interval     string `yaml:"interval" toml:"interval" json:"interval"`
	LookbackDays int    `yaml:"lookback_days" toml:"lookback_days" json:"lookback_days"`
}

// Batch converts the settings for MergeParams.
func (s Settings) Batch() scanner.BatchSettings {
	return scanner.BatchSettings{Exchange: s.Exchange, Interval: s.Interval, LookbackDays: s.LookbackDays}
}

// Load reads a definition file. Unknown fields in structured files are an error.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var def Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		def.Code = string(data)
	}

	if def.CodeFile != "" {
		if def.Code != "" {
			return nil, fmt.Errorf("%s: code and code_file are mutually exclusive", path)
		}
		codePath := def.CodeFile
		if !filepath.IsAbs(codePath) {
			codePath = filepath.Join(filepath.Dir(path), codePath)
		}
		code, err := os.ReadFile(codePath)
		if err != nil {
			return nil, fmt.Errorf("code_file: %w", err)
		}
		def.Code = string(code)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := def.Check(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Check reports structural problems. Script validation is left to
// scanner.Validate so callers can print its warnings.
func (d *Definition) Check() error {
	if strings.TrimSpace(d.Code) == "" {
		return errors.New("definition has no code")
	}
	if _, err := scanner.ParseSchema(d.Parameters); err != nil {
		return fmt.Errorf("parameters: %w", err)
	}
	if d.Settings.Exchange != "" && strings.ToUpper(d.Settings.Exchange) != d.Settings.Exchange {
		return fmt.Errorf("settings.exchange %q must be upper case", d.Settings.Exchange)
	}
	if d.Settings.LookbackDays < 0 {
		return errors.New("settings.lookback_days must be >= 0")
	}
	return nil
}

// Hash fingerprints the code and parameters so runs can be traced back to
// the exact definition.
func Hash(d *Definition) (string, error) {
	b, err := json.Marshal(struct {
		Code       string                 `json:"code"`
		Parameters map[string]interface{} `json:"parameters"`
	}{d.Code, d.Parameters})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// ParseOverrides turns k=v flags into parameter overrides. Values are read
// as YAML scalars, so 14 is an int, 1.5 a float and true a bool.
func ParseOverrides(pairs []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("parameter %q: want key=value", p)
		}
		var val interface{}
		if err := yaml.Unmarshal([]byte(v), &val); err != nil || val == nil {
			val = v
		}
		out[k] = val
	}
	return out, nil
}
