package publishers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// Supported publisher types.
	TypeSQS    = "sqs"
	TypeSNS    = "sns"
	TypePubSub = "pubsub"
	TypeHTTP   = "http"
)

type configFile struct {
	Publishers []PublisherConfig `json:"publishers" yaml:"publishers"`
}

// PublisherConfig is one sink entry of the publishers file. Exactly the block matching Type
// is read.
type PublisherConfig struct {
	ID      string                 `json:"id" yaml:"id"`
	Type    string                 `json:"type" yaml:"type"`
	Enabled *bool                  `json:"enabled" yaml:"enabled"`
	SQS     *SQSPublisherConfig    `json:"sqs" yaml:"sqs"`
	SNS     *SNSPublisherConfig    `json:"sns" yaml:"sns"`
	PubSub  *PubSubPublisherConfig `json:"pubsub" yaml:"pubsub"`
	HTTP    *HTTPPublisherConfig   `json:"http" yaml:"http"`
}

// ConfigRegistry holds the sink entries of a publishers file. It is read-only after
// LoadRegistry.
type ConfigRegistry struct {
	publishers []PublisherConfig
	idx        map[string]PublisherConfig
}

// LoadRegistry reads a YAML or JSON publishers file. Every entry is normalized and
// validated against its sink type; ids must be unique.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("publishers file path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}

	file, err := decodeConfigFile(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(file.Publishers) == 0 {
		return nil, errors.New("publishers file contains no publishers entries")
	}

	reg := &ConfigRegistry{
		publishers: make([]PublisherConfig, 0, len(file.Publishers)),
		idx:        make(map[string]PublisherConfig, len(file.Publishers)),
	}
	for i, entry := range file.Publishers {
		cfg := entry.normalized()
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("publishers[%d]: %w", i, err)
		}
		if _, exists := reg.idx[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate publisher id %q", cfg.ID)
		}
		reg.publishers = append(reg.publishers, cfg)
		reg.idx[cfg.ID] = cfg
	}
	return reg, nil
}

// decodeConfigFile picks the decoder from the file extension. Files without a known
// extension are read as YAML, which also accepts JSON.
func decodeConfigFile(data []byte, ext string) (configFile, error) {
	var file configFile
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return configFile{}, fmt.Errorf("decode json publishers: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return configFile{}, fmt.Errorf("decode yaml publishers: %w", err)
		}
	}
	return file, nil
}

// normalized trims the entry and the sink blocks it carries.
func (cfg PublisherConfig) normalized() PublisherConfig {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.Enabled == nil {
		enabled := true
		cfg.Enabled = &enabled
	}
	if cfg.SQS != nil {
		c := cfg.SQS.normalized()
		cfg.SQS = &c
	}
	if cfg.SNS != nil {
		c := cfg.SNS.normalized()
		cfg.SNS = &c
	}
	if cfg.PubSub != nil {
		c := cfg.PubSub.normalized()
		cfg.PubSub = &c
	}
	if cfg.HTTP != nil {
		c := cfg.HTTP.normalized()
		cfg.HTTP = &c
	}
	return cfg
}

// sinkConfig is implemented by every per-type block.
type sinkConfig interface {
	validate() error
}

// sink returns the block matching the entry's type.
func (cfg PublisherConfig) sink() (sinkConfig, error) {
	var (
		block   sinkConfig
		present bool
	)
	switch cfg.Type {
	case TypeSQS:
		block, present = cfg.SQS, cfg.SQS != nil
	case TypeSNS:
		block, present = cfg.SNS, cfg.SNS != nil
	case TypePubSub:
		block, present = cfg.PubSub, cfg.PubSub != nil
	case TypeHTTP:
		block, present = cfg.HTTP, cfg.HTTP != nil
	default:
		return nil, fmt.Errorf("unsupported type %q", cfg.Type)
	}
	if !present {
		return nil, fmt.Errorf("%s block is required", cfg.Type)
	}
	return block, nil
}

func (cfg PublisherConfig) validate() error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	if cfg.Type == "" {
		return fmt.Errorf("publisher %q: type is required", cfg.ID)
	}
	block, err := cfg.sink()
	if err != nil {
		return fmt.Errorf("publisher %q: %w", cfg.ID, err)
	}
	if err := block.validate(); err != nil {
		return fmt.Errorf("publisher %q: %s.%w", cfg.ID, cfg.Type, err)
	}
	return nil
}

// ByID returns the entry with the given id.
func (r *ConfigRegistry) ByID(id string) (PublisherConfig, bool) {
	if r == nil {
		return PublisherConfig{}, false
	}
	cfg, ok := r.idx[strings.TrimSpace(id)]
	return cfg, ok
}

// All returns every entry in file order.
func (r *ConfigRegistry) All() []PublisherConfig {
	if r == nil {
		return nil
	}
	return append([]PublisherConfig(nil), r.publishers...)
}

// Enabled returns the entries whose enabled flag is unset or true.
func (r *ConfigRegistry) Enabled() []PublisherConfig {
	if r == nil {
		return nil
	}
	var out []PublisherConfig
	for _, cfg := range r.publishers {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}

// EnabledValue returns the enabled flag, defaulting to true.
func (cfg PublisherConfig) EnabledValue() bool {
	return cfg.Enabled == nil || *cfg.Enabled
}
