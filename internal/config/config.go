package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Listen        string `yaml:"listen"`
	DataDir       string `yaml:"data_dir"`
	BlobDir       string `yaml:"blob_dir"`
	MinimumFreeGB uint   `yaml:"minimum_free_gb"`
}

func defaults() Config {
	return Config{
		Listen:        ":8900",
		DataDir:       "data",
		BlobDir:       "blobs",
		MinimumFreeGB: 1,
	}
}

// Load reads a YAML config file and fills missing fields with defaults. A
// missing file is not an error; the defaults are returned.
func Load(path string) (Config, error) {
	config := defaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if config.Listen == "" {
		config.Listen = defaults().Listen
	}
	if config.DataDir == "" {
		config.DataDir = defaults().DataDir
	}
	if config.BlobDir == "" {
		config.BlobDir = defaults().BlobDir
	}

	return config, nil
}
