package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// config is the on-disk launcher config file shape, grounded on
// cmd/ccapp/site_config.go's yaml loading pattern.
type config struct {
	Rootfs string `yaml:"rootfs"`
	Entry  string `yaml:"entry"`
}

func defaultConfig() config {
	return config{Entry: "/bin/sh"}
}

func loadConfig(path string) (config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return config{}, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return config{}, err
	}
	return cfg, nil
}
