package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Version   string      `yaml:"version"`
	Namespace string      `yaml:"namespace"`
	Origin    string      `yaml:"origin"`
	Port      int         `yaml:"port"`
	Provider  string      `yaml:"provider"`
	DB        string      `yaml:"db"`
	Shell     ShellConfig `yaml:"shell"`
}

type ShellConfig struct {
	// Assets prefetched into the static cache at install time.
	Assets []string `yaml:"assets"`
	// Document served as offline fallback for navigations.
	// Defaults to the first asset.
	Document string `yaml:"document"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
