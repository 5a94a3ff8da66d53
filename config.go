package offlinecache

import (
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors the yaml configuration file.
// Timeout values are in seconds.
type FileConfig struct {
	Origin              string      `yaml:"origin"`
	Version             string      `yaml:"version"`
	Manifest            []string    `yaml:"manifest"`
	OfflinePage         string      `yaml:"offlinePage"`
	APIPrefix           string      `yaml:"apiPrefix"`
	FetchTimeoutSeconds int         `yaml:"fetchTimeout"`
	SkipWaiting         bool        `yaml:"skipWaiting"`
	Quota               QuotaConfig `yaml:"quota"`
	Routes              []RouteRule `yaml:"routes"`
	SyncMaxAttempts     int         `yaml:"syncMaxAttempts"`
}

func GetConfig(filename string) (FileConfig, error) {
	var config FileConfig
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
