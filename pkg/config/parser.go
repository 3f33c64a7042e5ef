package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vhive-serverless/replayer/pkg/common"
	"gopkg.in/yaml.v3"
)

type LoaderConfiguration struct {
	Seed int64 `json:"Seed" yaml:"Seed"`

	Platform string `json:"Platform" yaml:"Platform"`
	Mode     string `json:"Mode" yaml:"Mode"`
	Workers  int    `json:"Workers" yaml:"Workers"`

	ScheduleConfigPath string `json:"ScheduleConfigPath" yaml:"ScheduleConfigPath"`
	OutputPathPrefix   string `json:"OutputPathPrefix" yaml:"OutputPathPrefix"`

	// HTTP and gRPC platforms
	InvokeProtocol   string            `json:"InvokeProtocol" yaml:"InvokeProtocol"`
	Endpoints        map[string]string `json:"Endpoints" yaml:"Endpoints"`
	AsyncResponseURL string            `json:"AsyncResponseURL" yaml:"AsyncResponseURL"`

	// OpenWhisk platform
	WskPath       string   `json:"WskPath" yaml:"WskPath"`
	WskArgs       []string `json:"WskArgs" yaml:"WskArgs"`
	WskRemoteHost string   `json:"WskRemoteHost" yaml:"WskRemoteHost"`
	WskRemoteUser string   `json:"WskRemoteUser" yaml:"WskRemoteUser"`

	FunctionPayloads map[string]json.RawMessage `json:"FunctionPayloads" yaml:"-"`

	// FetchPollIntervalMs and CollectionGraceSeconds default to 125 ms and 2 s when the key is
	// absent; an explicit 0 grace skips the drain delay.
	FetchPollIntervalMs    int `json:"FetchPollIntervalMs" yaml:"FetchPollIntervalMs"`
	FetchTimeoutSeconds    int `json:"FetchTimeoutSeconds" yaml:"FetchTimeoutSeconds"`
	CollectionGraceSeconds int `json:"CollectionGraceSeconds" yaml:"CollectionGraceSeconds"`
	CollectionConcurrency  int `json:"CollectionConcurrency" yaml:"CollectionConcurrency"`

	EnableZipkinTracing bool `json:"EnableZipkinTracing" yaml:"EnableZipkinTracing"`

	GRPCConnectionTimeoutSeconds int `json:"GRPCConnectionTimeoutSeconds" yaml:"GRPCConnectionTimeoutSeconds"`
	GRPCFunctionTimeoutSeconds   int `json:"GRPCFunctionTimeoutSeconds" yaml:"GRPCFunctionTimeoutSeconds"`
}

// defaultConfiguration holds the values that stay in place when a key is missing from the file.
func defaultConfiguration() LoaderConfiguration {
	return LoaderConfiguration{
		FetchPollIntervalMs:    int(common.DefaultFetchPollInterval / time.Millisecond),
		CollectionGraceSeconds: int(common.DefaultCollectionGrace / time.Second),
	}
}

// yamlPayloads carries function payloads in YAML files, where they are written as nested mappings.
type yamlPayloads struct {
	FunctionPayloads map[string]interface{} `yaml:"FunctionPayloads"`
}

func ReadConfigurationFile(path string) LoaderConfiguration {
	byteValue, err := os.ReadFile(path)
	if err != nil {
		log.Fatal(err)
	}

	config, err := ParseConfiguration(byteValue, filepath.Ext(path))
	if err != nil {
		log.Fatal(err)
	}

	return config
}

// ParseConfiguration decodes a loader configuration. YAML is selected by a .yaml/.yml extension, JSON otherwise.
func ParseConfiguration(data []byte, extension string) (LoaderConfiguration, error) {
	config := defaultConfiguration()

	switch strings.ToLower(extension) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, err
		}

		var payloads yamlPayloads
		if err := yaml.Unmarshal(data, &payloads); err != nil {
			return config, err
		}

		if len(payloads.FunctionPayloads) > 0 {
			config.FunctionPayloads = make(map[string]json.RawMessage, len(payloads.FunctionPayloads))
			for name, payload := range payloads.FunctionPayloads {
				raw, err := json.Marshal(payload)
				if err != nil {
					return config, err
				}
				config.FunctionPayloads[name] = raw
			}
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return config, err
		}
	}

	ApplyDefaults(&config)

	return config, nil
}
