package config

import "gopkg.in/yaml.v3"

func marshalYAML(cfg *Configuration) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func unmarshalYAML(data []byte, cfg *Configuration) error {
	return yaml.Unmarshal(data, cfg)
}
