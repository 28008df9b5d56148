package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string // hcl file or directory

	LogFormat      string
	LogLevel       string
	IntrospectPort int

	Epochs    int
	Optimize  bool
	PrintTree bool
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	if cfg.Epochs < 1 {
		return nil, errors.New("Epochs must be at least 1")
	}
	if cfg.IntrospectPort < 0 || cfg.IntrospectPort > 65535 {
		return nil, errors.New("IntrospectPort must be between 0 and 65535")
	}
	return &cfg, nil
}
