package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

// DumpYAML renders the effective configuration as YAML with secrets
// redacted. Used by the `config` command to show what the server will
// actually run with after defaults and env overrides.
func (c *Config) DumpYAML() (string, error) {
	// Work on a copy so redaction does not leak into the live config.
	cp := *c

	if cp.Database.Postgres.Password != "" {
		cp.Database.Postgres.Password = redacted
	}

	if cp.PageSpeed.APIKey != "" {
		cp.PageSpeed.APIKey = redacted
	}

	if cp.Archive.S3 != nil {
		s3 := *cp.Archive.S3
		if s3.SecretAccessKey != "" {
			s3.SecretAccessKey = redacted
		}

		cp.Archive.S3 = &s3
	}

	out, err := yaml.Marshal(&cp)
	if err != nil {
		return "", fmt.Errorf("marshalling config: %w", err)
	}

	return string(out), nil
}
