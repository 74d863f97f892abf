package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const header = `# dokanfs configuration.
#
# Every key can be overridden by an environment variable,
# e.g. DOKANFS_MOUNT_MOUNT_POINT or DOKANFS_BACKEND_TYPE.
# Only the backend section matching backend.type is used.

`

// Encode writes cfg as YAML.
func Encode(w io.Writer, cfg *Config) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return errors.Wrap(err, "encode config")
	}
	return errors.Wrap(encoder.Close(), "encode config")
}

// WriteFile writes cfg to path with an explanatory header,
// creating the parent directories. An existing file is only
// replaced when force is set.
func WriteFile(path string, cfg *Config, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.Errorf("config file %q already exists", path)
	}
	var buf bytes.Buffer
	buf.WriteString(header)
	if err := Encode(&buf, cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	return errors.Wrapf(os.WriteFile(path, buf.Bytes(), 0o600), "write %q", path)
}
