package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "toml":
		return tomlTemplate, nil
	case "yaml", "yml":
		return yamlTemplate, nil
	default:
		return "", fmt.Errorf("unknown config format: %s", format)
	}
}

func WriteTemplate(path, format string, overwrite bool) error {
	template, err := Template(format)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const tomlTemplate = `host = "localhost"
port = 10000
ident = "hpname"
secret = "change-me"
channel = "chan1"

connect_timeout = "5s"
handshake_timeout = "5s"
write_timeout = "0s"
rate_limit_bps = 0
max_frame_bytes = 1048576

log_level = "info"
log_file = ""
metrics_addr = ""
`

const yamlTemplate = `host: localhost
port: 10000
ident: hpname
secret: change-me
channel: chan1

connect_timeout: 5s
handshake_timeout: 5s
write_timeout: 0s
rate_limit_bps: 0
max_frame_bytes: 1048576

log_level: info
log_file: ""
metrics_addr: ""
`
