// Package config loads the server configuration from YAML with environment
// variable expansion and env-tag overrides.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration. Every field has a working default;
// only the credential source is mandatory before serving.
type Config struct {
	Credentials struct {
		// File points at the service-account JSON key. The
		// GOOGLE_SERVICE_ACCOUNT_JSON variable matches the original
		// deployment convention.
		File string `yaml:"file" env:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	} `yaml:"credentials"`

	HTTP struct {
		Addr      string `yaml:"addr" env:"PLAYMCP_HTTP_ADDR"`
		AuthToken string `yaml:"auth_token" env:"PLAYMCP_HTTP_AUTH_TOKEN"`
	} `yaml:"http"`

	Upstream struct {
		PublisherBaseURL string `yaml:"publisher_base_url" env:"PLAYMCP_PUBLISHER_BASE_URL"`
		ReportingBaseURL string `yaml:"reporting_base_url" env:"PLAYMCP_REPORTING_BASE_URL"`
	} `yaml:"upstream"`

	Audit struct {
		Path string `yaml:"path" env:"PLAYMCP_AUDIT_DB"`
	} `yaml:"audit"`
}

// Load reads a YAML configuration file into the given struct. ${VAR}
// references in the file are expanded, then env-tag overrides applied.
func Load(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	applyEnvOverrides(out)

	return nil
}

// LoadOrDefault tries to load config from path, falling back to env-only
// configuration when the file doesn't exist.
func LoadOrDefault(path string, out any) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		applyEnvOverrides(out)
		return nil
	}
	return Load(path, out)
}

// applyEnvOverrides sets struct fields from environment variables using the
// `env` struct tag, recursing into nested structs.
func applyEnvOverrides(v any) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return
	}

	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := val.Field(i)

		if fieldVal.Kind() == reflect.Struct {
			if fieldVal.CanAddr() {
				applyEnvOverrides(fieldVal.Addr().Interface())
			}
			continue
		}

		envTag := field.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envVal, ok := os.LookupEnv(envTag)
		if !ok {
			continue
		}

		if !fieldVal.CanSet() {
			continue
		}

		switch fieldVal.Kind() {
		case reflect.String:
			fieldVal.SetString(envVal)
		case reflect.Int, reflect.Int64:
			var n int64
			if _, err := fmt.Sscanf(envVal, "%d", &n); err == nil {
				fieldVal.SetInt(n)
			}
		case reflect.Float64:
			var f float64
			if _, err := fmt.Sscanf(envVal, "%f", &f); err == nil {
				fieldVal.SetFloat(f)
			}
		case reflect.Bool:
			fieldVal.SetBool(strings.EqualFold(envVal, "true") || envVal == "1")
		}
	}
}
