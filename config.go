package deployer

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Configuration key names, namespaced under the deployer's section.
const (
	KeyAccessKey      = "aws_access_key"
	KeySecretKey      = "aws_secret_key"
	KeyBucket         = "bucket"
	KeyBucketRegion   = "bucket_region"
	KeyAutodetectMIME = "autodetect_mime"
	KeyChangesTrigger = "changes_trigger"
)

// DefaultSection is the configuration section this deployer reads when the
// caller does not name one.
const DefaultSection = "amazon_s3"

// Configurator is a flat section/key lookup. Missing entries return "".
type Configurator interface {
	Get(section, key string) string
}

// Config holds the validated settings a Deployer is activated with.
type Config struct {
	AccessKey      string
	SecretKey      string
	Bucket         string
	Region         string
	AutodetectMIME bool
	Trigger        Trigger
}

// ParseConfig reads the deployer settings from the given section and
// validates them. Each absent required setting is reported as a ConfigError
// naming that setting.
func ParseConfig(c Configurator, section string) (Config, error) {
	if c == nil {
		return Config{}, fmt.Errorf("nil configurator")
	}
	if section == "" {
		section = DefaultSection
	}

	cfg := Config{
		AccessKey: strings.TrimSpace(c.Get(section, KeyAccessKey)),
		SecretKey: strings.TrimSpace(c.Get(section, KeySecretKey)),
		Bucket:    strings.TrimSpace(c.Get(section, KeyBucket)),
		Region:    strings.TrimSpace(c.Get(section, KeyBucketRegion)),
	}

	for _, required := range []struct {
		key   string
		value string
	}{
		{KeyAccessKey, cfg.AccessKey},
		{KeySecretKey, cfg.SecretKey},
		{KeyBucket, cfg.Bucket},
		{KeyBucketRegion, cfg.Region},
	} {
		if required.value == "" {
			return Config{}, &ConfigError{Field: required.key}
		}
	}

	if raw := strings.TrimSpace(c.Get(section, KeyAutodetectMIME)); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err == nil {
			cfg.AutodetectMIME = parsed
		}
	}
	cfg.Trigger = ParseTrigger(strings.TrimSpace(c.Get(section, KeyChangesTrigger)))

	return cfg, nil
}

// FileConfig is a Configurator backed by a YAML file laid out as
// sections of scalar values:
//
//	amazon_s3:
//	  aws_access_key: AKIA...
//	  bucket: mybucket
type FileConfig struct {
	sections map[string]map[string]string
}

// LoadConfigFile parses path into a FileConfig.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return parseConfigBytes(data)
}

func parseConfigBytes(data []byte) (*FileConfig, error) {
	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sections := make(map[string]map[string]string, len(raw))
	for section, keys := range raw {
		values := make(map[string]string, len(keys))
		for key, value := range keys {
			switch v := value.(type) {
			case nil:
				values[key] = ""
			case string:
				values[key] = v
			case bool:
				values[key] = strconv.FormatBool(v)
			case int:
				values[key] = strconv.Itoa(v)
			default:
				values[key] = fmt.Sprintf("%v", v)
			}
		}
		sections[section] = values
	}
	return &FileConfig{sections: sections}, nil
}

// Get returns the value for section/key, or "" when absent.
func (f *FileConfig) Get(section, key string) string {
	if f == nil {
		return ""
	}
	return f.sections[section][key]
}

// EnvConfig is a Configurator resolving "<PREFIX><SECTION>_<KEY>"
// environment variables, e.g. PHASSETS_AMAZON_S3_BUCKET.
type EnvConfig struct {
	Prefix string
}

// Get returns the environment value for section/key, or "" when unset.
func (e EnvConfig) Get(section, key string) string {
	name := e.Prefix + strings.ToUpper(section) + "_" + strings.ToUpper(key)
	return os.Getenv(name)
}

// Layered is a Configurator that returns the first non-empty answer from
// its members, letting environment variables override file settings.
type Layered []Configurator

// Get queries each member in order.
func (l Layered) Get(section, key string) string {
	for _, c := range l {
		if c == nil {
			continue
		}
		if v := c.Get(section, key); v != "" {
			return v
		}
	}
	return ""
}
