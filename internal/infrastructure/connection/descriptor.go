package connection

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDescriptor is returned when a connection string cannot be parsed.
var ErrInvalidDescriptor = errors.New("invalid connection string")

// Descriptor is a parsed "Key=Value;Key=Value" connection string.
// Keys are case-insensitive. A string starting with a URL scheme
// (nats://, redis://, postgres://) is kept as a single "url" entry.
type Descriptor struct {
	values map[string]string
}

// Parse parses a resolved connection string.
func Parse(raw string) (Descriptor, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Descriptor{}, fmt.Errorf("%w: empty", ErrInvalidDescriptor)
	}

	values := make(map[string]string)
	if strings.Contains(trimmed, "://") && !strings.Contains(trimmed, ";") {
		values["url"] = trimmed
		return Descriptor{values: values}, nil
	}

	for _, part := range strings.Split(trimmed, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return Descriptor{}, fmt.Errorf("%w: segment %q has no '='", ErrInvalidDescriptor, part)
		}

		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return Descriptor{}, fmt.Errorf("%w: empty key", ErrInvalidDescriptor)
		}
		values[key] = strings.TrimSpace(value)
	}

	if len(values) == 0 {
		return Descriptor{}, fmt.Errorf("%w: no settings", ErrInvalidDescriptor)
	}

	return Descriptor{values: values}, nil
}

// Get returns the value for key, or "".
func (d Descriptor) Get(key string) string {
	return d.values[strings.ToLower(key)]
}

// GetDefault returns the value for key, or def when unset.
func (d Descriptor) GetDefault(key, def string) string {
	if value := d.Get(key); value != "" {
		return value
	}
	return def
}

// Require returns the value for key or an error naming the missing key.
func (d Descriptor) Require(key string) (string, error) {
	value := d.Get(key)
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidDescriptor, key)
	}
	return value, nil
}

// Bool parses a boolean setting.
func (d Descriptor) Bool(key string, def bool) (bool, error) {
	value := d.Get(key)
	if value == "" {
		return def, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def, fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, key, err)
	}
	return parsed, nil
}

// Int parses an integer setting.
func (d Descriptor) Int(key string, def int) (int, error) {
	value := d.Get(key)
	if value == "" {
		return def, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def, fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, key, err)
	}
	return parsed, nil
}

// Duration parses a duration setting ("5s", "1m").
func (d Descriptor) Duration(key string, def time.Duration) (time.Duration, error) {
	value := d.Get(key)
	if value == "" {
		return def, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def, fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, key, err)
	}
	return parsed, nil
}

// URL returns the "url" entry, which is set for scheme-style strings
// or explicitly as Url=...
func (d Descriptor) URL() string {
	return d.Get("url")
}

// AWS holds the settings shared by the AWS-backed stores.
type AWS struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// AWSSettings extracts AWS settings. Region defaults to defaultRegion.
// Static credentials must be given in pairs.
func (d Descriptor) AWSSettings(defaultRegion string) (AWS, error) {
	settings := AWS{
		Region:          d.GetDefault("region", defaultRegion),
		Endpoint:        d.Get("endpoint"),
		AccessKeyID:     d.Get("accesskeyid"),
		SecretAccessKey: d.Get("secretaccesskey"),
		SessionToken:    d.Get("sessiontoken"),
	}

	if (settings.AccessKeyID == "") != (settings.SecretAccessKey == "") {
		return AWS{}, fmt.Errorf("%w: both AccessKeyId and SecretAccessKey are required for static credentials", ErrInvalidDescriptor)
	}
	if settings.Region == "" {
		return AWS{}, fmt.Errorf("%w: Region is required", ErrInvalidDescriptor)
	}

	return settings, nil
}
