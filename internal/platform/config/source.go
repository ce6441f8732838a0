package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultEnvFile = ".env"

// Option customises Load and EnvironmentValues.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	systemEnv       bool
	resolver        SecretResolver
	requiredSecrets []string
}

func newLoaderOptions(opts []Option) loaderOptions {
	o := loaderOptions{envFile: defaultEnvFile, systemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithEnvFile points the loader at a dotenv file. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap layers explicit values over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.systemEnv = false }
}

// WithSecretResolver resolves secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.resolver = resolver }
}

// WithRequiredSecrets lists config fields (e.g. "Payments.StripeAPIKey" or
// "Security.HMAC.Secrets[cms]") that must resolve to a non-empty value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// source is a stack of key/value layers; later layers win.
type source struct {
	layers []map[string]string
}

func newSource(o loaderOptions) (*source, error) {
	dotenv, err := readDotEnvFile(o.envFile)
	if err != nil {
		return nil, err
	}
	s := &source{}
	s.push(dotenv)
	if o.systemEnv {
		s.push(processEnv())
	}
	s.push(o.envMap)
	return s, nil
}

func (s *source) push(layer map[string]string) {
	if len(layer) > 0 {
		s.layers = append(s.layers, layer)
	}
}

func (s *source) get(key string) string {
	for i := len(s.layers) - 1; i >= 0; i-- {
		if v, ok := s.layers[i][key]; ok && v != "" {
			return v
		}
	}
	return ""
}

func (s *source) flatten() map[string]string {
	out := make(map[string]string)
	for _, layer := range s.layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

func (s *source) str(key, fallback string) string {
	if v := s.get(key); v != "" {
		return v
	}
	return fallback
}

func (s *source) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s.get(key)); err == nil {
		return d
	}
	return fallback
}

func (s *source) integer(key string, fallback int) int {
	if n, err := strconv.Atoi(s.get(key)); err == nil {
		return n
	}
	return fallback
}

// pairs reads "name=value,name=value" with lower-cased names.
func (s *source) pairs(key string) map[string]string {
	out := make(map[string]string)
	for _, entry := range strings.Split(s.get(key), ",") {
		name, value, ok := strings.Cut(entry, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if ok && name != "" && value != "" {
			out[name] = value
		}
	}
	return out
}

// EnvironmentValues returns the merged environment Load would see (dotenv, then the process
// environment, then WithEnvMap). Callers use it to build dependencies needed by Load itself.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	src, err := newSource(newLoaderOptions(opts))
	if err != nil {
		return nil, err
	}
	return src.flatten(), nil
}

func processEnv() map[string]string {
	env := os.Environ()
	out := make(map[string]string, len(env))
	for _, entry := range env {
		key, value, ok := strings.Cut(entry, "=")
		if key = strings.TrimSpace(key); ok && key != "" {
			out[key] = value
		}
	}
	return out
}

func readDotEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	values, err := parseDotEnv(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return values, nil
}

// parseDotEnv accepts KEY=value lines with optional "export " prefixes, quotes and # comments.
func parseDotEnv(r io.Reader) (map[string]string, error) {
	values := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return values, scanner.Err()
}
