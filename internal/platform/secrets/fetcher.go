// Package secrets resolves secret:// references against Google Secret Manager, with a local
// file for development and a short-lived cache so rotations are picked up without a restart.
package secrets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultLocalFile = ".secrets.local"
	defaultCacheTTL  = 10 * time.Minute
	meterName        = "github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/secrets"
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher implements config.SecretResolver.
type Fetcher struct {
	client     accessor
	ownsClient bool
	logger     *zap.Logger

	env            string
	defaultProject string
	projects       map[string]string
	pins           map[string]string
	local          *localFile

	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	cache map[string]cached

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type cached struct {
	value     string
	canonical string
	fetchedAt time.Time
}

type settings struct {
	logger         *zap.Logger
	env            string
	defaultProject string
	projects       map[string]string
	pins           map[string]string
	localFile      string
	meter          metric.Meter
	client         accessor
	clientOpts     []option.ClientOption
	ttl            time.Duration
	clock          func() time.Time
}

// Option customises NewFetcher.
type Option func(*settings)

func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithEnvironment selects the entry of the project map to use.
func WithEnvironment(env string) Option {
	return func(s *settings) { s.env = strings.ToLower(strings.TrimSpace(env)) }
}

// WithDefaultProject is used when the project map has no entry for the environment.
func WithDefaultProject(projectID string) Option {
	return func(s *settings) { s.defaultProject = strings.TrimSpace(projectID) }
}

// WithProjectMap maps environment names to Secret Manager projects.
func WithProjectMap(m map[string]string) Option {
	return func(s *settings) { s.projects = maps.Clone(m) }
}

// WithFallbackFile sets the local secrets file. An empty path disables it.
func WithFallbackFile(path string) Option {
	return func(s *settings) { s.localFile = strings.TrimSpace(path) }
}

func WithMeter(m metric.Meter) Option {
	return func(s *settings) { s.meter = m }
}

// WithSecretManagerClient injects the Secret Manager client.
func WithSecretManagerClient(client accessor) Option {
	return func(s *settings) { s.client = client }
}

// WithClientOptions are passed to secretmanager.NewClient.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) { s.clientOpts = append(s.clientOpts, opts...) }
}

// WithVersionPins fixes versions per canonical reference. Keys may be prefixed with
// "<env>:" to pin only in one environment.
func WithVersionPins(pins map[string]string) Option {
	return func(s *settings) { s.pins = maps.Clone(pins) }
}

// WithCacheTTL bounds how long a resolved value is reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewFetcher builds a Fetcher. When no Secret Manager client can be created it logs a warning
// and serves only from the local file.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	s := settings{
		logger:    zap.NewNop(),
		env:       strings.ToLower(strings.TrimSpace(os.Getenv("STOREFRONT_ENVIRONMENT"))),
		localFile: defaultLocalFile,
		ttl:       defaultCacheTTL,
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.env == "" {
		s.env = "local"
	}
	if s.meter == nil {
		s.meter = otel.GetMeterProvider().Meter(meterName)
	}

	f := &Fetcher{
		client:         s.client,
		logger:         s.logger,
		env:            s.env,
		defaultProject: s.defaultProject,
		projects:       s.projects,
		pins:           s.pins,
		local:          &localFile{path: s.localFile},
		ttl:            s.ttl,
		now:            s.clock,
		cache:          make(map[string]cached),
	}

	var err error
	if f.latency, err = s.meter.Float64Histogram("storefront.secrets.fetch.latency",
		metric.WithUnit("ms"), metric.WithDescription("Secret resolution latency")); err != nil {
		s.logger.Warn("secrets: latency metric disabled", zap.Error(err))
	}
	if f.cacheHits, err = s.meter.Int64Counter("storefront.secrets.fetch.cache_hits",
		metric.WithDescription("Secret resolutions served from cache")); err != nil {
		s.logger.Warn("secrets: cache hit metric disabled", zap.Error(err))
	}

	if f.client == nil {
		client, err := newSecretManagerClient(ctx, s.clientOpts...)
		if err != nil {
			s.logger.Warn("secrets: secret manager unavailable, using local file only", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the value behind raw. Secret Manager is consulted first; the local file is
// only used when Secret Manager is unreachable or denies access, never when the secret is
// simply absent.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	start := time.Now()
	ref, err := ParseRef(raw)
	if err != nil {
		return "", err
	}
	version := f.version(ref)
	key := versionKey(ref.String(), version)

	if value, ok := f.cached(key); ok {
		f.observeHit(ctx, ref)
		f.observe(ctx, start, "cache")
		return value, nil
	}

	if project := f.project(ref); project != "" && f.client != nil {
		value, err := f.access(ctx, ref.resourceName(project, version))
		switch {
		case err == nil:
			f.store(key, ref.String(), value)
			f.observe(ctx, start, "remote")
			return value, nil
		case !fallbackAllowed(err):
			f.observe(ctx, start, "error")
			return "", fmt.Errorf("secrets: fetch %s: %w", ref, err)
		}
		f.logger.Debug("secrets: using local file", zap.String("ref", ref.String()), zap.Error(err))
	}

	value, ok, err := f.local.lookup(ref, version)
	if err != nil || !ok {
		f.observe(ctx, start, "error")
		if err == nil {
			err = errors.New("not found")
		}
		return "", fmt.Errorf("secrets: local value for %s: %w", ref, err)
	}
	f.store(key, ref.String(), value)
	f.observe(ctx, start, "fallback")
	return value, nil
}

// Invalidate forgets every cached version of raw.
func (f *Fetcher) Invalidate(raw string) {
	ref, err := ParseRef(raw)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, entry := range f.cache {
		if entry.canonical == ref.String() {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[key]
	if !ok || f.now().Sub(entry.fetchedAt) >= f.ttl {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(key, canonical, value string) {
	f.mu.Lock()
	f.cache[key] = cached{value: value, canonical: canonical, fetchedAt: f.now()}
	f.mu.Unlock()
}

func (f *Fetcher) access(ctx context.Context, name string) (string, error) {
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) project(ref Ref) string {
	if ref.Project != "" {
		return ref.Project
	}
	if id := strings.TrimSpace(f.projects[f.env]); id != "" {
		return id
	}
	return f.defaultProject
}

func (f *Fetcher) version(ref Ref) string {
	if ref.Version != "" {
		return ref.Version
	}
	for _, key := range []string{f.env + ":" + ref.String(), ref.String()} {
		if pin := strings.TrimSpace(f.pins[key]); pin != "" {
			return pin
		}
	}
	return "latest"
}

func (f *Fetcher) observe(ctx context.Context, start time.Time, source string) {
	if f.latency == nil {
		return
	}
	ms := float64(time.Since(start)) / float64(time.Millisecond)
	f.latency.Record(ctx, ms, metric.WithAttributes(attribute.String("source", source)))
}

func (f *Fetcher) observeHit(ctx context.Context, ref Ref) {
	if f.cacheHits == nil {
		return
	}
	sum := sha256.Sum256([]byte(ref.String()))
	f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", hex.EncodeToString(sum[:8]))))
}

func fallbackAllowed(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
