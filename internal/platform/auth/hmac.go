package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/httpx"
)

// Logger receives verification failures worth investigating.
type Logger func(ctx context.Context, event string, fields map[string]any)

type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

type MetricsRecorderFunc func(context.Context, string, bool, string, time.Duration)

func (f MetricsRecorderFunc) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if f != nil {
		f(ctx, kind, success, reason, duration)
	}
}

// NewMeterRecorder counts verifications by outcome and records their latency.
func NewMeterRecorder(meter metric.Meter) (MetricsRecorder, error) {
	if meter == nil {
		return nil, errors.New("auth: meter is required")
	}
	outcomes, err := meter.Int64Counter("storefront.webhook.verifications",
		metric.WithDescription("Webhook signature verification outcomes"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("storefront.webhook.verification.duration", metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return MetricsRecorderFunc(func(ctx context.Context, kind string, success bool, reason string, d time.Duration) {
		set := metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.Bool("success", success),
			attribute.String("reason", reason),
		)
		outcomes.Add(ctx, 1, set)
		latency.Record(ctx, float64(d.Microseconds())/1000, set)
	}), nil
}

// SecretProvider looks up a named shared secret.
type SecretProvider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

type SecretProviderFunc func(context.Context, string) (string, error)

func (f SecretProviderFunc) GetSecret(ctx context.Context, name string) (string, error) {
	if f == nil {
		return "", errors.New("auth: secret provider not configured")
	}
	return f(ctx, name)
}

// StaticSecrets serves the resolved config.Security.HMAC.Secrets map.
type StaticSecrets map[string]string

func (s StaticSecrets) GetSecret(_ context.Context, name string) (string, error) {
	if secret := strings.TrimSpace(s[name]); secret != "" {
		return secret, nil
	}
	return "", fmt.Errorf("auth: secret %q not configured", name)
}

// HMACValidator guards webhook routes called by trusted integrations such as the CMS.
type HMACValidator struct {
	provider SecretProvider
	nonces   NonceStore
	logger   Logger
	metrics  MetricsRecorder
	now      func() time.Time

	headers   hmacHeaders
	clockSkew time.Duration
	nonceTTL  time.Duration
}

type hmacHeaders struct {
	signature string
	timestamp string
	nonce     string
}

type HMACOption func(*HMACValidator)

func NewHMACValidator(provider SecretProvider, nonces NonceStore, opts ...HMACOption) *HMACValidator {
	v := &HMACValidator{
		provider: provider,
		nonces:   nonces,
		logger:   func(context.Context, string, map[string]any) {},
		now:      time.Now,
		headers: hmacHeaders{
			signature: "X-Signature",
			timestamp: "X-Signature-Timestamp",
			nonce:     "X-Signature-Nonce",
		},
		clockSkew: 5 * time.Minute,
		nonceTTL:  5 * time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

func WithHMACLogger(logger Logger) HMACOption {
	return func(v *HMACValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func WithHMACMetrics(metrics MetricsRecorder) HMACOption {
	return func(v *HMACValidator) { v.metrics = metrics }
}

func WithHMACClock(now func() time.Time) HMACOption {
	return func(v *HMACValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithHMACHeaders renames the signature, timestamp and nonce headers. Empty names keep the default.
func WithHMACHeaders(signature, timestamp, nonce string) HMACOption {
	return func(v *HMACValidator) {
		if signature != "" {
			v.headers.signature = signature
		}
		if timestamp != "" {
			v.headers.timestamp = timestamp
		}
		if nonce != "" {
			v.headers.nonce = nonce
		}
	}
}

// WithHMACClockSkew bounds how far the signed timestamp may drift from the server clock.
func WithHMACClockSkew(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.clockSkew = d
		}
	}
}

func WithHMACNonceTTL(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.nonceTTL = d
		}
	}
}

// HMACMetadata is attached to the request context once a signature checks out.
type HMACMetadata struct {
	SecretName string
	Timestamp  time.Time
	Nonce      string
}

type hmacContextKey struct{}

func WithHMACMetadata(ctx context.Context, meta *HMACMetadata) context.Context {
	if meta == nil {
		return ctx
	}
	return context.WithValue(ctx, hmacContextKey{}, meta)
}

func HMACMetadataFromContext(ctx context.Context) (*HMACMetadata, bool) {
	meta, ok := ctx.Value(hmacContextKey{}).(*HMACMetadata)
	return meta, ok && meta != nil
}

// rejection is a failed verification. reason feeds metrics; code is the API error code.
type rejection struct {
	status  int
	reason  string
	code    string
	message string
}

func denied(reason, message string) *rejection {
	return &rejection{status: http.StatusUnauthorized, reason: reason, code: reason, message: message}
}

func unavailable(reason, message string) *rejection {
	return &rejection{status: http.StatusServiceUnavailable, reason: reason, code: "verification_unavailable", message: message}
}

// RequireHMAC admits only requests signed with the named secret. The signed message is the
// method, escaped path, timestamp, nonce and hex sha256 of the body, one per line.
func (v *HMACValidator) RequireHMAC(secretName string) func(http.Handler) http.Handler {
	scope := strings.TrimSpace(secretName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()
			meta, rej := v.verify(r, scope)
			if rej != nil {
				v.record(ctx, false, rej.reason, start)
				httpx.WriteError(ctx, w, httpx.NewError(rej.code, rej.message, rej.status))
				return
			}
			v.record(ctx, true, "ok", start)
			next.ServeHTTP(w, r.WithContext(WithHMACMetadata(ctx, meta)))
		})
	}
}

func (v *HMACValidator) verify(r *http.Request, scope string) (*HMACMetadata, *rejection) {
	ctx := r.Context()
	if scope == "" {
		return nil, unavailable("secret_not_configured", "hmac secret not configured")
	}
	secret, err := v.secret(ctx, scope)
	if err != nil {
		v.logger(ctx, "webhook.secret_unavailable", map[string]any{"secret": scope, "error": err})
		return nil, unavailable("secret_unavailable", "hmac secret unavailable")
	}

	signature := strings.TrimSpace(r.Header.Get(v.headers.signature))
	stamp := strings.TrimSpace(r.Header.Get(v.headers.timestamp))
	nonce := strings.TrimSpace(r.Header.Get(v.headers.nonce))
	switch {
	case signature == "":
		return nil, denied("signature_missing", "signature header missing")
	case stamp == "":
		return nil, denied("timestamp_missing", "signature timestamp missing")
	}
	signedAt, err := parseSignatureTimestamp(stamp)
	if err != nil {
		return nil, denied("timestamp_invalid", "signature timestamp invalid")
	}
	if drift := v.now().Sub(signedAt).Abs(); drift > v.clockSkew {
		return nil, denied("timestamp_skew", "signature timestamp outside allowed window")
	}
	if nonce == "" {
		return nil, denied("nonce_missing", "signature nonce missing")
	}

	body, err := bufferBody(r)
	if err != nil {
		return nil, &rejection{status: http.StatusBadRequest, reason: "body_unreadable", code: "invalid_body",
			message: "unable to read body for signature verification"}
	}
	got, err := decodeSignature(signature)
	if err != nil {
		return nil, denied("signature_invalid", "signature encoding invalid")
	}
	if !hmac.Equal(got, sum(secret, canonicalMessage(r.Method, r.URL.EscapedPath(), body, stamp, nonce))) {
		return nil, denied("signature_mismatch", "signature verification failed")
	}

	if v.nonces == nil {
		return nil, unavailable("nonce_store_unavailable", "nonce store unavailable")
	}
	expiry := signedAt.Add(v.nonceTTL)
	if now := v.now(); expiry.Before(now) {
		expiry = now.Add(v.nonceTTL)
	}
	fresh, err := v.nonces.UseNonce(ctx, scope, nonce, expiry)
	if err != nil {
		v.logger(ctx, "webhook.nonce_store_failed", map[string]any{"error": err})
		return nil, unavailable("nonce_store_error", "nonce storage error")
	}
	if !fresh {
		return nil, denied("nonce_replay", "duplicate signature nonce")
	}
	return &HMACMetadata{SecretName: scope, Timestamp: signedAt, Nonce: nonce}, nil
}

func (v *HMACValidator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v.metrics != nil {
		v.metrics.RecordVerification(ctx, "hmac", success, reason, v.now().Sub(start))
	}
}

// secret is looked up per request so a rotated value applies immediately.
func (v *HMACValidator) secret(ctx context.Context, name string) ([]byte, error) {
	if v.provider == nil {
		return nil, errors.New("auth: secret provider not configured")
	}
	raw, err := v.provider.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, errors.New("auth: secret is empty")
	}
	return []byte(raw), nil
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

// decodeSignature accepts hex or standard base64. A 64 character hex digest is also valid
// base64, so hex is tried first at that length.
func decodeSignature(value string) ([]byte, error) {
	if len(value) == hex.EncodedLen(sha256.Size) {
		if decoded, err := hex.DecodeString(value); err == nil {
			return decoded, nil
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && len(decoded) > 0 {
		return decoded, nil
	}
	if decoded, err := hex.DecodeString(value); err == nil && len(decoded) > 0 {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be base64 or hex encoded")
}

// parseSignatureTimestamp accepts RFC 3339 or unix seconds.
func parseSignatureTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("auth: unable to parse timestamp %q", value)
}

func canonicalMessage(method, escapedPath string, body []byte, timestamp, nonce string) []byte {
	if escapedPath == "" {
		escapedPath = "/"
	}
	digest := sha256.Sum256(body)
	var b strings.Builder
	for _, part := range []string{strings.ToUpper(method), escapedPath, timestamp, nonce} {
		b.WriteString(part)
		b.WriteByte('\n')
	}
	b.WriteString(hex.EncodeToString(digest[:]))
	return []byte(b.String())
}

func sum(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}

// Sign returns the base64 signature RequireHMAC expects. path is the unescaped request path.
func Sign(secret []byte, method, path string, body []byte, timestamp, nonce string) string {
	escaped := (&url.URL{Path: path}).EscapedPath()
	return base64.StdEncoding.EncodeToString(sum(secret, canonicalMessage(method, escaped, body, timestamp, nonce)))
}
