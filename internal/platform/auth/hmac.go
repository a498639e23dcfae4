package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pawpal/api/internal/platform/httpx"
)

const (
	defaultSignatureHeader = "X-Signature"
	defaultTimestampHeader = "X-Signature-Timestamp"
	defaultNonceHeader     = "X-Signature-Nonce"

	defaultClockSkew = 5 * time.Minute
	defaultNonceTTL  = 10 * time.Minute
)

// MetricsRecorder receives one call per verification attempt.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

// MetricsRecorderFunc adapts a function to MetricsRecorder.
type MetricsRecorderFunc func(context.Context, string, bool, string, time.Duration)

// RecordVerification implements MetricsRecorder.
func (f MetricsRecorderFunc) RecordVerification(ctx context.Context, kind string, success bool, reason string, d time.Duration) {
	if f != nil {
		f(ctx, kind, success, reason, d)
	}
}

// HMACValidator authenticates server-to-server callbacks, such as payment confirmations, signed
// with a per-caller shared secret.
//
// The signature is HMAC-SHA256, hex or base64 encoded, over
//
//	METHOD \n ESCAPED_PATH \n TIMESTAMP \n NONCE \n hex(sha256(body))
//
// The timestamp must be within the allowed skew and each nonce is accepted once per caller.
type HMACValidator struct {
	secrets SecretProvider
	nonces  NonceStore
	logger  *zap.Logger
	metrics MetricsRecorder
	now     func() time.Time

	signatureHeader string
	timestampHeader string
	nonceHeader     string
	clockSkew       time.Duration
	nonceTTL        time.Duration
}

// HMACOption customises an HMACValidator.
type HMACOption func(*HMACValidator)

// NewHMACValidator returns a validator reading secrets from secrets and recording nonces in nonces.
func NewHMACValidator(secrets SecretProvider, nonces NonceStore, opts ...HMACOption) *HMACValidator {
	v := &HMACValidator{
		secrets:         secrets,
		nonces:          nonces,
		logger:          zap.NewNop(),
		now:             time.Now,
		signatureHeader: defaultSignatureHeader,
		timestampHeader: defaultTimestampHeader,
		nonceHeader:     defaultNonceHeader,
		clockSkew:       defaultClockSkew,
		nonceTTL:        defaultNonceTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// WithHMACLogger sets the logger for secret and nonce store failures.
func WithHMACLogger(logger *zap.Logger) HMACOption {
	return func(v *HMACValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithHMACMetrics sets the verification metrics recorder.
func WithHMACMetrics(metrics MetricsRecorder) HMACOption {
	return func(v *HMACValidator) { v.metrics = metrics }
}

// WithHMACClock overrides the clock used for skew checks.
func WithHMACClock(now func() time.Time) HMACOption {
	return func(v *HMACValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithHMACHeaders renames the signature headers. Empty names keep the defaults.
func WithHMACHeaders(signature, timestamp, nonce string) HMACOption {
	return func(v *HMACValidator) {
		if signature != "" {
			v.signatureHeader = signature
		}
		if timestamp != "" {
			v.timestampHeader = timestamp
		}
		if nonce != "" {
			v.nonceHeader = nonce
		}
	}
}

// WithHMACClockSkew sets how far a timestamp may drift from the server clock.
func WithHMACClockSkew(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.clockSkew = d
		}
	}
}

// WithHMACNonceTTL sets how long a verified nonce is remembered. The store keeps it at least
// until its timestamp leaves the skew window.
func WithHMACNonceTTL(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.nonceTTL = d
		}
	}
}

// HMACMetadata describes a verified request.
type HMACMetadata struct {
	SecretName string
	Timestamp  time.Time
	Nonce      string
}

type hmacContextKey struct{}

// HMACMetadataFromContext returns the metadata stored by a successful verification.
func HMACMetadataFromContext(ctx context.Context) (*HMACMetadata, bool) {
	meta, ok := ctx.Value(hmacContextKey{}).(*HMACMetadata)
	return meta, ok && meta != nil
}

// rejection is a failed verification. reason is the metrics label.
type rejection struct {
	status int
	code   string
	reason string
	msg    string
}

func unauthorized(reason, msg string) *rejection {
	return &rejection{status: http.StatusUnauthorized, code: reason, reason: reason, msg: msg}
}

func unavailable(reason, msg string) *rejection {
	return &rejection{status: http.StatusServiceUnavailable, code: "verification_unavailable", reason: reason, msg: msg}
}

// RequireHMAC verifies every request against the secret of a fixed caller.
func (v *HMACValidator) RequireHMAC(caller string) func(http.Handler) http.Handler {
	caller = normalizeCaller(caller)
	return v.RequireHMACResolver(func(*http.Request) (string, bool) { return caller, caller != "" })
}

// RequireHMACResolver verifies every request against the secret of the caller named by resolve.
// Unknown callers get 401 before any secret lookup.
func (v *HMACValidator) RequireHMACResolver(resolve CallerResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()
			meta, rej := v.verify(r, resolve)
			if v.metrics != nil {
				reason := "ok"
				if rej != nil {
					reason = rej.reason
				}
				v.metrics.RecordVerification(ctx, "hmac", rej == nil, reason, v.now().Sub(start))
			}
			if rej != nil {
				httpx.WriteError(ctx, w, httpx.NewError(rej.code, rej.msg, rej.status))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, hmacContextKey{}, meta)))
		})
	}
}

func (v *HMACValidator) verify(r *http.Request, resolve CallerResolver) (*HMACMetadata, *rejection) {
	ctx := r.Context()
	if resolve == nil {
		return nil, unavailable("secret_not_configured", "no webhook callers configured")
	}
	caller, ok := resolve(r)
	if !ok {
		return nil, unauthorized("unknown_caller", "signing caller not recognised")
	}

	sigValue := strings.TrimSpace(r.Header.Get(v.signatureHeader))
	tsValue := strings.TrimSpace(r.Header.Get(v.timestampHeader))
	nonce := strings.TrimSpace(r.Header.Get(v.nonceHeader))
	switch {
	case sigValue == "":
		return nil, unauthorized("signature_missing", v.signatureHeader+" header is required")
	case tsValue == "":
		return nil, unauthorized("timestamp_missing", v.timestampHeader+" header is required")
	case nonce == "":
		return nil, unauthorized("nonce_missing", v.nonceHeader+" header is required")
	}

	ts, err := parseTimestamp(tsValue)
	if err != nil {
		return nil, unauthorized("timestamp_invalid", "signature timestamp must be RFC 3339 or unix seconds")
	}
	now := v.now()
	if drift := now.Sub(ts).Abs(); drift > v.clockSkew {
		return nil, unauthorized("timestamp_skew", "signature timestamp outside allowed window")
	}
	signature, err := decodeSignature(sigValue)
	if err != nil {
		return nil, unauthorized("signature_invalid", "signature must be hex or base64")
	}

	if v.secrets == nil {
		return nil, unavailable("secret_not_configured", "webhook secrets unavailable")
	}
	secret, err := v.secrets.GetSecret(ctx, caller)
	if err != nil || secret == "" {
		v.logger.Warn("hmac secret lookup failed", zap.String("caller", caller), zap.Error(err))
		return nil, unavailable("secret_unavailable", "webhook secret unavailable")
	}

	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, &rejection{status: http.StatusBadRequest, code: "invalid_body", reason: "body_unreadable", msg: "unable to read request body"}
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if !hmac.Equal(signature, sign([]byte(secret), canonicalRequest(r, body, tsValue, nonce))) {
		return nil, unauthorized("signature_mismatch", "signature verification failed")
	}

	if v.nonces == nil {
		return nil, unavailable("nonce_store_unavailable", "nonce store unavailable")
	}
	// Keep the nonce at least as long as its timestamp stays inside the skew window.
	ttl := v.nonceTTL
	if window := ts.Add(v.clockSkew).Sub(now); window > ttl {
		ttl = window
	}
	fresh, err := v.nonces.UseNonce(ctx, caller, nonce, ttl)
	if err != nil {
		v.logger.Error("nonce store failed", zap.String("caller", caller), zap.Error(err))
		return nil, unavailable("nonce_store_error", "nonce store unavailable")
	}
	if !fresh {
		return nil, unauthorized("nonce_replay", "signature nonce already used")
	}
	return &HMACMetadata{SecretName: caller, Timestamp: ts, Nonce: nonce}, nil
}

func canonicalRequest(r *http.Request, body []byte, timestamp, nonce string) []byte {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	digest := sha256.Sum256(body)
	var b bytes.Buffer
	for _, part := range []string{strings.ToUpper(r.Method), path, timestamp, nonce} {
		b.WriteString(part)
		b.WriteByte('\n')
	}
	b.WriteString(hex.EncodeToString(digest[:]))
	return b.Bytes()
}

func sign(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}

// decodeSignature accepts hex or standard base64. Only a full SHA-256 digest is valid.
func decodeSignature(value string) ([]byte, error) {
	if b, err := hex.DecodeString(value); err == nil && len(b) == sha256.Size {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(value); err == nil && len(b) == sha256.Size {
		return b, nil
	}
	return nil, errors.New("auth: malformed signature")
}

func parseTimestamp(value string) (time.Time, error) {
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
