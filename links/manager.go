// Package links implements signed, expiring, single-use download links.
//
// A token carries its own file path and expiry and is authenticated with
// HMAC-SHA256, so nothing is stored until a link is consumed. Consumed
// token IDs are kept in a UsedStore until they expire, which is what makes a
// link single-use.
package links

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/metrics"
)

var (
	ErrLinkInvalid = errors.New("link is invalid")
	ErrLinkExpired = errors.New("link has expired")
	ErrLinkUsed    = errors.New("link has already been used")
)

type payload struct {
	ID      string `json:"id"`
	Path    string `json:"p"`
	Expires int64  `json:"e"`
}

// LinkManager manages creation and validation of single-use download links.
type LinkManager struct {
	secretKey []byte
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
	used      UsedStore
}

// Option configures a LinkManager
type Option func(*LinkManager)

// WithUsedStore replaces the in-memory record of consumed links
func WithUsedStore(store UsedStore) Option {
	return func(lm *LinkManager) {
		lm.used = store
	}
}

// NewLinkManager creates a new LinkManager instance.
func NewLinkManager(secretKey string, ttl time.Duration, logger *zap.Logger, opts ...Option) (*LinkManager, error) {
	if secretKey == "" {
		return nil, errors.New("secret key cannot be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("link ttl must be positive")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	h := sha256.Sum256([]byte(secretKey))

	lm := &LinkManager{
		secretKey: h[:],
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
		used:      NewMemoryStore(),
	}
	for _, opt := range opts {
		opt(lm)
	}
	return lm, nil
}

// GenerateLink creates a new single-use download token for filePath.
// A non-positive ttl uses the manager's default.
func (lm *LinkManager) GenerateLink(filePath string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = lm.ttl
	}
	expires := lm.now().Add(ttl)

	body, err := json.Marshal(payload{ID: uuid.NewString(), Path: filePath, Expires: expires.Unix()})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to encode link: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(body)
	token := encoded + "." + lm.sign(encoded)

	lm.logger.Info("Generated single-use download link",
		zap.String("token", TruncateToken(token)),
		zap.String("file_path", filePath),
		zap.Time("expires_at", expires))
	metrics.LinkGenerationsTotal.Inc()

	return token, expires, nil
}

// ValidateAndInvalidateLink checks a token and marks it as used.
// It returns the file path the token was issued for.
func (lm *LinkManager) ValidateAndInvalidateLink(ctx context.Context, token, clientIP string) (string, error) {
	p, err := lm.decode(token)
	if err != nil {
		lm.logger.Warn("Rejected download link",
			zap.String("token", TruncateToken(token)),
			zap.String("client_ip", clientIP),
			zap.Error(err))
		metrics.LinkConsumptionsTotal.WithLabelValues(resultLabel(err)).Inc()
		return "", err
	}

	first, err := lm.used.MarkUsed(ctx, p.ID, time.Unix(p.Expires, 0), clientIP)
	if err != nil {
		return "", fmt.Errorf("failed to record link use: %w", err)
	}
	if !first {
		lm.logger.Warn("Download link reused",
			zap.String("token", TruncateToken(token)),
			zap.String("client_ip", clientIP))
		metrics.LinkConsumptionsTotal.WithLabelValues("used").Inc()
		return "", ErrLinkUsed
	}

	lm.logger.Info("Single-use link consumed",
		zap.String("token", TruncateToken(token)),
		zap.String("file_path", p.Path),
		zap.String("client_ip", clientIP))
	metrics.LinkConsumptionsTotal.WithLabelValues("success").Inc()

	return p.Path, nil
}

// Purge forgets consumed tokens that have expired and returns how many were dropped.
func (lm *LinkManager) Purge(ctx context.Context) (int, error) {
	return lm.used.Purge(ctx, lm.now())
}

// Close releases the used-link store
func (lm *LinkManager) Close() error {
	return lm.used.Close()
}

// TruncateToken returns a redacted token suitable for logs.
func TruncateToken(token string) string {
	if len(token) <= 8 {
		return token
	}

	return token[:8] + "..."
}

func (lm *LinkManager) decode(token string) (payload, error) {
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok || encoded == "" {
		return payload{}, ErrLinkInvalid
	}

	if !hmac.Equal([]byte(signature), []byte(lm.sign(encoded))) {
		return payload{}, ErrLinkInvalid
	}

	body, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return payload{}, ErrLinkInvalid
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil || p.ID == "" {
		return payload{}, ErrLinkInvalid
	}

	if lm.now().After(time.Unix(p.Expires, 0)) {
		return payload{}, ErrLinkExpired
	}
	return p, nil
}

func (lm *LinkManager) sign(encoded string) string {
	mac := hmac.New(sha256.New, lm.secretKey)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func resultLabel(err error) string {
	if errors.Is(err, ErrLinkExpired) {
		return "expired"
	}
	return "invalid"
}
