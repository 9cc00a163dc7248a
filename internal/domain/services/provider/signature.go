package provider

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/pkg/crypto"
	"github.com/cryptogate/gateway_service/pkg/metrics"
)

// VerificationMode describes how a provider's webhooks are authenticated
type VerificationMode string

const (
	ModeHMAC       VerificationMode = "hmac"
	ModeUnverified VerificationMode = "unverified"
	ModeReject     VerificationMode = "reject"
)

// SignatureVerifier authenticates an inbound webhook
type SignatureVerifier interface {
	Verify(headers http.Header, body []byte) error
	Mode() VerificationMode
}

// Encoding of the presented signature
type Encoding int

const (
	EncodingHex Encoding = iota
	EncodingBase64
)

// SignedMessage returns the bytes covered by the MAC and the signature
// presented by the caller. headerValue is the raw signature header.
type SignedMessage func(headerValue string, headers http.Header, body []byte) (message []byte, signature string, err error)

// HMACVerifier checks an HMAC carried in a request header
type HMACVerifier struct {
	Header   string
	Secret   []byte
	Hash     crypto.HashFunc
	Encoding Encoding
	// Message defaults to the raw body and the full header value
	Message SignedMessage
}

// Mode implements SignatureVerifier
func (v *HMACVerifier) Mode() VerificationMode { return ModeHMAC }

// Verify implements SignatureVerifier
func (v *HMACVerifier) Verify(headers http.Header, body []byte) error {
	value := strings.TrimSpace(headers.Get(v.Header))
	if value == "" {
		return fmt.Errorf("%w: %s header is empty", domainerrors.ErrMissingSignature, v.Header)
	}

	message, signature := body, value
	if v.Message != nil {
		var err error
		message, signature, err = v.Message(value, headers, body)
		if err != nil {
			return fmt.Errorf("%w: %v", domainerrors.ErrInvalidSignature, err)
		}
	}

	var presented []byte
	var err error
	switch v.Encoding {
	case EncodingBase64:
		presented, err = base64.StdEncoding.DecodeString(signature)
	default:
		presented, err = hex.DecodeString(signature)
	}
	if err != nil {
		return fmt.Errorf("%w: undecodable signature", domainerrors.ErrInvalidSignature)
	}

	expected := crypto.HMAC(v.Hash, v.Secret, message)
	if !crypto.Equal(expected, presented) {
		return domainerrors.ErrInvalidSignature
	}
	return nil
}

// Unverified accepts every delivery. It is only selected when a provider has
// no webhook secret and allow_unverified_webhooks is set. Every delivery is
// logged and counted.
type Unverified struct {
	Provider string
	Reason   string
	Logger   *zap.Logger
}

// Mode implements SignatureVerifier
func (u *Unverified) Mode() VerificationMode { return ModeUnverified }

// Verify implements SignatureVerifier
func (u *Unverified) Verify(headers http.Header, body []byte) error {
	metrics.UnverifiedWebhooksTotal.WithLabelValues(u.Provider).Inc()
	if u.Logger != nil {
		u.Logger.Warn("Accepting unverified webhook",
			zap.String("provider", u.Provider),
			zap.String("reason", u.Reason),
			zap.Int("body_bytes", len(body)))
	}
	return nil
}

// Reject fails every delivery. It is the default when no secret is set.
type Reject struct {
	Provider string
}

// Mode implements SignatureVerifier
func (r *Reject) Mode() VerificationMode { return ModeReject }

// Verify implements SignatureVerifier
func (r *Reject) Verify(http.Header, []byte) error {
	return fmt.Errorf("%w: no webhook secret configured for %s", domainerrors.ErrInvalidSignature, r.Provider)
}

// SelectVerifier picks the strategy for a provider. A configured secret
// always wins; without one the provider fails closed unless allowUnverified.
func SelectVerifier(providerName, secret string, allowUnverified bool, build func(secret []byte) SignatureVerifier, logger *zap.Logger) SignatureVerifier {
	if secret != "" {
		return build([]byte(secret))
	}
	if allowUnverified {
		if logger != nil {
			logger.Warn("Webhook signature verification disabled by configuration",
				zap.String("provider", providerName))
		}
		return &Unverified{
			Provider: providerName,
			Reason:   "no webhook secret configured, allow_unverified_webhooks enabled",
			Logger:   logger,
		}
	}
	return &Reject{Provider: providerName}
}

// FinchPayVerifier checks x-signature, a hex HMAC-SHA256 of the raw body
func FinchPayVerifier(secret []byte) SignatureVerifier {
	return &HMACVerifier{
		Header:   "x-signature",
		Secret:   secret,
		Hash:     crypto.SHA256,
		Encoding: EncodingHex,
	}
}

// OnRampVerifier checks X-ONRAMP-SIGNATURE, a hex HMAC-SHA512 over the
// base64 encoding of the raw body
func OnRampVerifier(secret []byte) SignatureVerifier {
	return &HMACVerifier{
		Header:   "X-ONRAMP-SIGNATURE",
		Secret:   secret,
		Hash:     crypto.SHA512,
		Encoding: EncodingHex,
		Message: func(value string, _ http.Header, body []byte) ([]byte, string, error) {
			return []byte(base64.StdEncoding.EncodeToString(body)), value, nil
		},
	}
}

// MoonPayVerifier checks Moonpay-Signature-V2 ("t=<unix>,s=<hex>"), a hex
// HMAC-SHA256 over "<t>.<body>"
func MoonPayVerifier(secret []byte) SignatureVerifier {
	return &HMACVerifier{
		Header:   "Moonpay-Signature-V2",
		Secret:   secret,
		Hash:     crypto.SHA256,
		Encoding: EncodingHex,
		Message: func(value string, _ http.Header, body []byte) ([]byte, string, error) {
			var ts, sig string
			for _, part := range strings.Split(value, ",") {
				k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
				if !ok {
					continue
				}
				switch k {
				case "t":
					ts = v
				case "s":
					sig = v
				}
			}
			if ts == "" || sig == "" {
				return nil, "", fmt.Errorf("malformed Moonpay-Signature-V2 header")
			}
			if _, err := strconv.ParseInt(ts, 10, 64); err != nil {
				return nil, "", fmt.Errorf("malformed timestamp: %w", err)
			}
			return append([]byte(ts+"."), body...), sig, nil
		},
	}
}

// MeldVerifier checks meld-signature, a base64 HMAC-SHA256 over
// "<meld-signature-timestamp>.<body>"
func MeldVerifier(secret []byte) SignatureVerifier {
	return &HMACVerifier{
		Header:   "meld-signature",
		Secret:   secret,
		Hash:     crypto.SHA256,
		Encoding: EncodingBase64,
		Message: func(value string, headers http.Header, body []byte) ([]byte, string, error) {
			ts := headers.Get("meld-signature-timestamp")
			if ts == "" {
				return nil, "", fmt.Errorf("missing meld-signature-timestamp header")
			}
			if _, err := time.Parse(time.RFC3339, ts); err != nil {
				if _, perr := strconv.ParseInt(ts, 10, 64); perr != nil {
					return nil, "", fmt.Errorf("malformed timestamp %q", ts)
				}
			}
			return append([]byte(ts+"."), body...), value, nil
		},
	}
}
