package crypto

import (
	"crypto"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// HashFunc names the digests used by provider signatures
type HashFunc string

const (
	SHA256 HashFunc = "sha256"
	SHA512 HashFunc = "sha512"
)

// New returns a constructor for the digest
func (h HashFunc) New() func() hash.Hash {
	if h == SHA512 {
		return sha512.New
	}
	return sha256.New
}

// HMAC computes the raw HMAC of message
func HMAC(h HashFunc, secret, message []byte) []byte {
	mac := hmac.New(h.New(), secret)
	mac.Write(message)
	return mac.Sum(nil)
}

// HMACHex computes a lower-case hex HMAC
func HMACHex(h HashFunc, secret, message []byte) string {
	return hex.EncodeToString(HMAC(h, secret, message))
}

// HMACBase64 computes a standard base64 HMAC
func HMACBase64(h HashFunc, secret, message []byte) string {
	return base64.StdEncoding.EncodeToString(HMAC(h, secret, message))
}

// Equal compares two MACs in constant time
func Equal(a, b []byte) bool {
	return hmac.Equal(a, b)
}

// ParseRSAPrivateKeyHex decodes a hex encoded DER private key. Both PKCS#8
// and PKCS#1 encodings are accepted.
func ParseRSAPrivateKeyHex(hexKey string) (*rsa.PrivateKey, error) {
	der, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key hex: %w", err)
	}

	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// SignRSASHA256 signs message with RSASSA-PKCS1-v1_5 over SHA-256 and
// returns the base64 encoded signature
func SignRSASHA256(key *rsa.PrivateKey, message []byte) (string, error) {
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// MD5Hex returns the hex md5 digest of s. Only used to derive identifiers.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// GenerateRandomString generates a random string of specified length
func GenerateRandomString(length int) (string, error) {
	bytes := make([]byte, (length+1)/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random string: %w", err)
	}
	return hex.EncodeToString(bytes)[:length], nil
}
