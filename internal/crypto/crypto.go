// Package crypto implements the DFRN envelope: per-relationship RSA
// keypairs, public/private encryption in both directions, and the
// optional symmetric layer for payloads larger than one RSA block.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"

	"github.com/dfrnproto/dfrnd/internal/errs"
)

// RecommendedBits is the modulus size for relationship keypairs.
const RecommendedBits = 4096

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// RandomHex returns a random token of 2n hex characters, used for
// issued-ids, intro confirm keys, and poll challenges.
func RandomHex(n int) (string, error) {
	b, err := RandBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateKeypair produces a fresh RSA keypair of the given modulus size,
// PEM-encoded. Each confirmed relationship gets its own pair.
func GenerateKeypair(bits int) (pubPEM, prvPEM string, err error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errs.ErrCryptoUnavailable, err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errs.ErrCryptoUnavailable, err)
	}
	pub := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	prv := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return string(pub), string(prv), nil
}

// EncodePublicKey renders an RSA public key as PKIX PEM.
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// ParsePublicKey decodes a PEM public key, accepting both PKIX and
// PKCS#1 encodings (counterpart nodes emit either).
func ParsePublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errs.ErrDecryptFailed
	}
	if k, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if pub, ok := k.(*rsa.PublicKey); ok {
			return pub, nil
		}
		return nil, errs.ErrDecryptFailed
	}
	if pub, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return pub, nil
	}
	return nil, errs.ErrDecryptFailed
}

// ParsePrivateKey decodes a PEM private key, accepting PKCS#1 and PKCS#8.
func ParsePrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errs.ErrDecryptFailed
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if k, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if key, ok := k.(*rsa.PrivateKey); ok {
			return key, nil
		}
	}
	return nil, errs.ErrDecryptFailed
}

// EncryptWithPublicKey encrypts a short token for the holder of the
// matching private key (PKCS#1 v1.5).
func EncryptWithPublicKey(plaintext []byte, pubPEM string) ([]byte, error) {
	pub, err := ParsePublicKey(pubPEM)
	if err != nil {
		return nil, err
	}
	return rsa.EncryptPKCS1v15(rand.Reader, pub, plaintext)
}

// DecryptWithPrivateKey inverts EncryptWithPublicKey. An empty result is
// an authentication failure, not a success.
func DecryptWithPrivateKey(ciphertext []byte, prvPEM string) ([]byte, error) {
	prv, err := ParsePrivateKey(prvPEM)
	if err != nil {
		return nil, err
	}
	out, err := rsa.DecryptPKCS1v15(nil, prv, ciphertext)
	if err != nil || len(out) == 0 {
		return nil, errs.ErrDecryptFailed
	}
	return out, nil
}

// EncryptWithPrivateKey produces a signature-like token decryptable by
// anyone holding the matching public key; each side proves possession of
// its private key this way. Semantics match openssl_private_encrypt:
// PKCS#1 v1.5 type-01 padding under the private exponent.
func EncryptWithPrivateKey(plaintext []byte, prvPEM string) ([]byte, error) {
	prv, err := ParsePrivateKey(prvPEM)
	if err != nil {
		return nil, err
	}
	k := prv.Size()
	if len(plaintext) > k-11 {
		return nil, errors.New("crypto: message too long for private-key encryption")
	}
	// EM = 0x00 || 0x01 || PS (0xFF..) || 0x00 || M
	em := make([]byte, k)
	em[1] = 0x01
	for i := 2; i < k-len(plaintext)-1; i++ {
		em[i] = 0xFF
	}
	copy(em[k-len(plaintext):], plaintext)
	m := new(big.Int).SetBytes(em)
	c := new(big.Int).Exp(m, prv.D, prv.N)
	return c.FillBytes(make([]byte, k)), nil
}

// DecryptWithPublicKey inverts EncryptWithPrivateKey (the
// openssl_public_decrypt operation, which the stdlib does not expose).
func DecryptWithPublicKey(ciphertext []byte, pubPEM string) ([]byte, error) {
	pub, err := ParsePublicKey(pubPEM)
	if err != nil {
		return nil, err
	}
	k := pub.Size()
	if len(ciphertext) != k {
		return nil, errs.ErrDecryptFailed
	}
	c := new(big.Int).SetBytes(ciphertext)
	if c.Cmp(pub.N) >= 0 {
		return nil, errs.ErrDecryptFailed
	}
	m := new(big.Int).Exp(c, big.NewInt(int64(pub.E)), pub.N)
	em := m.FillBytes(make([]byte, k))
	if em[0] != 0x00 || em[1] != 0x01 {
		return nil, errs.ErrDecryptFailed
	}
	sep := -1
	for i := 2; i < k; i++ {
		if em[i] == 0x00 {
			sep = i
			break
		}
		if em[i] != 0xFF {
			return nil, errs.ErrDecryptFailed
		}
	}
	// At least 8 padding bytes and a non-empty message.
	if sep < 10 || sep == k-1 {
		return nil, errs.ErrDecryptFailed
	}
	return em[sep+1:], nil
}
