package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dfrnproto/dfrnd/internal/errs"
)

// Small modulus keeps the tests fast; production uses RecommendedBits.
const testBits = 1024

func testKeypair(t *testing.T) (pub, prv string) {
	t.Helper()
	pub, prv, err := GenerateKeypair(testBits)
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return pub, prv
}

func TestRandomHex_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	a, err := RandomHex(16)
	if err != nil {
		t.Fatalf("RandomHex: %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("len=%d, want=32", len(a))
	}
	b, _ := RandomHex(16)
	if a == b {
		t.Fatalf("two subsequent RandomHex(16) are equal — looks non-random")
	}
}

func TestPublicEncrypt_PrivateDecrypt_Roundtrip(t *testing.T) {
	t.Parallel()
	pub, prv := testKeypair(t)

	pt := []byte("issued-id-token-12345")
	ct, err := EncryptWithPublicKey(pt, pub)
	if err != nil {
		t.Fatalf("EncryptWithPublicKey: %v", err)
	}
	if bytes.Equal(ct, pt) {
		t.Fatalf("ciphertext must differ from plaintext")
	}
	out, err := DecryptWithPrivateKey(ct, prv)
	if err != nil {
		t.Fatalf("DecryptWithPrivateKey: %v", err)
	}
	if !bytes.Equal(out, pt) {
		t.Fatalf("roundtrip mismatch")
	}
}

func TestPrivateEncrypt_PublicDecrypt_Roundtrip(t *testing.T) {
	t.Parallel()
	pub, prv := testKeypair(t)

	pt := []byte("dfrn-id-proof")
	ct, err := EncryptWithPrivateKey(pt, prv)
	if err != nil {
		t.Fatalf("EncryptWithPrivateKey: %v", err)
	}
	out, err := DecryptWithPublicKey(ct, pub)
	if err != nil {
		t.Fatalf("DecryptWithPublicKey: %v", err)
	}
	if !bytes.Equal(out, pt) {
		t.Fatalf("roundtrip mismatch")
	}
}

func TestDecrypt_WrongKey_Fails(t *testing.T) {
	t.Parallel()
	pub, _ := testKeypair(t)
	_, otherPrv := testKeypair(t)

	ct, err := EncryptWithPublicKey([]byte("token"), pub)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := DecryptWithPrivateKey(ct, otherPrv); !errors.Is(err, errs.ErrDecryptFailed) {
		t.Fatalf("want ErrDecryptFailed, got %v", err)
	}
}

func TestDecryptWithPublicKey_Tampered_Fails(t *testing.T) {
	t.Parallel()
	pub, prv := testKeypair(t)

	ct, err := EncryptWithPrivateKey([]byte("token"), prv)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	ct[len(ct)/2] ^= 0xFF
	if _, err := DecryptWithPublicKey(ct, pub); !errors.Is(err, errs.ErrDecryptFailed) {
		t.Fatalf("want ErrDecryptFailed, got %v", err)
	}
}

func TestDecryptWithPublicKey_WrongLength_Fails(t *testing.T) {
	t.Parallel()
	pub, _ := testKeypair(t)
	if _, err := DecryptWithPublicKey([]byte("short"), pub); !errors.Is(err, errs.ErrDecryptFailed) {
		t.Fatalf("want ErrDecryptFailed, got %v", err)
	}
}

func TestPrivateEncrypt_TooLong_Fails(t *testing.T) {
	t.Parallel()
	_, prv := testKeypair(t)
	big := make([]byte, testBits/8)
	if _, err := EncryptWithPrivateKey(big, prv); err == nil {
		t.Fatalf("oversized message must fail")
	}
}

func TestParseKeys_Garbage_Fails(t *testing.T) {
	t.Parallel()
	if _, err := ParsePublicKey("not a pem"); err == nil {
		t.Fatalf("garbage public key must fail")
	}
	if _, err := ParsePrivateKey("not a pem"); err == nil {
		t.Fatalf("garbage private key must fail")
	}
}

func TestSymmetric_Roundtrip(t *testing.T) {
	t.Parallel()
	key, err := NewSymmetricKey()
	if err != nil {
		t.Fatalf("NewSymmetricKey: %v", err)
	}
	// Larger than one RSA block — the layer's reason to exist.
	pt := bytes.Repeat([]byte("-----BEGIN PUBLIC KEY-----\n"), 40)
	ct, err := SymmetricEncrypt(key, pt)
	if err != nil {
		t.Fatalf("SymmetricEncrypt: %v", err)
	}
	out, err := SymmetricDecrypt(key, ct)
	if err != nil {
		t.Fatalf("SymmetricDecrypt: %v", err)
	}
	if !bytes.Equal(out, pt) {
		t.Fatalf("roundtrip mismatch")
	}
}

func TestSymmetric_WrongKey_Fails(t *testing.T) {
	t.Parallel()
	key, _ := NewSymmetricKey()
	other, _ := NewSymmetricKey()
	ct, err := SymmetricEncrypt(key, []byte("payload payload payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if out, err := SymmetricDecrypt(other, ct); err == nil && bytes.Equal(out, []byte("payload payload payload")) {
		t.Fatalf("wrong key must not decrypt")
	}
}

func TestSymmetric_Truncated_Fails(t *testing.T) {
	t.Parallel()
	key, _ := NewSymmetricKey()
	if _, err := SymmetricDecrypt(key, []byte{1, 2, 3}); !errors.Is(err, errs.ErrDecryptFailed) {
		t.Fatalf("want ErrDecryptFailed, got %v", err)
	}
}

func TestHexTransport(t *testing.T) {
	t.Parallel()
	b := []byte{0x00, 0xFF, 0x10, 0xAB}
	s := EncodeHex(b)
	out, err := DecodeHex(s)
	if err != nil || !bytes.Equal(out, b) {
		t.Fatalf("hex roundtrip: %v", err)
	}
	if _, err := DecodeHex("zz"); err == nil {
		t.Fatalf("malformed hex must fail")
	}
}
