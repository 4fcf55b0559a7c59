package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"

	"github.com/dfrnproto/dfrnd/internal/errs"
)

// SymmetricKeyLen is the AES-256 key size used by the payload layer.
const SymmetricKeyLen = 32

// NewSymmetricKey mints a random per-exchange AES key. The key itself
// travels wrapped in the recipient's public key; the layer exists only
// because a 4096-bit RSA block cannot hold a full public key payload.
func NewSymmetricKey() ([]byte, error) {
	return RandBytes(SymmetricKeyLen)
}

// SymmetricEncrypt encrypts plaintext with AES-256-CBC and a random IV,
// returning iv||ciphertext.
func SymmetricEncrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv, err := RandBytes(aes.BlockSize)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// SymmetricDecrypt inverts SymmetricEncrypt. Malformed input or padding
// is an authentication failure.
func SymmetricDecrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, errs.ErrDecryptFailed
	}
	iv, ct := data[:aes.BlockSize], data[aes.BlockSize:]
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errs.ErrDecryptFailed
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errs.ErrDecryptFailed
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errs.ErrDecryptFailed
		}
	}
	return b[:len(b)-n], nil
}

// EncodeHex renders binary ciphertext as the ASCII form the wire carries.
func EncodeHex(b []byte) string { return hex.EncodeToString(b) }

// DecodeHex parses a wire hex field. Malformed hex is a caller input error.
func DecodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errs.ErrDecryptFailed
	}
	return b, nil
}
