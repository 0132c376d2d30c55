// Package crypto implements the authenticated encryption, key
// derivation, and secure random primitives described in spec.md §4.1
// (C1). It follows the same AES-256-GCM construction the teacher repo
// uses for its user store (auth/security.go), but encodes the result as
// the hex triple iv:tag:ciphertext spec.md §6 requires, and preserves
// the legacy 16-byte IV for backward file compatibility rather than the
// standard 12-byte GCM nonce.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"

	"github.com/Syras206/slimcryptdb/errs"
)

const (
	KeySize = 32 // AES-256
	TagSize = 16 // 128-bit GCM authentication tag

	// LegacyIVSize preserves compatibility with files produced by the
	// legacy store, which used 16-byte IVs with AES-GCM instead of the
	// conventional 12-byte nonce. See spec.md §9, Open Question: this
	// repository keeps the legacy size rather than silently "fixing" it,
	// since doing so would make existing files unreadable.
	LegacyIVSize = 16
)

// GenerateKey returns KeySize cryptographically secure random bytes
// suitable for use as a master key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errs.IOErr("crypto.GenerateKey", err)
	}
	return key, nil
}

// KeyFromPassphrase derives a KeySize master key from a human-memorable
// passphrase using argon2id, the same algorithm the teacher repo uses to
// hash user passwords (auth/security.go VerifyCredentials). This is an
// additive convenience: the on-disk format is unaffected by how the
// caller obtained their key.
func KeyFromPassphrase(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, KeySize)
}

// Encrypt seals plaintext under key with AES-256-GCM and a fresh
// LegacyIVSize-byte random IV, used whole as the GCM nonce through
// cipher.NewGCMWithNonceSize (not truncated to the standard 12 bytes).
// The output is the hex triple "iv_hex:tag_hex:ciphertext_hex".
func Encrypt(key, plaintext []byte) (string, error) {
	const op = "crypto.Encrypt"

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errs.New(errs.FormatError, op, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, LegacyIVSize)
	if err != nil {
		return "", errs.New(errs.FormatError, op, err)
	}

	iv := make([]byte, LegacyIVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", errs.IOErr(op, err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ciphertext := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	return strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, ":"), nil
}

// Decrypt reverses Encrypt. It strictly validates the three
// colon-separated fields (IV length 16, tag length 16, non-empty
// ciphertext), fails with AUTH_FAILED when the GCM tag does not verify,
// and — to defeat any format-confusion attack — fails with AUTH_FAILED
// when the resulting plaintext is not valid JSON.
func Decrypt(key []byte, encoded string) ([]byte, error) {
	const op = "crypto.Decrypt"

	parts := strings.Split(encoded, ":")
	if len(parts) != 3 {
		return nil, errs.New(errs.FormatError, op, fmt.Errorf("expected 3 colon-separated fields, got %d", len(parts)))
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, errs.New(errs.FormatError, op, fmt.Errorf("bad iv hex: %w", err))
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, errs.New(errs.FormatError, op, fmt.Errorf("bad tag hex: %w", err))
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, errs.New(errs.FormatError, op, fmt.Errorf("bad ciphertext hex: %w", err))
	}

	if len(iv) != LegacyIVSize {
		return nil, errs.New(errs.FormatError, op, fmt.Errorf("iv must be %d bytes, got %d", LegacyIVSize, len(iv)))
	}
	if len(tag) != TagSize {
		return nil, errs.New(errs.FormatError, op, fmt.Errorf("tag must be %d bytes, got %d", TagSize, len(tag)))
	}
	if len(ciphertext) == 0 {
		return nil, errs.New(errs.FormatError, op, fmt.Errorf("ciphertext must not be empty"))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.New(errs.FormatError, op, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, LegacyIVSize)
	if err != nil {
		return nil, errs.New(errs.FormatError, op, err)
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, errs.AuthFail(op, fmt.Errorf("gcm authentication failed"))
	}

	if !json.Valid(plaintext) {
		return nil, errs.AuthFail(op, fmt.Errorf("decrypted plaintext is not valid JSON"))
	}

	return plaintext, nil
}

// DeriveWALKey derives a KeySize key from masterKey and a 32-byte salt
// via PBKDF2-HMAC-SHA256 at 100,000 iterations, the compatibility anchor
// named in spec.md §9. Derivation fails if masterKey has been zeroized
// (every byte is zero), since a derived key from an all-zero buffer
// would silently succeed and mask a use-after-close bug.
func DeriveWALKey(masterKey, salt []byte) ([]byte, error) {
	const op = "crypto.DeriveWALKey"

	if len(salt) != KeySize {
		return nil, errs.New(errs.FormatError, op, fmt.Errorf("salt must be %d bytes, got %d", KeySize, len(salt)))
	}
	if isZeroed(masterKey) {
		return nil, errs.StateErr(op, fmt.Errorf("master key has been zeroized"))
	}

	return pbkdf2.Key(masterKey, salt, 100_000, KeySize, sha256.New), nil
}

// GenerateSalt returns KeySize cryptographically secure random bytes,
// used both for the WAL salt file and as a caller-supplied passphrase
// salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, KeySize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errs.IOErr("crypto.GenerateSalt", err)
	}
	return salt, nil
}

func isZeroed(b []byte) bool {
	var sum byte
	for _, c := range b {
		sum |= c
	}
	return sum == 0 && len(b) > 0
}

// Zeroize overwrites b with zero bytes in place. It is used on the
// facade's master key, derived WAL key, and salt buffers when the
// engine closes, per spec.md §4.10.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GenerateID returns a fresh 128-bit random identifier rendered as
// lowercase hex, per spec.md §3's record id rule.
func GenerateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", errs.IOErr("crypto.GenerateID", err)
	}
	return hex.EncodeToString(buf), nil
}
