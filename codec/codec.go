// Package codec implements the table/index file encoding described in
// spec.md §4.2 (C2): serialize -> encrypt -> optionally compress on
// write, and the inverse on read. It follows the same atomic
// write-temp-then-rename discipline the teacher repo's auth.UserStore
// uses to persist its encrypted user list (auth/user_store.go).
package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Syras206/slimcryptdb/crypto"
	"github.com/Syras206/slimcryptdb/errs"
)

// Codec encrypts/compresses values to and from disk. A zero Codec has
// Encrypt and Compression off, so it stores uncompressed cleartext JSON;
// use New to configure it.
type Codec struct {
	Key         []byte
	Encrypt     bool
	Compression bool
	logger      *zap.SugaredLogger
}

func New(key []byte, encrypt, compression bool, logger *zap.SugaredLogger) *Codec {
	return &Codec{Key: key, Encrypt: encrypt, Compression: compression, logger: logger}
}

// WriteFile serializes v to JSON, encrypts it (unless Encrypt is
// false, a compatibility fallback that stores cleartext JSON), optionally
// gzips the result, and atomically replaces path's contents.
func (c *Codec) WriteFile(path string, v interface{}) error {
	const op = "codec.WriteFile"

	plaintext, err := json.Marshal(v)
	if err != nil {
		return errs.New(errs.FormatError, op, err)
	}

	var payload []byte
	if c.Encrypt {
		encoded, err := crypto.Encrypt(c.Key, plaintext)
		if err != nil {
			return err
		}
		payload = []byte(encoded)
	} else {
		payload = plaintext
	}

	if c.Compression {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(payload); err != nil {
			return errs.IOErr(op, fmt.Errorf("gzip write: %w", err))
		}
		if err := gw.Close(); err != nil {
			return errs.IOErr(op, fmt.Errorf("gzip close: %w", err))
		}
		payload = buf.Bytes()
	}

	return atomicWrite(path, payload)
}

// ReadFile reads path and reverses WriteFile: optional gunzip (a failure
// here is treated as "was never compressed" rather than fatal, so a
// corrupt or absent gzip header falls through to decrypt), decrypt
// (unless Encrypt is false), then JSON unmarshal into v.
func (c *Codec) ReadFile(path string, v interface{}) error {
	const op = "codec.ReadFile"

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.NotFoundErr(op, err)
		}
		return errs.IOErr(op, err)
	}

	payload := raw
	if c.Compression {
		if gunzipped, ok := tryGunzip(raw); ok {
			payload = gunzipped
		}
	}

	var plaintext []byte
	if c.Encrypt {
		plaintext, err = crypto.Decrypt(c.Key, string(payload))
		if err != nil {
			return err
		}
	} else {
		plaintext = payload
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return errs.New(errs.FormatError, op, err)
	}
	return nil
}

// tryGunzip attempts to gunzip data, returning ok=false (never an error)
// when data is not a valid gzip stream, per spec.md §4.2's rule that
// compression failures are non-fatal to decryption.
func tryGunzip(data []byte) ([]byte, bool) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	defer gr.Close()
	out, err := io.ReadAll(gr)
	if err != nil {
		return nil, false
	}
	return out, true
}

// atomicWrite writes data to a temp file in path's directory, fsyncs it,
// and renames it over path, matching auth.UserStore.Save's
// create-temp/write/chmod/rename sequence in the teacher repo.
func atomicWrite(path string, data []byte) error {
	const op = "codec.atomicWrite"

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.IOErr(op, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errs.IOErr(op, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.IOErr(op, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.IOErr(op, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.IOErr(op, err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return errs.IOErr(op, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errs.IOErr(op, err)
	}
	return nil
}
