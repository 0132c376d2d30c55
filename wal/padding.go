package wal

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/Syras206/slimcryptdb/errs"
)

// pad builds the plaintext buffer fed to AEAD: [json_bytes | random
// padding | length_prefix_be_u32], rounded up to the next multiple of
// blockSize, per spec.md §4.3. Random padding (not PKCS#7) avoids the
// ambiguity PKCS#7 runs into at large block sizes while still hiding the
// true entry length from a passive observer of file sizes.
func pad(data []byte, blockSize int) ([]byte, error) {
	const op = "wal.pad"

	total := len(data) + 4
	padded := ((total + blockSize - 1) / blockSize) * blockSize
	if padded < blockSize {
		padded = blockSize
	}

	out := make([]byte, padded)
	copy(out, data)

	randomRegion := out[len(data) : padded-4]
	if len(randomRegion) > 0 {
		if _, err := rand.Read(randomRegion); err != nil {
			return nil, errs.IOErr(op, err)
		}
	}

	binary.BigEndian.PutUint32(out[padded-4:], uint32(len(data)))
	return out, nil
}

// unpad reverses pad: reads the last 4 bytes as the original length,
// validates 0 <= L <= padded_len-4, and slices the plaintext out.
func unpad(padded []byte) ([]byte, error) {
	const op = "wal.unpad"

	if len(padded) < 4 {
		return nil, errs.New(errs.FormatError, op, fmt.Errorf("padded buffer too short: %d bytes", len(padded)))
	}
	l := binary.BigEndian.Uint32(padded[len(padded)-4:])
	maxLen := uint32(len(padded) - 4)
	if l > maxLen {
		return nil, errs.New(errs.FormatError, op, fmt.Errorf("length prefix %d exceeds max %d", l, maxLen))
	}
	return padded[:l], nil
}
