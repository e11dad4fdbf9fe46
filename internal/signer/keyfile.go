package signer

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
)

// FileKeySource reads the delegated key from a Solana CLI keypair file, a
// JSON array of 64 bytes. The file is read on every activation so a
// rotated key takes effect without a restart.
type FileKeySource struct {
	path string
}

func NewFileKeySource(path string) *FileKeySource {
	return &FileKeySource{path: path}
}

// DelegatedKey loads and validates the keypair file.
func (s *FileKeySource) DelegatedKey() (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading keypair file failed: %w", err)
	}
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("keypair file is not a JSON byte array: %w", err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair file holds %d bytes, want %d", len(ints), ed25519.PrivateKeySize)
	}
	key := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	for i, b := range ints {
		if b < 0 || b > 255 {
			return nil, fmt.Errorf("keypair file entry %d out of byte range: %d", i, b)
		}
		key[i] = byte(b)
	}
	return key, nil
}
