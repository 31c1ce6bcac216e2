package domain

import "time"

// SecureSetting is one encrypted named secret. Blob is
// nonce || ciphertext || auth tag as produced by the vault; Suffix is the
// non-secret trailing characters of the plaintext kept for human
// verification. Plaintext never touches storage or logs.
type SecureSetting struct {
	Name      string
	Blob      []byte
	Suffix    string
	UpdatedAt time.Time
	UpdatedBy string
}
