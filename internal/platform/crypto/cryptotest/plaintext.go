// Package cryptotest provides crypto doubles for tests.
package cryptotest

import (
	"fmt"
	"strings"

	"github.com/Scobiform/fedi-follow-force-graph/internal/platform/crypto"
)

// Plaintext seals values as "<boundTo>:<plaintext>". Rows stay readable in
// tests while a value opened under another key still fails.
type Plaintext struct{}

func (Plaintext) Encrypt(plaintext, boundTo string) (string, error) {
	return boundTo + ":" + plaintext, nil
}

func (Plaintext) Decrypt(ciphertext, boundTo string) (string, error) {
	value, ok := strings.CutPrefix(ciphertext, boundTo+":")
	if !ok {
		return "", fmt.Errorf("%w: not bound to %q", crypto.ErrMalformed, boundTo)
	}
	return value, nil
}

var _ crypto.Service = Plaintext{}
