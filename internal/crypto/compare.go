package crypto

import "crypto/subtle"

// constantTimeEqual compares two equal-length byte slices in constant time
// to avoid leaking how many leading bytes of a sealed frame's hash matched.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
