package engine

import (
	"crypto/rand"
	"math/big"
)

const passwordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GeneratePassword returns a random password of length n drawn from an
// alphabet without visually ambiguous characters.
func GeneratePassword(n int) string {
	buf := make([]byte, n)
	size := big.NewInt(int64(len(passwordAlphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken;
			// nothing sensible can be provisioned in that state.
			panic(err)
		}
		buf[i] = passwordAlphabet[idx.Int64()]
	}
	return string(buf)
}
