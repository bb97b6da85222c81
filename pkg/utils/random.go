package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// RandHex returns a random hex string of 2*n characters (n random bytes),
// falling back to a timestamp if the system RNG is unavailable.
func RandHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
