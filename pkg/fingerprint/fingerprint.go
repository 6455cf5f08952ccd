// Package fingerprint produces the opaque client token the provider expects
// on listing and search requests. The provider sporadically rejects a token
// with its signature-check code; callers respond by generating a fresh one.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/rand"
	"time"
)

// New returns a fresh 32-character hex fingerprint.
func New() string {
	timestamp := time.Now().UnixMilli()
	randomPart := 100000 + rand.Intn(900000)
	combined := fmt.Sprintf("fingerprint_%d_%d", timestamp, randomPart)
	sum := md5.Sum([]byte(combined))
	return hex.EncodeToString(sum[:])
}
