package types

import (
	"crypto/rand"
	"math/big"
	"time"
)

// ReferenceAlphabet omits characters that are easy to misread on a receipt.
const ReferenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewReference formats PREFIX-YYYYMMDD-XXXXXX from the UTC date of now and a
// random six character suffix.
func NewReference(prefix string, now time.Time) (string, error) {
	suffix := make([]byte, 6)
	base := big.NewInt(int64(len(ReferenceAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		suffix[i] = ReferenceAlphabet[n.Int64()]
	}
	return prefix + "-" + now.UTC().Format("20060102") + "-" + string(suffix), nil
}
