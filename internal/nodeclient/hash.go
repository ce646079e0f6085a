package nodeclient

import (
	"github.com/mr-tron/base58"
)

// ValidContentHash tells whether s is a base58 encoded multihash
func ValidContentHash(s string) bool {
	if s == "" {
		return false
	}
	b, err := base58.Decode(s)
	if err != nil || len(b) < 3 {
		return false
	}
	// <hash function code> <digest length> <digest>
	return int(b[1]) == len(b)-2
}
