package visitors

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// SessionKey derives the stored session identifier from the token the client
// tracker sends. The token itself is never persisted; only a keyed BLAKE2b
// digest of it, so stored keys cannot be matched back to client state without
// the server secret.
func SessionKey(clientSessionID, secret string) string {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}

	h, err := blake2b.New256(key)
	if err != nil {
		// Only reachable with an oversized key, which is folded above.
		sum := blake2b.Sum256([]byte(secret + "." + clientSessionID))
		return hex.EncodeToString(sum[:])
	}
	h.Write([]byte(strings.TrimSpace(clientSessionID)))
	return hex.EncodeToString(h.Sum(nil))
}
