package util

import (
	"crypto/rand"
	"encoding/hex"
)

const idBytes = 16

// NewID returns a random identifier, prefixed so rows are recognizable
// in logs and URLs: "usr", "page", "post", "brd", "col", "itm", "cat",
// "tri", "sub", "asset" and "ghi" for entities, "jti" and "rft" for
// token ids. An empty prefix yields bare hex, used when appending
// entropy to a token.
func NewID(prefix string) string {
	buf := make([]byte, idBytes)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
