package testutil

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomString generates a random string of n characters
func RandomString(n int) string {
	bytes := make([]byte, n/2+1)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:n]
}

// RandomSessionID mints a client-style session ID. The server adopts IDs
// with this prefix verbatim, so each spec gets an isolated conversation.
func RandomSessionID() string {
	return "session_" + RandomString(12)
}
