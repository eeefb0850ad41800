// Package types provides the core data types shared across the chatframe server.
package types

// Session represents a client-scoped conversation held in memory. The
// transcript itself lives in the session store; Session is the identity and
// activity snapshot handed to transports.
type Session struct {
	ID       string      `json:"id"`
	Time     SessionTime `json:"time"`
	Messages int         `json:"messages"`
}

// SessionTime contains timestamps for a session, in Unix milliseconds.
type SessionTime struct {
	Created    int64 `json:"created"`
	LastActive int64 `json:"lastActive"`
}
