package types

import "fmt"

// FeedID is a type-safe wrapper for author identities (public key ids)
type FeedID string

// MsgKey is a type-safe wrapper for message keys (content hashes)
type MsgKey string

// String converts FeedID to string
func (f FeedID) String() string {
	return string(f)
}

// String converts MsgKey to string
func (k MsgKey) String() string {
	return string(k)
}

// LogKey is one entry of the append-only log: its commit sequence and the key
// of the message stored there.
type LogKey struct {
	Seq uint64 `json:"seq"`
	Key MsgKey `json:"key"`
}

func (l LogKey) String() string {
	return fmt.Sprintf("%d:%s", l.Seq, l.Key)
}
