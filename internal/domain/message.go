package domain

import "time"

// timeLayout is the wire/snapshot rendering of a message timestamp.
const timeLayout = "2006-01-02 15:04:05"

// Message is an immutable chat message. Sender is a username, not a pointer
// to a User: the Store is the sole owner of User values, and usernames are
// the non-owning identifier that lets Message and Chat refer to a sender
// without a cyclic reference back into the Store.
type Message struct {
	Sender    string
	Text      string
	CreatedAt time.Time
}

// NewMessage returns a Message accepted "now".
func NewMessage(sender, text string, now time.Time) Message {
	return Message{Sender: sender, Text: text, CreatedAt: now}
}

// TimeString renders CreatedAt in the wire format used by recvmsg/history
// replies: "YYYY-MM-DD HH:MM:SS".
func (m Message) TimeString() string {
	return m.CreatedAt.Format(timeLayout)
}
