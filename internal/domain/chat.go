package domain

// Chat is a named room with a member set, a full history, and a per-member
// unseen-message queue. A Chat is never synchronized on its own — every
// method here assumes the caller (the Store) already holds the lock that
// serializes access across all chats.
type Chat struct {
	Name    string
	Members map[string]struct{}
	History []Message
	Unseen  map[string][]Message
}

// NewChat returns an empty chat named name.
func NewChat(name string) *Chat {
	return &Chat{
		Name:    name,
		Members: make(map[string]struct{}),
		Unseen:  make(map[string][]Message),
	}
}

// HasMember reports whether username is a member of c.
func (c *Chat) HasMember(username string) bool {
	_, ok := c.Members[username]
	return ok
}

// AddMember adds username to the chat and initializes its unseen queue.
func (c *Chat) AddMember(username string) {
	c.Members[username] = struct{}{}
	if _, ok := c.Unseen[username]; !ok {
		c.Unseen[username] = nil
	}
}

// RemoveMember drops username from the chat's members and unseen queue.
func (c *Chat) RemoveMember(username string) {
	delete(c.Members, username)
	delete(c.Unseen, username)
}

// Send appends msg to the history and to the unseen queue of every member
// other than the sender.
func (c *Chat) Send(msg Message) {
	c.History = append(c.History, msg)
	for member := range c.Members {
		if member == msg.Sender {
			continue
		}
		c.Unseen[member] = append(c.Unseen[member], msg)
	}
}

// TakeUnseen returns username's current unseen queue and clears it.
func (c *Chat) TakeUnseen(username string) []Message {
	msgs := c.Unseen[username]
	c.Unseen[username] = nil
	return msgs
}

// MemberCount returns the number of members, for diagnostics.
func (c *Chat) MemberCount() int {
	return len(c.Members)
}
