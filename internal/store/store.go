// Package store provides Talk2Me's thread-safe registry of users, chats,
// and sessions, plus crash-consistency snapshot persistence and basic
// operation-latency stats (spec §4.2).
package store

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"talk2me/internal/domain"
)

// Sentinel errors returned by Store methods. Handlers translate these into
// the user-facing `feedback` string for a Failure reply.
var (
	ErrUserExists      = errors.New("username is already taken")
	ErrUserNotFound    = errors.New("user does not exist")
	ErrIncorrectPass   = errors.New("password is incorrect")
	ErrChatExists      = errors.New("chat name is already taken")
	ErrChatNotFound    = errors.New("chat does not exist")
	ErrSessionNotFound = errors.New("session is not valid")
	ErrNotMember       = errors.New("user is not a member of the chat")
	ErrAlreadyMember   = errors.New("user is already a member of the chat")
)

// Store is the single source of truth for Talk2Me's account/chat/session
// directory. A single mutex guards every field; no method performs I/O
// while holding it (snapshotting copies state under the lock and writes it
// out of the lock, via the snapshotter).
type Store struct {
	mu sync.Mutex

	users    map[string]domain.User
	chats    map[string]*domain.Chat
	sessions map[string]string // token -> username
	chatHome map[string]string // chat name -> chat-server address (front only)
	load     map[string]int    // chat-server address -> number of chats homed there

	reqCount   uint64
	avgLatency float64 // seconds, running mean

	snap *snapshotter
}

// New creates a Store, loading snapshotPath if it exists, and otherwise
// starting empty with load pre-populated (at zero) for every address in
// chatServers. snapshotWorkers controls the size of the background
// snapshot-writer pool.
func New(snapshotPath string, chatServers []string, snapshotWorkers int) (*Store, error) {
	s := &Store{
		users:    make(map[string]domain.User),
		chats:    make(map[string]*domain.Chat),
		sessions: make(map[string]string),
		chatHome: make(map[string]string),
		load:     make(map[string]int),
	}

	loaded, err := loadSnapshot(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("store: load snapshot: %w", err)
	}
	if loaded != nil {
		s.restore(loaded)
	} else {
		for _, addr := range chatServers {
			s.load[addr] = 0
		}
	}

	s.snap = newSnapshotter(snapshotWorkers, snapshotPath)
	return s, nil
}

// Close stops the background snapshot writer, flushing any queued snapshot.
func (s *Store) Close() {
	s.snap.stop()
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// ExistsUser reports whether username is registered.
func (s *Store) ExistsUser(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[username]
	return ok
}

// CreateUser registers username with the given password. If alreadyHashed
// is true, password is stored verbatim as the digest (used when a chat
// server provisions an account on the front server's behalf).
func (s *Store) CreateUser(username, password string, alreadyHashed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return ErrUserExists
	}
	s.users[username] = domain.NewUser(username, password, alreadyHashed)
	return nil
}

// VerifyPassword reports whether password is correct for username.
func (s *Store) VerifyPassword(username, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return false, ErrUserNotFound
	}
	return u.VerifyPassword(password), nil
}

// PasswordDigest returns the stored digest for username, for federating a
// created chat's member list without re-hashing plaintext passwords.
func (s *Store) PasswordDigest(username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return "", ErrUserNotFound
	}
	return u.PasswordDigest, nil
}

// ListUsers returns all registered usernames. Order is not guaranteed.
func (s *Store) ListUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.users))
	for name := range s.users {
		out = append(out, name)
	}
	return out
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// OpenSession creates a fresh session token for username and returns it.
func (s *Store) OpenSession(username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return "", ErrUserNotFound
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	s.sessions[token] = username
	return token, nil
}

// CloseSession removes token's session, if any. Closing an unknown or
// already-closed token is a tolerated no-op.
func (s *Store) CloseSession(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// IsLoggedIn reports whether token names an open session.
func (s *Store) IsLoggedIn(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[token]
	return ok
}

// sessionUserLocked returns the username for token. Callers must already
// hold s.mu.
func (s *Store) sessionUserLocked(token string) (string, bool) {
	u, ok := s.sessions[token]
	return u, ok
}

// ---------------------------------------------------------------------------
// Chats
// ---------------------------------------------------------------------------

// ExistsChat reports whether name is a known chat.
func (s *Store) ExistsChat(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.chats[name]
	return ok
}

// CreateChat creates an empty chat named name.
func (s *Store) CreateChat(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[name]; ok {
		return ErrChatExists
	}
	s.chats[name] = domain.NewChat(name)
	return nil
}

// AddUserToChat adds username as a member of chatName.
func (s *Store) AddUserToChat(username, chatName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return ErrUserNotFound
	}
	c, ok := s.chats[chatName]
	if !ok {
		return ErrChatNotFound
	}
	c.AddMember(username)
	return nil
}

// RemoveUserFromChat removes username from chatName's membership.
func (s *Store) RemoveUserFromChat(username, chatName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatName]
	if !ok {
		return ErrChatNotFound
	}
	if !c.HasMember(username) {
		return ErrNotMember
	}
	c.RemoveMember(username)
	return nil
}

// IsUserInChat reports whether id (a username, or a session token if
// byToken is true) names a member of chatName.
func (s *Store) IsUserInChat(id, chatName string, byToken bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatName]
	if !ok {
		return false
	}
	username := id
	if byToken {
		u, ok := s.sessionUserLocked(id)
		if !ok {
			return false
		}
		username = u
	}
	return c.HasMember(username)
}

// ListChats returns all chat names. Order is not guaranteed.
func (s *Store) ListChats() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.chats))
	for name := range s.chats {
		out = append(out, name)
	}
	return out
}

// WireMessage is the {sender, msg, time} shape returned by TakeUnseen and
// GetHistory (spec §4.2).
type WireMessage struct {
	Sender string `json:"sender"`
	Msg    string `json:"msg"`
	Time   string `json:"time"`
}

// SendMessage appends a message from the session named by token to
// chatName, at the current wall-clock time.
func (s *Store) SendMessage(token, chatName, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.sessionUserLocked(token)
	if !ok {
		return ErrSessionNotFound
	}
	c, ok := s.chats[chatName]
	if !ok {
		return ErrChatNotFound
	}
	if !c.HasMember(username) {
		return ErrNotMember
	}
	c.Send(domain.NewMessage(username, text, time.Now()))
	return nil
}

// TakeUnseen returns and clears the unseen queue, for the session named by
// token, in chatName.
func (s *Store) TakeUnseen(token, chatName string) ([]WireMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.sessionUserLocked(token)
	if !ok {
		return nil, ErrSessionNotFound
	}
	c, ok := s.chats[chatName]
	if !ok {
		return nil, ErrChatNotFound
	}
	if !c.HasMember(username) {
		return nil, ErrNotMember
	}
	return toWireMessages(c.TakeUnseen(username)), nil
}

// GetHistory returns the full, ordered message history of chatName.
func (s *Store) GetHistory(chatName string) ([]WireMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatName]
	if !ok {
		return nil, ErrChatNotFound
	}
	return toWireMessages(c.History), nil
}

func toWireMessages(msgs []domain.Message) []WireMessage {
	out := make([]WireMessage, len(msgs))
	for i, m := range msgs {
		out[i] = WireMessage{Sender: m.Sender, Msg: m.Text, Time: m.TimeString()}
	}
	return out
}

// ---------------------------------------------------------------------------
// Federation (front-only bookkeeping)
// ---------------------------------------------------------------------------

// GetLowestLoadServer returns the configured chat-server address with the
// fewest chats homed on it, or "" if none are configured. Ties are broken
// by Go's unspecified map iteration order, matching the spec's "ties broken
// by iteration order" (i.e. unspecified, not load-aware).
func (s *Store) GetLowestLoadServer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	best := ""
	min := -1
	for addr, n := range s.load {
		if min == -1 || n < min {
			min = n
			best = addr
		}
	}
	return best
}

// AssociateChatWithServer records that chatName is now homed on server,
// incrementing that server's load.
func (s *Store) AssociateChatWithServer(chatName, server string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatHome[chatName] = server
	s.load[server]++
}

// GetAssociatedServer returns the chat-server address chatName is bound to,
// or "" if it is not (yet) delegated.
func (s *Store) GetAssociatedServer(chatName string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatHome[chatName]
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats is the {number_of_users, number_of_chats, number_of_sent_messages,
// average_operation_latency} shape returned by the `stats` operation.
type Stats struct {
	NumberOfUsers           int     `json:"number_of_users"`
	NumberOfChats           int     `json:"number_of_chats"`
	NumberOfSentMessages    int     `json:"number_of_sent_messages"`
	AverageOperationLatency float64 `json:"average_operation_latency"`
}

// GetStats returns a snapshot of the current local stats.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	sent := 0
	for _, c := range s.chats {
		sent += len(c.History)
	}
	return Stats{
		NumberOfUsers:           len(s.users),
		NumberOfChats:           len(s.chats),
		NumberOfSentMessages:    sent,
		AverageOperationLatency: s.avgLatency,
	}
}

// UpdateLatency folds dt into the running mean operation latency.
func (s *Store) UpdateLatency(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqCount++
	secs := dt.Seconds()
	s.avgLatency += (secs - s.avgLatency) / float64(s.reqCount)
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

// Backup copies the current state under the lock and hands it to the
// background snapshot writer, which performs the actual (out-of-lock) disk
// I/O. Non-blocking: if the writer's queue is full, the snapshot is dropped
// and the next call to Backup will try again.
func (s *Store) Backup() {
	snap := s.snapshotLocked()
	s.snap.submit(snap)
}

func (s *Store) snapshotLocked() snapshotDTO {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toDTO()
}

func generateToken() (string, error) {
	raw := make([]byte, 32) // 256 bits of entropy
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("store: generate token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
