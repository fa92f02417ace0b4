package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, chatServers ...string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backup.json")
	st, err := New(path, chatServers, 1)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

// TestSeedScenarioOne walks spec §8 seed scenario 1: register two users,
// create a chat, log in and exchange a message.
func TestSeedScenarioOne(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.CreateUser("alice", "a", false))
	require.NoError(t, st.CreateUser("bob", "b", false))
	require.NoError(t, st.CreateChat("x"))
	require.NoError(t, st.AddUserToChat("alice", "x"))
	require.NoError(t, st.AddUserToChat("bob", "x"))

	aliceToken, err := st.OpenSession("alice")
	require.NoError(t, err)
	unseen, err := st.TakeUnseen(aliceToken, "x")
	require.NoError(t, err)
	assert.Empty(t, unseen)

	bobToken, err := st.OpenSession("bob")
	require.NoError(t, err)
	bobUnseen, err := st.TakeUnseen(bobToken, "x")
	require.NoError(t, err)
	assert.Empty(t, bobUnseen)

	require.NoError(t, st.SendMessage(aliceToken, "x", "hi"))

	msgs, err := st.TakeUnseen(bobToken, "x")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice", msgs[0].Sender)
	assert.Equal(t, "hi", msgs[0].Msg)
}

// TestSeedScenarioTwo: a second recvmsg in a row returns nothing new.
func TestSeedScenarioTwo(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.CreateUser("alice", "a", false))
	require.NoError(t, st.CreateUser("bob", "b", false))
	require.NoError(t, st.CreateChat("x"))
	require.NoError(t, st.AddUserToChat("alice", "x"))
	require.NoError(t, st.AddUserToChat("bob", "x"))

	aliceToken, _ := st.OpenSession("alice")
	bobToken, _ := st.OpenSession("bob")
	require.NoError(t, st.SendMessage(aliceToken, "x", "hi"))

	first, err := st.TakeUnseen(bobToken, "x")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := st.TakeUnseen(bobToken, "x")
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestLoginWrongPassword(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.CreateUser("alice", "a", false))

	ok, err := st.VerifyPassword("alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestFederationLoadBalancing covers seed scenario 4/5: two chats placed on
// two chat servers at load 0 land on different servers, updating load.
func TestFederationLoadBalancing(t *testing.T) {
	st := newTestStore(t, "S1", "S2")

	first := st.GetLowestLoadServer()
	require.Contains(t, []string{"S1", "S2"}, first)
	st.AssociateChatWithServer("y1", first)

	second := st.GetLowestLoadServer()
	assert.NotEqual(t, first, second)
	st.AssociateChatWithServer("y2", second)

	assert.Equal(t, first, st.GetAssociatedServer("y1"))
	assert.Equal(t, second, st.GetAssociatedServer("y2"))
}

// TestStatsCountsSentMessages covers seed scenario 6's local half: stats
// reflects the sum of history lengths across chats.
func TestStatsCountsSentMessages(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.CreateUser("alice", "a", false))
	require.NoError(t, st.CreateChat("x"))
	require.NoError(t, st.CreateChat("y"))
	require.NoError(t, st.AddUserToChat("alice", "x"))
	require.NoError(t, st.AddUserToChat("alice", "y"))

	token, _ := st.OpenSession("alice")
	for i := 0; i < 3; i++ {
		require.NoError(t, st.SendMessage(token, "x", "m"))
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, st.SendMessage(token, "y", "m"))
	}

	stats := st.GetStats()
	assert.Equal(t, 8, stats.NumberOfSentMessages)
	assert.Equal(t, 1, stats.NumberOfUsers)
	assert.Equal(t, 2, stats.NumberOfChats)
}

func TestRegisterTwiceFails(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.CreateUser("alice", "a", false))
	err := st.CreateUser("alice", "a", false)
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestCreateChatDuplicateNameFails(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.CreateChat("x"))
	err := st.CreateChat("x")
	assert.ErrorIs(t, err, ErrChatExists)
}

func TestSendMsgByNonMemberFails(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.CreateUser("alice", "a", false))
	require.NoError(t, st.CreateChat("x"))
	token, _ := st.OpenSession("alice")

	err := st.SendMessage(token, "x", "hi")
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestConnectionDropInvalidatesSession(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.CreateUser("alice", "a", false))
	token, _ := st.OpenSession("alice")
	require.True(t, st.IsLoggedIn(token))

	st.CloseSession(token) // simulates dispatcher teardown on disconnect
	assert.False(t, st.IsLoggedIn(token))

	err := st.SendMessage(token, "x", "hi")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUpdateLatencyRunningMean(t *testing.T) {
	st := newTestStore(t)
	st.UpdateLatency(100 * time.Millisecond)
	st.UpdateLatency(300 * time.Millisecond)

	stats := st.GetStats()
	assert.InDelta(t, 0.2, stats.AverageOperationLatency, 0.001)
}

// TestSnapshotRoundTrip covers the spec's round-trip law: a snapshot taken,
// then loaded into a fresh Store, reproduces the same users/chats.
func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.json")
	st, err := New(path, nil, 1)
	require.NoError(t, err)

	require.NoError(t, st.CreateUser("alice", "a", false))
	require.NoError(t, st.CreateChat("x"))
	require.NoError(t, st.AddUserToChat("alice", "x"))
	token, _ := st.OpenSession("alice")
	require.NoError(t, st.SendMessage(token, "x", "hi"))

	dto := st.snapshotLocked()
	require.NoError(t, writeSnapshot(path, dto))
	st.Close()

	reloaded, err := New(path, nil, 1)
	require.NoError(t, err)
	defer reloaded.Close()

	assert.ElementsMatch(t, []string{"alice"}, reloaded.ListUsers())
	assert.ElementsMatch(t, []string{"x"}, reloaded.ListChats())
	history, err := reloaded.GetHistory("x")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Msg)
}
