package federation

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"talk2me/internal/codec"
	"talk2me/internal/cryptoenv"
)

func testKey(t *testing.T) cryptoenv.Key {
	t.Helper()
	b64, err := cryptoenv.GenerateKey()
	require.NoError(t, err)
	key, err := cryptoenv.ParseKey(b64)
	require.NoError(t, err)
	return key
}

// fakeChatServer accepts exactly one connection, decodes one request, and
// replies with the given JSON reply.
func fakeChatServer(t *testing.T, key cryptoenv.Key, reply map[string]any, capture *map[string]any) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fconn := codec.NewConn(conn)
		raw, err := fconn.ReadJSON(key)
		if err != nil {
			return
		}
		if capture != nil {
			json.Unmarshal(raw, capture)
		}
		replyBytes, _ := json.Marshal(reply)
		fconn.WriteJSON(key, replyBytes)
	}()

	return ln.Addr().String()
}

func TestCreateChatSendsMembers(t *testing.T) {
	key := testKey(t)
	var captured map[string]any
	addr := fakeChatServer(t, key, map[string]any{"rpl": "Success", "feedback": "Chat provisioned"}, &captured)

	c := NewClient(key)
	err := c.CreateChat(addr, "x", []Member{{Username: "alice", PasswordHash: "deadbeef"}})
	require.NoError(t, err)

	require.Equal(t, "createchat", captured["server_operation"])
	require.Equal(t, "x", captured["chatname"])
	require.Equal(t, []any{map[string]any{"username": "alice", "password_hash": "deadbeef"}}, captured["members"])
}

func TestStatsParsesCount(t *testing.T) {
	key := testKey(t)
	addr := fakeChatServer(t, key, map[string]any{"rpl": "Success", "feedback": "", "number_of_sent_messages": 7}, nil)

	c := NewClient(key)
	n, err := c.Stats(addr)
	require.NoError(t, err)
	require.Equal(t, 7, n)
}

func TestCallDialFailureReturnsError(t *testing.T) {
	key := testKey(t)
	c := NewClient(key)
	// Nothing listens here; dial must fail quickly rather than hang.
	start := time.Now()
	err := c.LeaveChat("127.0.0.1:1", "x", "alice")
	require.Error(t, err)
	require.Less(t, time.Since(start), 4*time.Second)
}
