package dispatcher

import (
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"talk2me/internal/codec"
	"talk2me/internal/config"
	"talk2me/internal/cryptoenv"
	"talk2me/internal/store"
)

// testClient drives one end of a handleConn pipe, tracking the active key
// the way a real client must: it starts on the base key and swaps to the
// per-session key carried in a successful login reply.
type testClient struct {
	t   *testing.T
	fc  *codec.Conn
	key cryptoenv.Key
}

func newTestClient(t *testing.T, conn net.Conn, baseKey cryptoenv.Key) *testClient {
	return &testClient{t: t, fc: codec.NewConn(conn), key: baseKey}
}

func (c *testClient) send(req map[string]any) Reply {
	c.t.Helper()
	plaintext, err := json.Marshal(req)
	require.NoError(c.t, err)
	require.NoError(c.t, c.fc.WriteJSON(c.key, plaintext))

	raw, err := c.fc.ReadJSON(c.key)
	require.NoError(c.t, err)

	var reply Reply
	require.NoError(c.t, json.Unmarshal(raw, &reply))
	if reply.EncryptionKey != "" {
		key, err := cryptoenv.ParseKey(reply.EncryptionKey)
		require.NoError(c.t, err)
		c.key = key
	}
	return reply
}

func newTestServer(t *testing.T, role config.Role, chatServers []string) (*Server, cryptoenv.Key) {
	t.Helper()
	baseKeyB64, err := cryptoenv.GenerateKey()
	require.NoError(t, err)
	baseKey, err := cryptoenv.ParseKey(baseKeyB64)
	require.NoError(t, err)

	st, err := store.New(filepath.Join(t.TempDir(), "backup.json"), chatServers, 1)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	cfg := config.Config{
		Role:          string(role),
		Port:          9999,
		MaxThreads:    10,
		AcceptTimeout: 1,
		BaseKey:       baseKeyB64,
		ChatServers:   chatServers,
	}
	srv, err := New(cfg, st, nil)
	require.NoError(t, err)
	return srv, baseKey
}

// dial starts srv.handleConn on one end of an in-memory pipe and returns a
// testClient wired to the other end.
func dial(t *testing.T, srv *Server, baseKey cryptoenv.Key) *testClient {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.handleConn(serverSide)
	}()
	t.Cleanup(func() {
		clientSide.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	})
	return newTestClient(t, clientSide, baseKey)
}

func TestRegisterLoginSendRecv(t *testing.T) {
	srv, baseKey := newTestServer(t, config.RoleFront, nil)

	admin := dial(t, srv, baseKey)
	reply := admin.send(map[string]any{"operation": "register", "username": "alice", "password": "a"})
	require.Equal(t, "Success", reply.Rpl)
	reply = admin.send(map[string]any{"operation": "register", "username": "bob", "password": "b"})
	require.Equal(t, "Success", reply.Rpl)

	reply = admin.send(map[string]any{
		"operation": "createchat", "username": "alice", "password": "a",
		"chatname": "x", "users": []string{"bob"},
	})
	require.Equal(t, "Success", reply.Rpl)

	aliceConn := dial(t, srv, baseKey)
	reply = aliceConn.send(map[string]any{"operation": "login", "username": "alice", "password": "a", "chatname": "x"})
	require.Equal(t, "Success", reply.Rpl)
	require.NotEmpty(t, reply.Token)
	require.NotEmpty(t, reply.EncryptionKey)
	require.Empty(t, reply.Messages)
	aliceToken := reply.Token

	bobConn := dial(t, srv, baseKey)
	reply = bobConn.send(map[string]any{"operation": "login", "username": "bob", "password": "b", "chatname": "x"})
	require.Equal(t, "Success", reply.Rpl)
	bobToken := reply.Token

	// This request is encrypted with the per-session key the testClient
	// swapped to after the login reply above — proving the dispatcher-owned
	// rekey handoff holds for later frames on the same connection.
	reply = aliceConn.send(map[string]any{"operation": "sendmsg", "token": aliceToken, "chatname": "x", "msg": "hi"})
	require.Equal(t, "Success", reply.Rpl)

	reply = bobConn.send(map[string]any{"operation": "recvmsg", "token": bobToken, "chatname": "x"})
	require.Equal(t, "Success", reply.Rpl)
	require.Len(t, reply.Messages, 1)
	require.Equal(t, "alice", reply.Messages[0].Sender)
	require.Equal(t, "hi", reply.Messages[0].Msg)

	// Second recvmsg in a row returns nothing new.
	reply = bobConn.send(map[string]any{"operation": "recvmsg", "token": bobToken, "chatname": "x"})
	require.Equal(t, "Success", reply.Rpl)
	require.Empty(t, reply.Messages)
}

func TestLoginWrongPasswordReply(t *testing.T) {
	srv, baseKey := newTestServer(t, config.RoleFront, nil)
	client := dial(t, srv, baseKey)

	client.send(map[string]any{"operation": "register", "username": "alice", "password": "a"})
	reply := client.send(map[string]any{"operation": "login", "username": "alice", "password": "wrong"})
	require.Equal(t, "Failure", reply.Rpl)
	require.Equal(t, "Password is incorrect", reply.Feedback)
	require.Empty(t, reply.Token)
}

func TestInvalidOperationReply(t *testing.T) {
	srv, baseKey := newTestServer(t, config.RoleFront, nil)
	client := dial(t, srv, baseKey)

	reply := client.send(map[string]any{"operation": "bogus"})
	require.Equal(t, "Failure", reply.Rpl)
	require.Equal(t, "Invalid request", reply.Feedback)
}
