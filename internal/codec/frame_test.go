package codec

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"talk2me/internal/cryptoenv"
)

func TestWriteJSONReadJSONRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	keyB64, err := cryptoenv.GenerateKey()
	require.NoError(t, err)
	key, err := cryptoenv.ParseKey(keyB64)
	require.NoError(t, err)

	done := make(chan struct{})
	var readErr error
	var got []byte
	go func() {
		defer close(done)
		serverConn := NewConn(server)
		got, readErr = serverConn.ReadJSON(key)
	}()

	clientConn := NewConn(client)
	payload := []byte(`{"operation":"register","username":"alice"}`)
	require.NoError(t, clientConn.WriteJSON(key, payload))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for read")
	}
	require.NoError(t, readErr)
	require.Equal(t, payload, got)
}

func TestReadFrameTrimsCRLF(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan struct{})
	var frame string
	var readErr error
	go func() {
		defer close(done)
		frame, readErr = NewConn(server).ReadFrame()
	}()

	_, err := client.Write([]byte("abc123\r\n"))
	require.NoError(t, err)

	<-done
	require.NoError(t, readErr)
	require.Equal(t, "abc123", frame)
}
