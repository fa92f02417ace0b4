// Package federation implements the front server's outbound calls to chat
// servers: provisioning a newly delegated chat, informing a chat server
// that a member left, and fanning out stats queries (spec §4.6).
package federation

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"talk2me/internal/codec"
	"talk2me/internal/cryptoenv"
)

// dialTimeout bounds how long a federation call waits to connect; these
// calls are meant to be short-lived, single-round-trip exchanges.
const dialTimeout = 3 * time.Second

// Member is a chat member's credentials, as forwarded to the chat server
// provisioning a delegated chat.
type Member struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// Client issues server_operation calls to chat servers, all encrypted under
// the shared base key (there is no per-session key for a one-shot,
// unauthenticated inter-server call — see DESIGN.md).
type Client struct {
	baseKey cryptoenv.Key
}

// NewClient returns a federation Client that encrypts calls under baseKey.
func NewClient(baseKey cryptoenv.Key) *Client {
	return &Client{baseKey: baseKey}
}

// CreateChat asks the chat server at addr to provision chatName with the
// given members. Errors are the caller's to decide whether to swallow
// (spec §4.6: createchat/leavechat failures are best-effort).
func (c *Client) CreateChat(addr, chatName string, members []Member) error {
	req := map[string]any{
		"server_operation": "createchat",
		"chatname":         chatName,
		"members":          members,
		"already_hashed":   true,
	}
	_, err := c.call(addr, req)
	return err
}

// LeaveChat informs the chat server at addr that username left chatName.
func (c *Client) LeaveChat(addr, chatName, username string) error {
	req := map[string]any{
		"server_operation": "leavechat",
		"chatname":         chatName,
		"username":         username,
	}
	_, err := c.call(addr, req)
	return err
}

// statsReply is the shape a chat server returns for a stats fan-out call.
type statsReply struct {
	NumberOfSentMessages int `json:"number_of_sent_messages"`
}

// Stats asks the chat server at addr for its number of sent messages.
func (c *Client) Stats(addr string) (int, error) {
	req := map[string]any{"server_operation": "stats"}
	raw, err := c.call(addr, req)
	if err != nil {
		return 0, err
	}
	var reply statsReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return 0, fmt.Errorf("federation: parse stats reply: %w", err)
	}
	return reply.NumberOfSentMessages, nil
}

// call opens a one-shot TCP connection to addr, sends req under the base
// key, and returns the decrypted reply bytes.
func (c *Client) call(addr string, req map[string]any) ([]byte, error) {
	callID := uuid.NewString()
	log.Debug().Str("call_id", callID).Str("addr", addr).Interface("op", req["server_operation"]).Msg("federation call")

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		log.Warn().Str("call_id", callID).Str("addr", addr).Err(err).Msg("federation dial failed")
		return nil, fmt.Errorf("federation: dial %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(dialTimeout))

	plaintext, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("federation: marshal request: %w", err)
	}

	fconn := codec.NewConn(conn)
	if err := fconn.WriteJSON(c.baseKey, plaintext); err != nil {
		log.Warn().Str("call_id", callID).Str("addr", addr).Err(err).Msg("federation write failed")
		return nil, fmt.Errorf("federation: write request: %w", err)
	}
	reply, err := fconn.ReadJSON(c.baseKey)
	if err != nil {
		log.Warn().Str("call_id", callID).Str("addr", addr).Err(err).Msg("federation read failed")
		return nil, fmt.Errorf("federation: read reply: %w", err)
	}
	log.Debug().Str("call_id", callID).Str("addr", addr).Msg("federation call succeeded")
	return reply, nil
}
