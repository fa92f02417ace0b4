package dispatcher

import (
	"errors"

	"talk2me/internal/store"
)

// dispatchFederation handles an inbound server_operation call from a front
// server (spec §4.6). These are unauthenticated, one-shot, encrypted under
// the shared base key; there is no session token involved.
func (s *Server) dispatchFederation(plaintext []byte) *Reply {
	req, err := parseRequest(plaintext)
	if err != nil {
		return failure("Invalid request")
	}

	switch req.ServerOperation {
	case "createchat":
		return s.handleFederatedCreateChat(req)
	case "leavechat":
		return s.handleFederatedLeaveChat(req)
	case "stats":
		return s.handleFederatedStats()
	default:
		return failure("Invalid request")
	}
}

// handleFederatedCreateChat provisions accounts (if needed) and a chat on
// this chat server, on behalf of the front server.
func (s *Server) handleFederatedCreateChat(req request) *Reply {
	for _, m := range req.Members {
		if s.store.ExistsUser(m.Username) {
			continue
		}
		if err := s.store.CreateUser(m.Username, m.PasswordHash, req.AlreadyHashed); err != nil && !errors.Is(err, store.ErrUserExists) {
			return failure(err.Error())
		}
	}
	if !s.store.ExistsChat(req.Chatname) {
		if err := s.store.CreateChat(req.Chatname); err != nil && !errors.Is(err, store.ErrChatExists) {
			return failure(err.Error())
		}
	}
	for _, m := range req.Members {
		if err := s.store.AddUserToChat(m.Username, req.Chatname); err != nil {
			return failure(err.Error())
		}
	}
	return success("Chat provisioned")
}

// handleFederatedLeaveChat removes a member from a chat homed on this
// server, on behalf of the front server.
func (s *Server) handleFederatedLeaveChat(req request) *Reply {
	if err := s.store.RemoveUserFromChat(req.Username, req.Chatname); err != nil {
		return failure(err.Error())
	}
	return success("Left chat")
}

// handleFederatedStats reports this chat server's message count to a
// front server's stats fan-out.
func (s *Server) handleFederatedStats() *Reply {
	stats := s.store.GetStats()
	n := stats.NumberOfSentMessages
	reply := success("")
	reply.NumberOfSentMessages = &n
	return reply
}
