package dispatcher

import (
	"errors"

	"talk2me/internal/config"
	"talk2me/internal/federation"
	"talk2me/internal/store"
)

// handleCreateChat implements `createchat`: an internal login, followed by
// chat creation and membership setup, followed (front only) by binding the
// chat to the lowest-load chat server (spec §4.5, §4.6).
func (s *Server) handleCreateChat(req request) *Reply {
	ok, err := s.store.VerifyPassword(req.Username, req.Password)
	if err != nil || !ok {
		return failure("Password is incorrect")
	}
	token, err := s.store.OpenSession(req.Username)
	if err != nil {
		return failure(err.Error())
	}
	defer s.store.CloseSession(token)

	if s.store.ExistsChat(req.Chatname) {
		return failure("Chat name is already taken")
	}
	for _, u := range req.Users {
		if !s.store.ExistsUser(u) {
			return failure("User does not exist: " + u)
		}
	}

	if err := s.store.CreateChat(req.Chatname); err != nil {
		return failure(err.Error())
	}
	if err := s.store.AddUserToChat(req.Username, req.Chatname); err != nil {
		return failure(err.Error())
	}
	for _, u := range req.Users {
		if err := s.store.AddUserToChat(u, req.Chatname); err != nil {
			return failure(err.Error())
		}
	}

	if s.role == config.RoleFront {
		s.federateCreateChat(req)
	}

	return success("Chat created")
}

// federateCreateChat binds req.Chatname to the lowest-loaded chat server
// and, best-effort, asks that server to provision it. The binding is
// recorded whether or not the federation call succeeds (spec §4.6).
func (s *Server) federateCreateChat(req request) {
	addr := s.store.GetLowestLoadServer()
	if addr == "" {
		return
	}
	if s.fed != nil {
		members := make([]federation.Member, 0, len(req.Users)+1)
		for _, u := range append([]string{req.Username}, req.Users...) {
			digest, err := s.store.PasswordDigest(u)
			if err != nil {
				continue
			}
			members = append(members, federation.Member{Username: u, PasswordHash: digest})
		}
		_ = s.fed.CreateChat(addr, req.Chatname, members)
	}
	s.store.AssociateChatWithServer(req.Chatname, addr)
}

// handleSendMsg implements `sendmsg`.
func (s *Server) handleSendMsg(req request) *Reply {
	if err := s.store.SendMessage(req.Token, req.Chatname, req.Msg); err != nil {
		return failure(sendMsgFeedback(err))
	}
	return success("Message sent")
}

func sendMsgFeedback(err error) string {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		return "Session is not valid"
	case errors.Is(err, store.ErrChatNotFound):
		return "Chat does not exist"
	case errors.Is(err, store.ErrNotMember):
		return "User is not a member of the chat"
	default:
		return err.Error()
	}
}

// handleRecvMsg implements `recvmsg`: drains and returns the caller's
// unseen queue for the chat.
func (s *Server) handleRecvMsg(req request) *Reply {
	messages, err := s.store.TakeUnseen(req.Token, req.Chatname)
	if err != nil {
		return failure(sendMsgFeedback(err))
	}
	reply := success("Messages received")
	reply.Messages = messages
	return reply
}

// handleLeaveChat implements `leavechat`: an internal login, membership
// removal, and (front only) best-effort notification of the chat server.
func (s *Server) handleLeaveChat(req request) *Reply {
	ok, err := s.store.VerifyPassword(req.Username, req.Password)
	if err != nil || !ok {
		return failure("Password is incorrect")
	}
	token, err := s.store.OpenSession(req.Username)
	if err != nil {
		return failure(err.Error())
	}
	defer s.store.CloseSession(token)

	if !s.store.ExistsChat(req.Chatname) {
		return failure("Chat does not exist")
	}
	if err := s.store.RemoveUserFromChat(req.Username, req.Chatname); err != nil {
		if errors.Is(err, store.ErrNotMember) {
			return failure("User is not a member of the chat")
		}
		return failure(err.Error())
	}

	if s.role == config.RoleFront && s.fed != nil {
		if addr := s.store.GetAssociatedServer(req.Chatname); addr != "" {
			_ = s.fed.LeaveChat(addr, req.Chatname, req.Username)
		}
	}

	return success("Left chat")
}

// handleListUsers implements `listusers`.
func (s *Server) handleListUsers() *Reply {
	reply := success("")
	reply.Users = s.store.ListUsers()
	return reply
}

// handleListChats implements `listchats`.
func (s *Server) handleListChats() *Reply {
	reply := success("")
	reply.Chats = s.store.ListChats()
	return reply
}

// handleStats implements `stats`, aggregating chat-server contributions to
// number_of_sent_messages on the front server (spec §4.5, §4.6).
func (s *Server) handleStats() *Reply {
	stats := s.store.GetStats()
	if s.role == config.RoleFront && s.fed != nil {
		for _, addr := range s.cfg.ChatServers {
			n, err := s.fed.Stats(addr)
			if err != nil {
				continue
			}
			stats.NumberOfSentMessages += n
		}
	}
	reply := success("")
	reply.Stats = &stats
	return reply
}
