package dispatcher

import (
	"errors"

	"talk2me/internal/cryptoenv"
	"talk2me/internal/store"
)

// handleRegister implements the `register` operation (spec §4.5).
func (s *Server) handleRegister(req request) *Reply {
	if err := s.store.CreateUser(req.Username, req.Password, false); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return failure("Username is already taken")
		}
		return failure(err.Error())
	}
	return success("Registered")
}

// handleLogin implements the `login` operation, including the optional
// chatname enter-a-chat path and the redirect handshake (spec §4.5, §4.6).
// It returns the reply, a freshly generated per-connection key to swap to
// after the reply is sent (only on outright success), and the session
// token now open on this connection (empty if login failed).
func (s *Server) handleLogin(req request) (*Reply, *cryptoenv.Key, string) {
	ok, err := s.store.VerifyPassword(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return failure("User does not exist"), nil, ""
		}
		return failure(err.Error()), nil, ""
	}
	if !ok {
		return failure("Password is incorrect"), nil, ""
	}

	token, err := s.store.OpenSession(req.Username)
	if err != nil {
		return failure(err.Error()), nil, ""
	}

	reply := success("Logged in")
	reply.Token = token

	if req.Chatname != "" {
		if !s.store.ExistsChat(req.Chatname) {
			s.store.CloseSession(token)
			return failure("Chat does not exist"), nil, ""
		}
		if addr := s.store.GetAssociatedServer(req.Chatname); addr != "" {
			return &Reply{Rpl: "Failure", Feedback: "Redirect client", Redirect: addr}, nil, token
		}
		if !s.store.IsUserInChat(req.Username, req.Chatname, false) {
			s.store.CloseSession(token)
			return failure("User is not a member of the chat"), nil, ""
		}
		history, err := s.store.GetHistory(req.Chatname)
		if err != nil {
			s.store.CloseSession(token)
			return failure(err.Error()), nil, ""
		}
		unseen, err := s.store.TakeUnseen(token, req.Chatname)
		if err != nil {
			s.store.CloseSession(token)
			return failure(err.Error()), nil, ""
		}
		_ = unseen // history already includes every message; unseen is cleared as a side effect
		reply.Messages = history
	}

	keyStr, err := cryptoenv.GenerateKey()
	if err != nil {
		return reply, nil, token
	}
	newKey, err := cryptoenv.ParseKey(keyStr)
	if err != nil {
		return reply, nil, token
	}
	reply.EncryptionKey = keyStr
	return reply, &newKey, token
}
