package dispatcher

import (
	"talk2me/internal/cryptoenv"
)

// dispatchOperation decodes plaintext as a client request and routes it by
// `operation` to the matching handler. It returns the reply to send, a
// non-nil newKey if the active key for this connection must change after
// the reply is written (login only), and the session token now associated
// with this connection (unchanged unless login opened a new session).
func (s *Server) dispatchOperation(plaintext []byte, sessionToken string) (*Reply, *cryptoenv.Key, string) {
	req, err := parseRequest(plaintext)
	if err != nil {
		return failure("Invalid request"), nil, sessionToken
	}

	switch req.Operation {
	case "register":
		return s.handleRegister(req), nil, sessionToken
	case "login":
		reply, newKey, token := s.handleLogin(req)
		if token != "" {
			sessionToken = token
		}
		return reply, newKey, sessionToken
	case "createchat":
		return s.handleCreateChat(req), nil, sessionToken
	case "sendmsg":
		return s.handleSendMsg(req), nil, sessionToken
	case "recvmsg":
		return s.handleRecvMsg(req), nil, sessionToken
	case "leavechat":
		return s.handleLeaveChat(req), nil, sessionToken
	case "listusers":
		return s.handleListUsers(), nil, sessionToken
	case "listchats":
		return s.handleListChats(), nil, sessionToken
	case "stats":
		return s.handleStats(), nil, sessionToken
	default:
		return failure("Invalid request"), nil, sessionToken
	}
}
