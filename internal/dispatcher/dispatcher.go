// Package dispatcher implements the per-connection request loop: reading
// framed, encrypted requests, dispatching them to operation handlers, and
// writing framed, encrypted replies (spec §4.4). It is the adaptation of
// the teacher's internal/server package (listener/accept/dispatch loop,
// per-connection lifecycle) to Talk2Me's synchronous request/response wire
// protocol — see DESIGN.md.
package dispatcher

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"talk2me/internal/codec"
	"talk2me/internal/config"
	"talk2me/internal/cryptoenv"
	"talk2me/internal/federation"
	"talk2me/internal/store"
)

// Server ties together the Store, the role-specific handler set, and (on a
// front server) a federation Client.
type Server struct {
	store   *store.Store
	cfg     config.Config
	role    config.Role
	baseKey cryptoenv.Key
	fed     *federation.Client // nil on chat servers

	listener net.Listener
	reaper   *reaper
}

// New builds a Server for cfg, backed by st. On a front server, fed must be
// non-nil; on a chat server it is ignored.
func New(cfg config.Config, st *store.Store, fed *federation.Client) (*Server, error) {
	key, err := cryptoenv.ParseKey(cfg.BaseKey)
	if err != nil {
		return nil, err
	}
	role := config.Role(cfg.Role)
	s := &Server{
		store:   st,
		cfg:     cfg,
		role:    role,
		baseKey: key,
		reaper:  newReaper(cfg.MaxThreads),
	}
	if role == config.RoleFront {
		s.fed = fed
	}
	return s, nil
}

// ListenAndServe accepts connections on addr until the listener is closed.
// The accept call has a short deadline so the loop can periodically reap
// finished handlers and log the live count against the soft cap.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	tcpLn, _ := ln.(*net.TCPListener)

	log.Info().Str("addr", addr).Str("role", string(s.role)).Msg("talk2me listening")

	acceptTimeout := time.Duration(s.cfg.AcceptTimeout) * time.Second
	for {
		if tcpLn != nil {
			tcpLn.SetDeadline(time.Now().Add(acceptTimeout))
		}
		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.reaper.reap()
				continue
			}
			// Listener closed by Shutdown.
			return nil
		}
		s.reaper.spawn(func() { s.handleConn(conn) })
	}
}

// Shutdown closes the listener so ListenAndServe returns.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.store.Close()
}

// handleConn runs the read-decrypt-dispatch-encrypt-write loop for one
// connection until it disconnects or a protocol error occurs.
func (s *Server) handleConn(conn net.Conn) {
	connID := uuid.NewString()
	log.Debug().Str("conn_id", connID).Str("remote", conn.RemoteAddr().String()).Msg("connection opened")

	activeKey := s.baseKey
	var sessionToken string
	var openedTokens []string // every session a login opened on this connection

	defer func() {
		for _, t := range openedTokens {
			s.store.CloseSession(t)
		}
		conn.Close()
		log.Debug().Str("conn_id", connID).Msg("connection closed")
	}()

	fconn := codec.NewConn(conn)
	for {
		frame, err := fconn.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Str("conn_id", connID).Err(err).Msg("frame read error")
			}
			return
		}

		t0 := time.Now()
		plaintext, err := cryptoenv.Decrypt(activeKey, frame)
		if err != nil {
			log.Warn().Str("conn_id", connID).Err(err).Msg("decrypt failed, closing connection")
			return
		}

		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(plaintext, &envelope); err != nil {
			log.Warn().Str("conn_id", connID).Err(err).Msg("malformed json, closing connection")
			return
		}
		if config.LoggingEnabled() {
			log.Debug().Str("conn_id", connID).RawJSON("request", plaintext).Msg("request")
		}

		var reply *Reply
		var newKey *cryptoenv.Key

		if _, ok := envelope["server_operation"]; ok {
			reply = s.dispatchFederation(plaintext)
		} else {
			var token string
			reply, newKey, token = s.dispatchOperation(plaintext, sessionToken)
			if token != sessionToken {
				openedTokens = append(openedTokens, token)
				sessionToken = token
			}
		}

		replyBytes, err := json.Marshal(reply)
		if err != nil {
			log.Error().Str("conn_id", connID).Err(err).Msg("marshal reply failed, closing connection")
			return
		}

		if config.LoggingEnabled() {
			log.Debug().Str("conn_id", connID).RawJSON("reply", replyBytes).Msg("reply")
		}
		if err := fconn.WriteJSON(activeKey, replyBytes); err != nil {
			log.Debug().Str("conn_id", connID).Err(err).Msg("frame write error")
			return
		}
		if newKey != nil {
			activeKey = *newKey
		}

		s.store.UpdateLatency(time.Since(t0))
		s.store.Backup()
	}
}
