package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"talk2me/internal/domain"
)

// snapshotDTO is the on-disk schema for a Store snapshot: an explicit JSON
// document owned by this project, rather than a language-coupled
// serialization of the in-memory types (spec §9). It carries exactly the
// seven fields spec §4.2 names.
type snapshotDTO struct {
	Users      []userDTO          `json:"users"`
	Chats      []chatDTO          `json:"chats"`
	Sessions   map[string]string  `json:"sessions"`
	ChatHome   map[string]string  `json:"chat_home"`
	Load       map[string]int     `json:"load"`
	ReqCount   uint64             `json:"req_count"`
	AvgLatency float64            `json:"avg_latency"`
}

type userDTO struct {
	Username       string `json:"username"`
	PasswordDigest string `json:"password_digest"`
}

type chatDTO struct {
	Name    string                 `json:"name"`
	Members []string               `json:"members"`
	History []messageDTO           `json:"history"`
	Unseen  map[string][]messageDTO `json:"unseen"`
}

type messageDTO struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"` // RFC3339, for exact round-tripping
}

// toDTO copies the current state into a snapshotDTO. Callers must already
// hold s.mu.
func (s *Store) toDTO() snapshotDTO {
	dto := snapshotDTO{
		Sessions:   make(map[string]string, len(s.sessions)),
		ChatHome:   make(map[string]string, len(s.chatHome)),
		Load:       make(map[string]int, len(s.load)),
		ReqCount:   s.reqCount,
		AvgLatency: s.avgLatency,
	}
	for _, u := range s.users {
		dto.Users = append(dto.Users, userDTO{Username: u.Username, PasswordDigest: u.PasswordDigest})
	}
	for _, c := range s.chats {
		cd := chatDTO{
			Name:   c.Name,
			Unseen: make(map[string][]messageDTO, len(c.Unseen)),
		}
		for m := range c.Members {
			cd.Members = append(cd.Members, m)
		}
		for _, m := range c.History {
			cd.History = append(cd.History, messageDTOFrom(m))
		}
		for user, msgs := range c.Unseen {
			wire := make([]messageDTO, len(msgs))
			for i, m := range msgs {
				wire[i] = messageDTOFrom(m)
			}
			cd.Unseen[user] = wire
		}
		dto.Chats = append(dto.Chats, cd)
	}
	for token, username := range s.sessions {
		dto.Sessions[token] = username
	}
	for name, addr := range s.chatHome {
		dto.ChatHome[name] = addr
	}
	for addr, n := range s.load {
		dto.Load[addr] = n
	}
	return dto
}

func messageDTOFrom(m domain.Message) messageDTO {
	return messageDTO{Sender: m.Sender, Text: m.Text, CreatedAt: m.CreatedAt.Format(rfc3339Nano)}
}

// restore replaces s's in-memory state with dto's contents. Callers must
// already hold s.mu, or call this before s is shared (as New does).
func (s *Store) restore(dto *snapshotDTO) {
	for _, u := range dto.Users {
		s.users[u.Username] = domain.User{Username: u.Username, PasswordDigest: u.PasswordDigest}
	}
	for _, cd := range dto.Chats {
		c := domain.NewChat(cd.Name)
		for _, m := range cd.Members {
			c.Members[m] = struct{}{}
		}
		for _, md := range cd.History {
			c.History = append(c.History, messageFromDTO(md))
		}
		for user, msgs := range cd.Unseen {
			wire := make([]domain.Message, len(msgs))
			for i, md := range msgs {
				wire[i] = messageFromDTO(md)
			}
			c.Unseen[user] = wire
		}
		s.chats[cd.Name] = c
	}
	for token, username := range dto.Sessions {
		s.sessions[token] = username
	}
	for name, addr := range dto.ChatHome {
		s.chatHome[name] = addr
	}
	for addr, n := range dto.Load {
		s.load[addr] = n
	}
	s.reqCount = dto.ReqCount
	s.avgLatency = dto.AvgLatency
}

func messageFromDTO(md messageDTO) domain.Message {
	t, err := parseTime(md.CreatedAt)
	if err != nil {
		t = zeroTime
	}
	return domain.NewMessage(md.Sender, md.Text, t)
}

// loadSnapshot reads and parses path, returning nil (not an error) if the
// file does not exist yet.
func loadSnapshot(path string) (*snapshotDTO, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dto snapshotDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

// writeSnapshot writes dto to path atomically: write to a temp file in the
// same directory, flush, then rename over the destination (spec §9's
// write-then-rename hardening of the original's in-place pickle write).
func writeSnapshot(path string, dto snapshotDTO) error {
	data, err := json.MarshalIndent(dto, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
