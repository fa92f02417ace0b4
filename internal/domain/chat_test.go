package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatSendFansOutToUnseenExceptSender(t *testing.T) {
	c := NewChat("x")
	c.AddMember("alice")
	c.AddMember("bob")

	c.Send(NewMessage("alice", "hi", time.Now()))

	assert.Empty(t, c.Unseen["alice"])
	require.Len(t, c.Unseen["bob"], 1)
	assert.Equal(t, "hi", c.Unseen["bob"][0].Text)
	assert.Len(t, c.History, 1)
}

func TestChatTakeUnseenDrainsAndClears(t *testing.T) {
	c := NewChat("x")
	c.AddMember("alice")
	c.AddMember("bob")
	c.Send(NewMessage("alice", "hi", time.Now()))

	first := c.TakeUnseen("bob")
	require.Len(t, first, 1)

	second := c.TakeUnseen("bob")
	assert.Empty(t, second)
}

func TestChatRemoveMemberDropsUnseen(t *testing.T) {
	c := NewChat("x")
	c.AddMember("alice")
	c.RemoveMember("alice")

	assert.False(t, c.HasMember("alice"))
	_, ok := c.Unseen["alice"]
	assert.False(t, ok)
}
