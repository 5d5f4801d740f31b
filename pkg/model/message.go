package model

import (
	"strconv"
	"strings"
)

// Message is one code appended to the store by a sender.
type Message struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	HasCode   bool   `json:"has_code"`
	Timestamp int64  `json:"timestamp"`
	Time      string `json:"time,omitempty"`
	NodeID    string `json:"node_id"`
}

// Key is the recent-history identity of a message. Two messages with the
// same code and source timestamp are the same delivery, whatever their id.
func (m Message) Key() string {
	return m.Code + "_" + strconv.FormatInt(m.Timestamp, 10)
}

// Blank reports whether the message carries no displayable code.
func (m Message) Blank() bool {
	return strings.TrimSpace(m.Code) == ""
}

type PollResponse struct {
	Messages []Message `json:"messages"`
	LastID   int64     `json:"last_id"`
}

type AppendRequest struct {
	Code      string `json:"code"`
	Timestamp int64  `json:"timestamp"`
	NodeID    string `json:"node_id"`
}

type AppendResponse struct {
	Success   bool   `json:"success"`
	MessageID int64  `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type ClearResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
