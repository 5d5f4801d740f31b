// Package store is the reference message store terminals poll. It keeps
// the most recent Retention messages; ids keep increasing across clears so
// a terminal's watermark never has to go backwards.
package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/balaji-balu/codeboard/pkg/model"
)

const Retention = 1000

const timeLayout = "2006-01-02 15:04:05"

var ErrBlankCode = errors.New("code is blank")

type Store interface {
	Append(ctx context.Context, code string, timestamp int64, nodeID string) (model.Message, error)
	Since(ctx context.Context, id int64) (model.PollResponse, error)
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	Close() error
}

// newMessage normalises an incoming code. timestamp is in seconds; zero
// means now.
func newMessage(id int64, code string, timestamp int64, nodeID string) (model.Message, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return model.Message{}, ErrBlankCode
	}
	if timestamp == 0 {
		timestamp = time.Now().Unix()
	}
	if nodeID == "" {
		nodeID = "unknown"
	}
	_, numErr := strconv.ParseFloat(code, 64)
	return model.Message{
		ID:        id,
		Code:      code,
		HasCode:   numErr == nil,
		Timestamp: timestamp,
		Time:      time.Unix(timestamp, 0).Format(timeLayout),
		NodeID:    nodeID,
	}, nil
}
