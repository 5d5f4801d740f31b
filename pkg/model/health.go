package model

import "time"

type EndpointStatus string

const (
	EndpointHealthy     EndpointStatus = "healthy"
	EndpointUnreachable EndpointStatus = "unreachable"
	EndpointUnhealthy   EndpointStatus = "unhealthy"
)

// NodeHealthRecord is the last known health of one probed endpoint.
type NodeHealthRecord struct {
	Endpoint            string         `json:"endpoint"`
	Status              EndpointStatus `json:"status"`
	LastCheckedAt       time.Time      `json:"last_checked_at"`
	ResponseTimeSeconds float64        `json:"response_time_seconds"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	NextCheckAt         time.Time      `json:"next_check_at"`
}

type ConnectionState string

const (
	ConnectionUnknown ConnectionState = "unknown"
	ConnectionHealthy ConnectionState = "healthy"
	ConnectionStale   ConnectionState = "stale"
	ConnectionError   ConnectionState = "error"
)

// KeepaliveResponse is what a peer answers on its liveness endpoint.
type KeepaliveResponse struct {
	Status string `json:"status"`
}

type HealthSummary struct {
	Healthy    int                `json:"healthy"`
	Total      int                `json:"total"`
	Connection ConnectionState    `json:"connection"`
	LastPollAt time.Time          `json:"last_poll_at"`
	Records    []NodeHealthRecord `json:"records"`
}
