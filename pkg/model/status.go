package model

import "time"

type AdvisoryInfo struct {
	Reason   string    `json:"reason"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raised_at"`
}

// TerminalStatus is what a terminal reports on its control API.
type TerminalStatus struct {
	State       string          `json:"state"`
	Session     *DisplaySession `json:"session,omitempty"`
	Queue       []string        `json:"queue"`
	Screensaver bool            `json:"screensaver"`
	Watermark   int64           `json:"watermark"`
	Failures    int             `json:"poll_failures"`
	Advisory    *AdvisoryInfo   `json:"advisory,omitempty"`
	Health      HealthSummary   `json:"health"`
	Settings    Settings        `json:"settings"`
}
