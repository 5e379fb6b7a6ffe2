package model

import "time"

const EnvelopeVersion = "v1"

// Envelope wraps every non-interactive command result.
type Envelope struct {
	Version string       `json:"version"`
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorBody   `json:"error"`
	Meta    EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	ChainID   string    `json:"chain_id,omitempty"`
	Partial   bool      `json:"partial"`
}

// RunSummary is the printed result of a stake, unstake or transfer run.
type RunSummary struct {
	RunID      string `json:"run_id"`
	Action     string `json:"action"`
	Total      int    `json:"total"`
	Failed     int    `json:"failed"`
	Chunks     int    `json:"chunks"`
	ReportPath string `json:"report_path"`
}

// Verification is the staking status of one new app.
type Verification struct {
	Address string `json:"address"`
	Staked  bool   `json:"staked"`
	Status  int    `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

type VerificationSummary struct {
	Total         int            `json:"total"`
	Staked        int            `json:"staked"`
	FullyVerified bool           `json:"fully_verified"`
	Apps          []Verification `json:"apps"`
}

type GeneratedKeys struct {
	Count int    `json:"count"`
	Path  string `json:"path"`
}
