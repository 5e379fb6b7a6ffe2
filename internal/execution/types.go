package execution

import (
	"fmt"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/pokt-rotate/internal/errors"
	"github.com/ggonzalez94/pokt-rotate/internal/pokt/signer"
)

type ActionKind string

const (
	ActionStake    ActionKind = "stake"
	ActionUnstake  ActionKind = "unstake"
	ActionTransfer ActionKind = "transfer"
)

func ParseActionKind(v string) (ActionKind, error) {
	switch kind := ActionKind(strings.ToLower(strings.TrimSpace(v))); kind {
	case ActionStake, ActionUnstake, ActionTransfer:
		return kind, nil
	default:
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported action %q (expected stake|unstake|transfer)", v))
	}
}

// Paired reports whether the action takes a source and a destination key.
func (k ActionKind) Paired() bool { return k == ActionTransfer }

// Item is one unit of work: a key, plus the destination key for transfers.
type Item struct {
	Key    signer.PrivateKey
	NewKey signer.PrivateKey
}

type Job struct {
	Kind  ActionKind
	Items []Item
}

func NewJob(kind ActionKind, keys []signer.PrivateKey) Job {
	items := make([]Item, 0, len(keys))
	for _, k := range keys {
		items = append(items, Item{Key: k})
	}
	return Job{Kind: kind, Items: items}
}

// NewTransferJob pairs old and new keys by position.
func NewTransferJob(oldKeys, newKeys []signer.PrivateKey) (Job, error) {
	if len(oldKeys) != len(newKeys) {
		return Job{}, clierr.New(clierr.CodeCountMismatch, fmt.Sprintf("%d old app stakes does not match the replacement of %d new app stakes", len(oldKeys), len(newKeys)))
	}
	items := make([]Item, 0, len(oldKeys))
	for i := range oldKeys {
		items = append(items, Item{Key: oldKeys[i], NewKey: newKeys[i]})
	}
	return Job{Kind: ActionTransfer, Items: items}, nil
}

// Outcome is the settled result for one item. Response carries the
// transaction hash on success and the error text on failure.
type Outcome struct {
	Action     ActionKind `json:"action"`
	Address    string     `json:"address"`
	NewAddress string     `json:"new_address,omitempty"`
	Response   string     `json:"response"`
	Success    bool       `json:"success"`
}

type Report struct {
	RunID      string     `json:"run_id"`
	Action     ActionKind `json:"action"`
	ChainID    string     `json:"chain_id,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Chunks     int        `json:"chunks"`
	Outcomes   []Outcome  `json:"outcomes"`
}

// Success is the run verdict: no outcome failed.
func (r Report) Success() bool {
	return r.Failed() == 0
}

func (r Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Success {
			n++
		}
	}
	return n
}
