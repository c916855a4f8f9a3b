package entity

import "time"

// LevelDecision is one append-only history entry of an approval instance.
// A later decision for the same level marks earlier entries Superseded.
type LevelDecision struct {
	ID         int64     `json:"id"`
	InstanceID int64     `json:"instance_id"`
	Level      int       `json:"level"`
	ApproverID int64     `json:"approver_id"`
	Role       string    `json:"role,omitempty"`
	Decision   string    `json:"decision"`
	Comment    string    `json:"comment,omitempty"`
	Superseded bool      `json:"superseded"`
	DecidedAt  time.Time `json:"decided_at"`
}
