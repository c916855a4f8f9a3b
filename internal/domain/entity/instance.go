package entity

import (
	"sort"
	"time"
)

// ApprovalInstance is the runtime state of one approval-matrix execution for one request
type ApprovalInstance struct {
	ID             int64           `json:"id"`
	RequestID      int64           `json:"request_id"`
	RequestType    string          `json:"request_type"`
	CompanyID      int64           `json:"company_id"`
	SubmitterID    int64           `json:"submitter_id"`
	CurrentLevel   int             `json:"current_level"`
	TotalLevels    int             `json:"total_levels"`
	Status         string          `json:"status"`
	Version        int64           `json:"version"`
	History        []LevelDecision `json:"history,omitempty"`
	ExtraApprovers map[int][]int64 `json:"extra_approvers,omitempty"`
	SubmittedAt    time.Time       `json:"submitted_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsTerminal reports whether no further decision may change the instance
func (i *ApprovalInstance) IsTerminal() bool {
	return i.Status == ApprovalStatusApproved || i.Status == ApprovalStatusRejected
}

// IsPending reports whether the instance is waiting on a decision at CurrentLevel
func (i *ApprovalInstance) IsPending() bool {
	return i.Status == ApprovalStatusPending
}

// EffectiveDecisions returns the latest non-superseded decision per level, ordered by level
func (i *ApprovalInstance) EffectiveDecisions() []LevelDecision {
	byLevel := make(map[int]LevelDecision)
	for _, d := range i.History {
		if d.Superseded {
			continue
		}
		byLevel[d.Level] = d
	}

	result := make([]LevelDecision, 0, len(byLevel))
	for _, d := range byLevel {
		result = append(result, d)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].Level < result[b].Level })
	return result
}

// ApprovalLevelConfig lists who may approve one level: explicit users take priority over roles
type ApprovalLevelConfig struct {
	Level   int     `json:"level"`
	RoleIDs []int64 `json:"role_ids,omitempty"`
	UserIDs []int64 `json:"user_ids,omitempty"`
}

// ApprovalMatrix is a company's ordered approval chain for one request type
type ApprovalMatrix struct {
	CompanyID   int64                 `json:"company_id"`
	RequestType string                `json:"request_type"`
	Levels      []ApprovalLevelConfig `json:"levels"`
}

// LevelCount returns the number of configured levels
func (m *ApprovalMatrix) LevelCount() int {
	return len(m.Levels)
}

// Level returns the configuration for a 1-based level number
func (m *ApprovalMatrix) Level(n int) (ApprovalLevelConfig, bool) {
	for _, l := range m.Levels {
		if l.Level == n {
			return l, true
		}
	}
	return ApprovalLevelConfig{}, false
}
