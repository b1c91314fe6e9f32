package registry

import "time"

// RunID is a stable, monotonically increasing identifier for recorded sweeps.
type RunID uint64

// Run is one recorded sweep. It is immutable outside registry methods.
type Run struct {
	ID         RunID     `json:"id"`
	Phase      string    `json:"phase"`
	WorkDir    string    `json:"work_dir"`
	Skipped    string    `json:"skipped,omitempty"`
	Services   []string  `json:"services,omitempty"`
	Candidates []int     `json:"candidates,omitempty"`
	Self       int       `json:"self"`
	Spared     []int     `json:"spared,omitempty"`
	Killed     []int     `json:"killed,omitempty"`
	Errors     []string  `json:"errors,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ListFilter narrows a history query.
type ListFilter struct {
	Phases  []string // include if the phase is ANY of these
	WorkDir string   // exact match, case-insensitive
	Limit   int      // newest N after filtering; <= 0 means all
}
