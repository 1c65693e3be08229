package poster

import "time"

// ExecutionReport is the structured outcome of one channel run.
// String formatting for UI feedback is a presentation-layer concern.
type ExecutionReport struct {
	ChannelID     string     `json:"channel_id"`
	PostsCreated  int        `json:"posts_created"`
	SkippedReason SkipReason `json:"skipped_reason,omitempty"`
	Errors        []string   `json:"errors,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func (r ExecutionReport) attempted() bool { return r.SkippedReason == SkipNone }

// SweepReport summarizes one pass over all channels.
type SweepReport struct {
	Executed     int `json:"executed"`
	Skipped      int `json:"skipped"`
	PostsCreated int `json:"posts_created"`

	Reports []ExecutionReport `json:"reports,omitempty"`
}
