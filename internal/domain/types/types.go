// Package types contains the run lifecycle types shared by the pipeline,
// the HTTP trigger and the monitors.
package types

import (
	"time"

	"github.com/okian/harvest/internal/domain/governor"
)

// State is a pipeline run stage or terminal state.
type State string

const (
	StateInit               State = "init"
	StateBootstrapStorage   State = "bootstrap_storage"
	StateCollectLeaderboard State = "collect_leaderboard"
	StatePersistLeaderboard State = "persist_leaderboard"
	StateWalkMatches        State = "walk_matches"
	StatePersistMatches     State = "persist_matches"
	StateVerify             State = "verify"
	StateDone               State = "done"
	StateAborted            State = "aborted"
)

var successor = map[State]State{
	StateInit:               StateBootstrapStorage,
	StateBootstrapStorage:   StateCollectLeaderboard,
	StateCollectLeaderboard: StatePersistLeaderboard,
	StatePersistLeaderboard: StateWalkMatches,
	StateWalkMatches:        StatePersistMatches,
	StatePersistMatches:     StateVerify,
	StateVerify:             StateDone,
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// Next returns the stage that follows s on success, or s itself when terminal.
func (s State) Next() State {
	if n, ok := successor[s]; ok {
		return n
	}
	return s
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	return to == StateAborted || successor[from] == to
}

// Counts aggregates what one run collected and wrote.
type Counts struct {
	LeaderboardEntries    int `json:"leaderboard_entries"`
	PlayersWalked         int `json:"players_walked"`
	PlayersFailed         int `json:"players_failed"`
	MatchIDsListed        int `json:"match_ids_listed"`
	DuplicateMatches      int `json:"duplicate_matches"`
	MatchesFetched        int `json:"matches_fetched"`
	MatchesNotFound       int `json:"matches_not_found"`
	MatchesFailed         int `json:"matches_failed"`
	ParticipantsExtracted int `json:"participants_extracted"`
	ParticipantsDropped   int `json:"participants_dropped"`

	LeaderboardRows int64 `json:"leaderboard_rows"`
	MatchRows       int64 `json:"match_rows"`
	ParticipantRows int64 `json:"participant_rows"`
}

// Skipped is the number of items a run gave up on without failing.
func (c Counts) Skipped() int {
	return c.PlayersFailed + c.MatchesNotFound + c.MatchesFailed
}

// Report summarizes one run.
type Report struct {
	RunID       string         `json:"run_id"`
	State       State          `json:"state"`
	FailedStage State          `json:"failed_stage,omitempty"`
	Error       string         `json:"error,omitempty"`
	Complete    bool           `json:"complete"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Duration    time.Duration  `json:"duration_ns"`
	Counts      Counts         `json:"counts"`
	Governor    governor.Stats `json:"governor"`
	Warnings    []string       `json:"warnings,omitempty"`
}

// Succeeded reports whether the run reached Done.
func (r Report) Succeeded() bool {
	return r.State == StateDone
}
