// Package model contains the harvested entities passed between layers.
package model

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrEmptyKey is returned by Validate when a natural key is missing.
var ErrEmptyKey = errors.New("empty natural key")

// ItemSlots is the number of inventory slots on a participant.
const ItemSlots = 7

// LeaderboardEntry is one player's ladder standing at collection time.
type LeaderboardEntry struct {
	PUUID        string    `json:"puuid"`
	LeaguePoints int       `json:"league_points"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	Veteran      bool      `json:"is_veteran"`
	HotStreak    bool      `json:"is_hot_streak"`
	CollectedAt  time.Time `json:"collected_at"`
}

func (e LeaderboardEntry) Key() string { return e.PUUID }

func (e LeaderboardEntry) Validate() error {
	if e.PUUID == "" {
		return ErrEmptyKey
	}
	return nil
}

// MatchSummary is the match-level record of one played game.
type MatchSummary struct {
	MatchID           string          `json:"match_id"`
	DataVersion       string          `json:"data_version"`
	GameCreation      time.Time       `json:"game_creation"`
	GameDuration      int64           `json:"game_duration"`
	GameMode          string          `json:"game_mode"`
	GameType          string          `json:"game_type"`
	GameVersion       string          `json:"game_version"`
	QueueID           int             `json:"queue_id"`
	MapID             int             `json:"map_id"`
	PlatformID        string          `json:"platform_id"`
	GameEndTimestamp  *time.Time      `json:"game_end_timestamp,omitempty"`
	ParticipantsCount int             `json:"participants_count"`
	Teams             json.RawMessage `json:"teams_data"`
	CollectedAt       time.Time       `json:"collected_at"`
}

func (m MatchSummary) Key() string { return m.MatchID }

func (m MatchSummary) Validate() error {
	if m.MatchID == "" {
		return ErrEmptyKey
	}
	return nil
}

// ParticipantKey is the composite natural key of a ParticipantRecord.
type ParticipantKey struct {
	MatchID string
	PUUID   string
}

// ParticipantRecord is one player's line in one match.
type ParticipantRecord struct {
	MatchID                     string          `json:"match_id"`
	PUUID                       string          `json:"puuid"`
	ParticipantID               int             `json:"participant_id"`
	SummonerName                string          `json:"summoner_name"`
	RiotIDGameName              string          `json:"riot_id_game_name"`
	RiotIDTagline               string          `json:"riot_id_tagline"`
	SummonerLevel               int             `json:"summoner_level"`
	ChampionID                  int             `json:"champion_id"`
	ChampionName                string          `json:"champion_name"`
	ChampionLevel               int             `json:"champion_level"`
	Win                         bool            `json:"win"`
	TeamID                      int             `json:"team_id"`
	TeamPosition                string          `json:"team_position"`
	IndividualPosition          string          `json:"individual_position"`
	Kills                       int             `json:"kills"`
	Deaths                      int             `json:"deaths"`
	Assists                     int             `json:"assists"`
	TotalMinionsKilled          int             `json:"total_minions_killed"`
	NeutralMinionsKilled        int             `json:"neutral_minions_killed"`
	GoldEarned                  int             `json:"gold_earned"`
	TotalDamageDealtToChampions int             `json:"total_damage_dealt_to_champions"`
	VisionScore                 int             `json:"vision_score"`
	Items                       [ItemSlots]int  `json:"items"`
	Summoner1ID                 int             `json:"summoner1_id"`
	Summoner2ID                 int             `json:"summoner2_id"`
	Placement                   *int            `json:"placement,omitempty"`
	SubteamPlacement            *int            `json:"subteam_placement,omitempty"`
	DetailedStats               json.RawMessage `json:"detailed_stats"`
	GameCreation                time.Time       `json:"game_creation"`
	CollectedAt                 time.Time       `json:"collected_at"`
}

func (p ParticipantRecord) Key() ParticipantKey {
	return ParticipantKey{MatchID: p.MatchID, PUUID: p.PUUID}
}

func (p ParticipantRecord) Validate() error {
	if p.MatchID == "" || p.PUUID == "" {
		return ErrEmptyKey
	}
	return nil
}

// PlayerJob is one leaderboard player scheduled for a match walk.
type PlayerJob struct {
	Rank  int
	PUUID string
}
