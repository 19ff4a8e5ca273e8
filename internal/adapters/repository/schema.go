package repository

import (
	"fmt"
	"strings"
)

// table describes one upsert target: its columns in argument order and the
// natural key columns used as the conflict target.
type table struct {
	name     string
	columns  []string
	conflict []string
}

var (
	leaderboardTable = table{
		name: "leaderboard_entries",
		columns: []string{
			"puuid", "league_points", "wins", "losses",
			"is_veteran", "is_hot_streak", "collected_at",
		},
		conflict: []string{"puuid"},
	}

	matchesTable = table{
		name: "matches",
		columns: []string{
			"match_id", "data_version", "game_creation", "game_duration",
			"game_mode", "game_type", "game_version", "queue_id", "map_id",
			"platform_id", "game_end_timestamp", "participants_count",
			"teams_data", "collected_at",
		},
		conflict: []string{"match_id"},
	}

	participantsTable = table{
		name: "match_participants",
		columns: []string{
			"match_id", "puuid", "participant_id", "summoner_name",
			"riot_id_game_name", "riot_id_tagline", "summoner_level",
			"champion_id", "champion_name", "champion_level", "win", "team_id",
			"team_position", "individual_position", "kills", "deaths", "assists",
			"total_minions_killed", "neutral_minions_killed", "gold_earned",
			"total_damage_dealt_to_champions", "vision_score",
			"item0", "item1", "item2", "item3", "item4", "item5", "item6",
			"summoner1_id", "summoner2_id", "placement", "subteam_placement",
			"detailed_stats", "game_creation", "collected_at",
		},
		conflict: []string{"match_id", "puuid"},
	}
)

// upsertSQL renders a parameterized INSERT that overwrites every non-key
// column on conflict.
func (t table) upsertSQL() string {
	keys := make(map[string]struct{}, len(t.conflict))
	for _, c := range t.conflict {
		keys[c] = struct{}{}
	}

	params := make([]string, len(t.columns))
	sets := make([]string, 0, len(t.columns))
	for i, c := range t.columns {
		params[i] = fmt.Sprintf("$%d", i+1)
		if _, ok := keys[c]; !ok {
			sets = append(sets, c+" = EXCLUDED."+c)
		}
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		t.name,
		strings.Join(t.columns, ", "),
		strings.Join(params, ", "),
		strings.Join(t.conflict, ", "),
		strings.Join(sets, ", "))
}

// Matches and participants are not natively partitioned: a partitioned
// table's primary key must include the partition column, which would break
// the natural-key upsert. BRIN indexes on game_creation give the same date
// locality for range scans.
var bootstrapDDL = []string{
	`CREATE TABLE IF NOT EXISTS leaderboard_entries (
		puuid          TEXT PRIMARY KEY,
		league_points  INTEGER NOT NULL,
		wins           INTEGER NOT NULL,
		losses         INTEGER NOT NULL,
		is_veteran     BOOLEAN NOT NULL,
		is_hot_streak  BOOLEAN NOT NULL,
		collected_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		match_id            TEXT PRIMARY KEY,
		data_version        TEXT NOT NULL,
		game_creation       TIMESTAMPTZ NOT NULL,
		game_duration       BIGINT NOT NULL,
		game_mode           TEXT NOT NULL,
		game_type           TEXT NOT NULL,
		game_version        TEXT NOT NULL,
		queue_id            INTEGER NOT NULL,
		map_id              INTEGER NOT NULL,
		platform_id         TEXT NOT NULL,
		game_end_timestamp  TIMESTAMPTZ,
		participants_count  INTEGER NOT NULL,
		teams_data          JSONB NOT NULL,
		collected_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS matches_game_creation_brin ON matches USING BRIN (game_creation)`,
	`CREATE INDEX IF NOT EXISTS matches_queue_mode_idx ON matches (queue_id, game_mode)`,
	`CREATE TABLE IF NOT EXISTS match_participants (
		match_id                         TEXT NOT NULL REFERENCES matches (match_id),
		puuid                            TEXT NOT NULL,
		participant_id                   INTEGER NOT NULL,
		summoner_name                    TEXT NOT NULL,
		riot_id_game_name                TEXT NOT NULL,
		riot_id_tagline                  TEXT NOT NULL,
		summoner_level                   INTEGER NOT NULL,
		champion_id                      INTEGER NOT NULL,
		champion_name                    TEXT NOT NULL,
		champion_level                   INTEGER NOT NULL,
		win                              BOOLEAN NOT NULL,
		team_id                          INTEGER NOT NULL,
		team_position                    TEXT NOT NULL,
		individual_position              TEXT NOT NULL,
		kills                            INTEGER NOT NULL,
		deaths                           INTEGER NOT NULL,
		assists                          INTEGER NOT NULL,
		total_minions_killed             INTEGER NOT NULL,
		neutral_minions_killed           INTEGER NOT NULL,
		gold_earned                      INTEGER NOT NULL,
		total_damage_dealt_to_champions  INTEGER NOT NULL,
		vision_score                     INTEGER NOT NULL,
		item0                            INTEGER NOT NULL,
		item1                            INTEGER NOT NULL,
		item2                            INTEGER NOT NULL,
		item3                            INTEGER NOT NULL,
		item4                            INTEGER NOT NULL,
		item5                            INTEGER NOT NULL,
		item6                            INTEGER NOT NULL,
		summoner1_id                     INTEGER NOT NULL,
		summoner2_id                     INTEGER NOT NULL,
		placement                        INTEGER,
		subteam_placement                INTEGER,
		detailed_stats                   JSONB NOT NULL,
		game_creation                    TIMESTAMPTZ NOT NULL,
		collected_at                     TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (match_id, puuid)
	)`,
	`CREATE INDEX IF NOT EXISTS match_participants_game_creation_brin ON match_participants USING BRIN (game_creation)`,
	`CREATE INDEX IF NOT EXISTS match_participants_champion_idx ON match_participants (champion_id, team_position, win)`,
	`CREATE INDEX IF NOT EXISTS match_participants_puuid_idx ON match_participants (puuid)`,
}

// countSQL maps an entity to the statement counting its rows for a key set.
var countSQL = map[Entity]string{
	EntityLeaderboard:  `SELECT COUNT(*) FROM leaderboard_entries WHERE puuid = ANY($1)`,
	EntityMatches:      `SELECT COUNT(*) FROM matches WHERE match_id = ANY($1)`,
	EntityParticipants: `SELECT COUNT(*) FROM match_participants WHERE match_id = ANY($1)`,
}
