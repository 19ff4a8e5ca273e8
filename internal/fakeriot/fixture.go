package fakeriot

import (
	"fmt"
	"time"
)

// Player is one ladder entry served by the simulator.
type Player struct {
	PUUID        string `json:"puuid"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	Veteran      bool   `json:"veteran"`
	HotStreak    bool   `json:"hotStreak"`
}

type fixture struct {
	players []Player
	history map[string][]string
	// owners maps a match id to the ladder players who appear in it.
	owners map[string][]string
	order  map[string]int
	unique []string
}

// buildFixture lays out histories so player i starts where player i-1's
// history ends minus the overlap. Ids are listed most recent first.
func buildFixture(cfg Config) fixture {
	f := fixture{
		players: make([]Player, cfg.Players),
		history: make(map[string][]string, cfg.Players),
		owners:  make(map[string][]string),
		order:   make(map[string]int),
	}
	stride := cfg.MatchesPerPlayer - cfg.Overlap

	for i := range f.players {
		p := Player{
			PUUID:        fmt.Sprintf("puuid-%04d", i),
			LeaguePoints: 2000 - i*7,
			Wins:         200 + i%13,
			Losses:       150 + i%11,
			Veteran:      i%4 == 0,
			HotStreak:    i%5 == 1,
		}
		f.players[i] = p

		ids := make([]string, 0, cfg.MatchesPerPlayer)
		for j := cfg.MatchesPerPlayer - 1; j >= 0; j-- {
			n := i*stride + j
			id := fmt.Sprintf("%s_%d", cfg.Platform, firstMatchNumber+n)
			if _, ok := f.order[id]; !ok {
				f.order[id] = n
				f.unique = append(f.unique, id)
			}
			f.owners[id] = append(f.owners[id], p.PUUID)
			ids = append(ids, id)
		}
		f.history[p.PUUID] = ids
	}
	return f
}

type matchDoc struct {
	Metadata struct {
		DataVersion  string   `json:"dataVersion"`
		MatchID      string   `json:"matchId"`
		Participants []string `json:"participants"`
	} `json:"metadata"`
	Info struct {
		GameCreation     int64            `json:"gameCreation"`
		GameDuration     int64            `json:"gameDuration"`
		GameEndTimestamp int64            `json:"gameEndTimestamp"`
		GameMode         string           `json:"gameMode"`
		GameType         string           `json:"gameType"`
		GameVersion      string           `json:"gameVersion"`
		QueueID          int              `json:"queueId"`
		MapID            int              `json:"mapId"`
		PlatformID       string           `json:"platformId"`
		Participants     []map[string]any `json:"participants"`
		Teams            []map[string]any `json:"teams"`
	} `json:"info"`
}

var positions = []string{"TOP", "JUNGLE", "MIDDLE", "BOTTOM", "UTILITY"}

func (f fixture) match(cfg Config, id string) matchDoc {
	n := f.order[id]
	created := cfg.Epoch.Add(time.Duration(n) * 40 * time.Minute)
	duration := int64(1500 + n%900)

	var d matchDoc
	d.Metadata.DataVersion = "2"
	d.Metadata.MatchID = id
	d.Info.GameCreation = created.UnixMilli()
	d.Info.GameDuration = duration
	d.Info.GameEndTimestamp = created.Add(time.Duration(duration) * time.Second).UnixMilli()
	d.Info.GameMode = "CLASSIC"
	d.Info.GameType = "MATCHED_GAME"
	d.Info.GameVersion = "15.1.640.1234"
	d.Info.QueueID = 420
	d.Info.MapID = 11
	d.Info.PlatformID = cfg.Platform + "1"

	puuids := append([]string(nil), f.owners[id]...)
	for k := len(puuids); k < participantsPerMatch; k++ {
		puuids = append(puuids, fmt.Sprintf("filler-%d-%d", n, k))
	}
	d.Metadata.Participants = puuids

	blueWins := n%2 == 0
	for k, puuid := range puuids {
		team := 100
		if k >= participantsPerMatch/2 {
			team = 200
		}
		pos := positions[k%len(positions)]
		d.Info.Participants = append(d.Info.Participants, map[string]any{
			"puuid":                       puuid,
			"participantId":               k + 1,
			"summonerName":                "summoner" + puuid,
			"riotIdGameName":              puuid,
			"riotIdTagline":               cfg.Platform,
			"summonerLevel":               300 + k,
			"championId":                  1 + (n*7+k*13)%160,
			"championName":                fmt.Sprintf("Champion%d", 1+(n*7+k*13)%160),
			"champLevel":                  13 + k%6,
			"win":                         (team == 100) == blueWins,
			"teamId":                      team,
			"teamPosition":                pos,
			"individualPosition":          pos,
			"kills":                       (n + k) % 15,
			"deaths":                      (n + 2*k) % 11,
			"assists":                     (n + 3*k) % 20,
			"totalMinionsKilled":          120 + (n*k)%140,
			"neutralMinionsKilled":        (n + k) % 60,
			"goldEarned":                  9000 + (n*31+k*97)%6000,
			"totalDamageDealtToChampions": 12000 + (n*53+k*71)%20000,
			"visionScore":                 10 + (n+k)%50,
			"item0":                       3000 + k,
			"item1":                       3100 + k,
			"item2":                       3200 + k,
			"item3":                       0,
			"item4":                       0,
			"item5":                       0,
			"item6":                       3340,
			"summoner1Id":                 4,
			"summoner2Id":                 14,
			"doubleKills":                 k % 3,
			"firstBloodKill":              k == 0,
		})
	}
	d.Info.Teams = []map[string]any{
		{"teamId": 100, "win": blueWins},
		{"teamId": 200, "win": !blueWins},
	}
	return d
}
