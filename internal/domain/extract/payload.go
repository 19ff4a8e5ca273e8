// Package extract turns upstream match payloads into harvested records.
package extract

import "encoding/json"

// Payload mirrors the match-detail document returned upstream. Participants
// stay raw so fields not extracted into columns survive in DetailedStats.
type Payload struct {
	Metadata Metadata `json:"metadata"`
	Info     Info     `json:"info"`
}

type Metadata struct {
	DataVersion  string   `json:"dataVersion"`
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"`
}

type Info struct {
	GameCreation     int64             `json:"gameCreation"`
	GameDuration     int64             `json:"gameDuration"`
	GameEndTimestamp *int64            `json:"gameEndTimestamp"`
	GameMode         string            `json:"gameMode"`
	GameType         string            `json:"gameType"`
	GameVersion      string            `json:"gameVersion"`
	QueueID          int               `json:"queueId"`
	MapID            int               `json:"mapId"`
	PlatformID       string            `json:"platformId"`
	Participants     []json.RawMessage `json:"participants"`
	Teams            json.RawMessage   `json:"teams"`
}

// participant lists the columns lifted out of each raw participant object.
type participant struct {
	PUUID                       string `json:"puuid"`
	ParticipantID               int    `json:"participantId"`
	SummonerName                string `json:"summonerName"`
	RiotIDGameName              string `json:"riotIdGameName"`
	RiotIDTagline               string `json:"riotIdTagline"`
	SummonerLevel               int    `json:"summonerLevel"`
	ChampionID                  int    `json:"championId"`
	ChampionName                string `json:"championName"`
	ChampLevel                  int    `json:"champLevel"`
	Win                         bool   `json:"win"`
	TeamID                      int    `json:"teamId"`
	TeamPosition                string `json:"teamPosition"`
	IndividualPosition          string `json:"individualPosition"`
	Kills                       int    `json:"kills"`
	Deaths                      int    `json:"deaths"`
	Assists                     int    `json:"assists"`
	TotalMinionsKilled          int    `json:"totalMinionsKilled"`
	NeutralMinionsKilled        int    `json:"neutralMinionsKilled"`
	GoldEarned                  int    `json:"goldEarned"`
	TotalDamageDealtToChampions int    `json:"totalDamageDealtToChampions"`
	VisionScore                 int    `json:"visionScore"`
	Item0                       int    `json:"item0"`
	Item1                       int    `json:"item1"`
	Item2                       int    `json:"item2"`
	Item3                       int    `json:"item3"`
	Item4                       int    `json:"item4"`
	Item5                       int    `json:"item5"`
	Item6                       int    `json:"item6"`
	Summoner1ID                 int    `json:"summoner1Id"`
	Summoner2ID                 int    `json:"summoner2Id"`
	Placement                   *int   `json:"placement"`
	SubteamPlacement            *int   `json:"subteamPlacement"`
}

// extractedKeys are removed from the raw object before it becomes DetailedStats.
var extractedKeys = []string{
	"puuid", "participantId", "summonerName", "riotIdGameName", "riotIdTagline",
	"summonerLevel", "championId", "championName", "champLevel", "win", "teamId",
	"teamPosition", "individualPosition", "kills", "deaths", "assists",
	"totalMinionsKilled", "neutralMinionsKilled", "goldEarned",
	"totalDamageDealtToChampions", "visionScore",
	"item0", "item1", "item2", "item3", "item4", "item5", "item6",
	"summoner1Id", "summoner2Id", "placement", "subteamPlacement",
}
