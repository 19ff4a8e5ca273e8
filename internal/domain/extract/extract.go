package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/harvest/internal/domain/model"
)

// Unknown replaces required strings the payload left empty.
const Unknown = "UNKNOWN"

// Payloads without gameEndTimestamp report gameDuration in milliseconds.
const msPerSecond = 1000

var (
	emptyArray  = json.RawMessage(`[]`)
	emptyObject = json.RawMessage(`{}`)
)

// Result is one match worth of records.
type Result struct {
	Match        model.MatchSummary
	Participants []model.ParticipantRecord
	// Dropped counts participants discarded for lacking an identity or
	// repeating one already extracted.
	Dropped int
}

// Match extracts a MatchSummary and its ParticipantRecords. requestedID is
// used when the payload omits its own match id.
func Match(requestedID string, p *Payload, collectedAt time.Time) (Result, error) {
	if p == nil {
		return Result{}, fmt.Errorf("extract %s: nil payload", requestedID)
	}

	matchID := p.Metadata.MatchID
	if matchID == "" {
		matchID = requestedID
	}
	if matchID == "" {
		return Result{}, fmt.Errorf("extract: %w", model.ErrEmptyKey)
	}

	created := time.UnixMilli(p.Info.GameCreation).UTC()
	summary := model.MatchSummary{
		MatchID:      matchID,
		DataVersion:  orUnknown(p.Metadata.DataVersion),
		GameCreation: created,
		GameDuration: p.Info.GameDuration,
		GameMode:     orUnknown(p.Info.GameMode),
		GameType:     orUnknown(p.Info.GameType),
		GameVersion:  orUnknown(p.Info.GameVersion),
		QueueID:      p.Info.QueueID,
		MapID:        p.Info.MapID,
		PlatformID:   orUnknown(p.Info.PlatformID),
		Teams:        rawOr(p.Info.Teams, emptyArray),
		CollectedAt:  collectedAt,
	}
	if ts := p.Info.GameEndTimestamp; ts != nil && *ts > 0 {
		end := time.UnixMilli(*ts).UTC()
		summary.GameEndTimestamp = &end
	} else {
		summary.GameDuration /= msPerSecond
	}

	summary.ParticipantsCount = len(p.Info.Participants)
	if summary.ParticipantsCount == 0 {
		summary.ParticipantsCount = len(p.Metadata.Participants)
	}

	res := Result{Match: summary}
	seen := make(map[string]struct{}, len(p.Info.Participants))
	for i, raw := range p.Info.Participants {
		rec, err := participantRecord(raw, summary, collectedAt)
		if err != nil {
			return Result{}, fmt.Errorf("extract %s participant %d: %w", matchID, i, err)
		}
		if rec.PUUID == "" && i < len(p.Metadata.Participants) {
			rec.PUUID = p.Metadata.Participants[i]
		}
		if rec.PUUID == "" {
			res.Dropped++
			continue
		}
		if _, dup := seen[rec.PUUID]; dup {
			res.Dropped++
			continue
		}
		seen[rec.PUUID] = struct{}{}
		if rec.ParticipantID == 0 {
			rec.ParticipantID = i + 1
		}
		res.Participants = append(res.Participants, rec)
	}
	return res, nil
}

func participantRecord(raw json.RawMessage, m model.MatchSummary, collectedAt time.Time) (model.ParticipantRecord, error) {
	var pt participant
	if err := json.Unmarshal(raw, &pt); err != nil {
		return model.ParticipantRecord{}, err
	}

	var rest map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rest); err != nil {
		return model.ParticipantRecord{}, err
	}
	for _, k := range extractedKeys {
		delete(rest, k)
	}
	detailed := emptyObject
	if len(rest) > 0 {
		b, err := json.Marshal(rest)
		if err != nil {
			return model.ParticipantRecord{}, err
		}
		detailed = b
	}

	return model.ParticipantRecord{
		MatchID:                     m.MatchID,
		PUUID:                       pt.PUUID,
		ParticipantID:               pt.ParticipantID,
		SummonerName:                pt.SummonerName,
		RiotIDGameName:              pt.RiotIDGameName,
		RiotIDTagline:               pt.RiotIDTagline,
		SummonerLevel:               pt.SummonerLevel,
		ChampionID:                  pt.ChampionID,
		ChampionName:                orUnknown(pt.ChampionName),
		ChampionLevel:               pt.ChampLevel,
		Win:                         pt.Win,
		TeamID:                      pt.TeamID,
		TeamPosition:                orUnknown(pt.TeamPosition),
		IndividualPosition:          orUnknown(pt.IndividualPosition),
		Kills:                       pt.Kills,
		Deaths:                      pt.Deaths,
		Assists:                     pt.Assists,
		TotalMinionsKilled:          pt.TotalMinionsKilled,
		NeutralMinionsKilled:        pt.NeutralMinionsKilled,
		GoldEarned:                  pt.GoldEarned,
		TotalDamageDealtToChampions: pt.TotalDamageDealtToChampions,
		VisionScore:                 pt.VisionScore,
		Items:                       [model.ItemSlots]int{pt.Item0, pt.Item1, pt.Item2, pt.Item3, pt.Item4, pt.Item5, pt.Item6},
		Summoner1ID:                 pt.Summoner1ID,
		Summoner2ID:                 pt.Summoner2ID,
		Placement:                   pt.Placement,
		SubteamPlacement:            pt.SubteamPlacement,
		DetailedStats:               detailed,
		GameCreation:                m.GameCreation,
		CollectedAt:                 collectedAt,
	}, nil
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

func rawOr(raw, fallback json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fallback
	}
	return raw
}
