package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/harvest/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var collected = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func match(id string, duration int64) model.MatchSummary {
	return model.MatchSummary{
		MatchID:      id,
		GameCreation: collected.Add(-time.Hour),
		GameDuration: duration,
		GameMode:     "CLASSIC",
		Teams:        json.RawMessage(`[]`),
		CollectedAt:  collected,
	}
}

func participant(matchID, puuid string, id int) model.ParticipantRecord {
	return model.ParticipantRecord{
		MatchID:       matchID,
		PUUID:         puuid,
		ParticipantID: id,
		DetailedStats: json.RawMessage(`{}`),
		CollectedAt:   collected,
	}
}

func TestMemorySinkUpsert(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty memory sink", t, func() {
		s := NewMemorySink()

		Convey("When an empty batch is upserted", func() {
			n, err := s.UpsertLeaderboard(ctx, nil)
			m, merr := s.UpsertMatches(ctx, []model.MatchSummary{})

			Convey("Then nothing reaches storage", func() {
				So(err, ShouldBeNil)
				So(merr, ShouldBeNil)
				So(n, ShouldEqual, 0)
				So(m, ShouldEqual, 0)
				So(s.Calls(EntityLeaderboard), ShouldEqual, 0)
				So(s.Calls(EntityMatches), ShouldEqual, 0)
			})
		})

		Convey("When the same key is upserted twice with different values", func() {
			_, err := s.UpsertLeaderboard(ctx, []model.LeaderboardEntry{{PUUID: "p1", LeaguePoints: 900, CollectedAt: collected}})
			So(err, ShouldBeNil)
			n, err := s.UpsertLeaderboard(ctx, []model.LeaderboardEntry{{PUUID: "p1", LeaguePoints: 1200, Wins: 3, CollectedAt: collected}})

			Convey("Then one row holds the second values", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				So(s.Len(EntityLeaderboard), ShouldEqual, 1)
				rows := s.Leaderboard()
				So(rows[0].LeaguePoints, ShouldEqual, 1200)
				So(rows[0].Wins, ShouldEqual, 3)
				So(s.Calls(EntityLeaderboard), ShouldEqual, 2)
			})
		})

		Convey("When a match is harvested again in a later run", func() {
			_, _ = s.UpsertMatches(ctx, []model.MatchSummary{match("KR_1", 1800)})
			_, _ = s.UpsertMatches(ctx, []model.MatchSummary{match("KR_1", 1805)})

			Convey("Then it is refreshed, not duplicated", func() {
				So(s.MatchIDs(), ShouldResemble, []string{"KR_1"})
				m, ok := s.Match("KR_1")
				So(ok, ShouldBeTrue)
				So(m.GameDuration, ShouldEqual, 1805)
			})
		})

		Convey("When a batch repeats a key", func() {
			_, err := s.UpsertMatches(ctx, []model.MatchSummary{match("KR_1", 1), match("KR_2", 2), match("KR_1", 3)})

			Convey("Then the whole batch is rejected", func() {
				So(errors.Is(err, ErrInvalidBatch), ShouldBeTrue)
				So(s.Len(EntityMatches), ShouldEqual, 0)
				So(s.Calls(EntityMatches), ShouldEqual, 0)
			})
		})

		Convey("When a batch has an empty key", func() {
			_, err := s.UpsertParticipants(ctx, []model.ParticipantRecord{participant("KR_1", "", 1)})
			So(errors.Is(err, ErrInvalidBatch), ShouldBeTrue)
			So(errors.Is(err, model.ErrEmptyKey), ShouldBeTrue)
		})

		Convey("When participants reference a stored match", func() {
			_, _ = s.UpsertMatches(ctx, []model.MatchSummary{match("KR_1", 1)})
			n, err := s.UpsertParticipants(ctx, []model.ParticipantRecord{
				participant("KR_1", "b", 2),
				participant("KR_1", "a", 1),
			})

			Convey("Then they are stored by composite key", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				ps := s.Participants("KR_1")
				So(ps, ShouldHaveLength, 2)
				So(ps[0].PUUID, ShouldEqual, "a")
			})
		})

		Convey("When participants reference an unknown match", func() {
			_, err := s.UpsertParticipants(ctx, []model.ParticipantRecord{participant("KR_9", "a", 1)})

			Convey("Then the call fails as a persistence error", func() {
				So(errors.Is(err, ErrPersistence), ShouldBeTrue)
				So(s.Len(EntityParticipants), ShouldEqual, 0)
			})
		})
	})
}

func TestMemorySinkFailures(t *testing.T) {
	ctx := context.Background()

	Convey("Given a sink whose match writes fail", t, func() {
		s := NewMemorySink()
		cause := errors.New("disk full")
		s.SetFailure(EntityMatches, cause)

		_, lerr := s.UpsertLeaderboard(ctx, []model.LeaderboardEntry{{PUUID: "p1"}})
		_, merr := s.UpsertMatches(ctx, []model.MatchSummary{match("KR_1", 1)})

		Convey("Then earlier commits stay and the failure wraps the cause", func() {
			So(lerr, ShouldBeNil)
			So(errors.Is(merr, ErrPersistence), ShouldBeTrue)
			So(errors.Is(merr, cause), ShouldBeTrue)
			So(s.Len(EntityLeaderboard), ShouldEqual, 1)
			So(s.Len(EntityMatches), ShouldEqual, 0)
		})

		Convey("Then clearing the failure restores writes", func() {
			s.SetFailure(EntityMatches, nil)
			n, err := s.UpsertMatches(ctx, []model.MatchSummary{match("KR_1", 1)})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})
	})
}

func TestMemorySinkCountByKeys(t *testing.T) {
	ctx := context.Background()

	Convey("Given stored rows", t, func() {
		s := NewMemorySink()
		_, _ = s.UpsertLeaderboard(ctx, []model.LeaderboardEntry{{PUUID: "p1"}, {PUUID: "p2"}})
		_, _ = s.UpsertMatches(ctx, []model.MatchSummary{match("KR_1", 1), match("KR_2", 1)})
		_, _ = s.UpsertParticipants(ctx, []model.ParticipantRecord{
			participant("KR_1", "p1", 1), participant("KR_1", "p2", 2), participant("KR_2", "p1", 1),
		})

		Convey("Then counts cover only the requested keys", func() {
			n, err := s.CountByKeys(ctx, EntityLeaderboard, []string{"p1", "p9"})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			n, _ = s.CountByKeys(ctx, EntityMatches, []string{"KR_1", "KR_2"})
			So(n, ShouldEqual, 2)

			n, _ = s.CountByKeys(ctx, EntityParticipants, []string{"KR_1"})
			So(n, ShouldEqual, 2)

			_, err = s.CountByKeys(ctx, Entity("bogus"), []string{"x"})
			So(errors.Is(err, ErrPersistence), ShouldBeTrue)
		})
	})
}
