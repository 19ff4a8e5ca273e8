package service_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/harvest/internal/adapters/repository"
	"github.com/okian/harvest/internal/adapters/riot"
	service "github.com/okian/harvest/internal/app"
	"github.com/okian/harvest/internal/domain/governor"
	"github.com/okian/harvest/internal/domain/types"
	"github.com/okian/harvest/internal/fakeriot"
)

func TestPipelineAgainstSimulatedUpstream(t *testing.T) {
	Convey("Given a simulated upstream that throttles and lost one match", t, func() {
		fake := fakeriot.New(fakeriot.Config{
			APIKey:           "RGAPI-e2e",
			Players:          6,
			MatchesPerPlayer: 3,
			Overlap:          1,
			ThrottleEvery:    7,
			Missing:          []string{"KR_7000000004"},
		})
		srv := httptest.NewServer(fake.Handler())
		defer srv.Close()

		g := governor.New(
			governor.WithInitialDelay(time.Millisecond),
			governor.WithMinDelay(time.Millisecond),
			governor.WithMaxDelay(5*time.Millisecond),
		)
		client := riot.New("RGAPI-e2e", g,
			riot.WithPlatformURL(srv.URL),
			riot.WithRegionalURL(srv.URL),
			riot.WithTimeout(2*time.Second))
		sink := repository.NewMemorySink()

		svc := service.New(client, sink,
			service.WithGovernor(g),
			service.WithMatchesPerPlayer(3),
			service.WithWorkerCount(3),
			service.WithMinLeaderboardCount(0))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		report, err := svc.Run(ctx)

		Convey("Then every reachable match is stored exactly once", func() {
			So(err, ShouldBeNil)
			So(report.State, ShouldEqual, types.StateDone)
			So(report.Complete, ShouldBeFalse)

			c := report.Counts
			So(c.LeaderboardEntries, ShouldEqual, 6)
			So(c.PlayersWalked, ShouldEqual, 6)
			So(c.MatchIDsListed, ShouldEqual, 18)
			So(c.DuplicateMatches, ShouldEqual, 5)
			So(c.MatchesNotFound, ShouldEqual, 1)
			So(c.MatchesFetched, ShouldEqual, 12)
			So(sink.Len(repository.EntityMatches), ShouldEqual, 12)
			So(sink.Len(repository.EntityParticipants), ShouldEqual, 120)
			So(sink.Len(repository.EntityLeaderboard), ShouldEqual, 6)
		})

		Convey("Then throttling was absorbed and shows in the pacing stats", func() {
			So(fake.Throttled(), ShouldBeGreaterThan, 0)
			So(report.Governor.Throttled, ShouldEqual, fake.Throttled())
			So(report.Governor.TotalRequests, ShouldEqual, fake.Requests())
			So(fake.Hits(fakeriot.RouteMatchDetail)-fake.Throttled(), ShouldBeLessThanOrEqualTo, 13)
		})

		Convey("Then shared matches hold both ladder players", func() {
			players := map[string]bool{}
			for _, p := range sink.Participants("KR_7000000002") {
				players[p.PUUID] = true
			}
			So(players["puuid-0000"], ShouldBeTrue)
			So(players["puuid-0001"], ShouldBeTrue)
		})
	})
}
