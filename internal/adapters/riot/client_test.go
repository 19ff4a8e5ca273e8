package riot_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/harvest/internal/adapters/riot"
	"github.com/okian/harvest/internal/domain/governor"
	. "github.com/smartystreets/goconvey/convey"
)

func fastGovernor() *governor.Governor {
	return governor.New(
		governor.WithInitialDelay(time.Millisecond),
		governor.WithMinDelay(time.Millisecond),
		governor.WithMaxDelay(5*time.Millisecond),
	)
}

func newClient(srv *httptest.Server, g *governor.Governor, opts ...riot.Option) *riot.Client {
	base := []riot.Option{
		riot.WithPlatformURL(srv.URL),
		riot.WithRegionalURL(srv.URL),
		riot.WithMaxAttempts(3),
		riot.WithTimeout(time.Second),
	}
	return riot.New("RGAPI-test", g, append(base, opts...)...)
}

func TestFetchLeaderboard(t *testing.T) {
	Convey("Given an upstream serving the challenger ladder", t, func() {
		var gotPath, gotToken string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath, gotToken = r.URL.Path, r.Header.Get("X-Riot-Token")
			_, _ = fmt.Fprint(w, `{"entries":[
				{"puuid":"low","leaguePoints":900,"wins":10,"losses":5},
				{"puuid":"high","leaguePoints":1500,"wins":30,"losses":10,"hotStreak":true},
				{"puuid":"low","leaguePoints":950,"wins":11,"losses":5,"veteran":true},
				{"puuid":"","leaguePoints":2000}
			]}`)
		}))
		defer srv.Close()

		entries, err := newClient(srv, fastGovernor()).FetchLeaderboard(context.Background())

		Convey("Then entries are deduplicated and ordered by points", func() {
			So(err, ShouldBeNil)
			So(gotPath, ShouldEqual, "/lol/league/v4/challengerleagues/by-queue/RANKED_SOLO_5x5")
			So(gotToken, ShouldEqual, "RGAPI-test")
			So(entries, ShouldHaveLength, 2)
			So(entries[0].PUUID, ShouldEqual, "high")
			So(entries[0].HotStreak, ShouldBeTrue)
			So(entries[1].PUUID, ShouldEqual, "low")
			So(entries[1].LeaguePoints, ShouldEqual, 950)
			So(entries[1].Veteran, ShouldBeTrue)
		})
	})

	Convey("Given a grandmaster tier and a forbidden key", t, func() {
		var hits atomic.Int32
		var gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			gotPath = r.URL.Path
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		entries, err := newClient(srv, fastGovernor(), riot.WithTier("GrandMaster")).FetchLeaderboard(context.Background())

		Convey("Then the result is empty and unavailable without retries", func() {
			So(entries, ShouldBeEmpty)
			So(errors.Is(err, riot.ErrUnavailable), ShouldBeTrue)
			So(hits.Load(), ShouldEqual, 1)
			So(gotPath, ShouldStartWith, "/lol/league/v4/grandmasterleagues/")
		})
	})
}

func TestThrottleRetry(t *testing.T) {
	Convey("Given an upstream that throttles once", t, func() {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) == 1 {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = fmt.Fprint(w, `["KR_1","KR_2"]`)
		}))
		defer srv.Close()

		g := fastGovernor()
		ids, err := newClient(srv, g).ListMatchIDs(context.Background(), "p1", 5)

		Convey("Then the call is retried and the governor backs off", func() {
			So(err, ShouldBeNil)
			So(ids, ShouldResemble, []string{"KR_1", "KR_2"})
			So(hits.Load(), ShouldEqual, 2)
			st := g.Stats()
			So(st.Throttled, ShouldEqual, 1)
			So(st.TotalRequests, ShouldEqual, 2)
			So(g.Delay(), ShouldBeGreaterThan, time.Millisecond)
		})
	})

	Convey("Given an upstream that always throttles", t, func() {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := newClient(srv, fastGovernor()).FetchMatchDetail(context.Background(), "KR_1")

		Convey("Then retries stop at the attempt cap", func() {
			So(errors.Is(err, riot.ErrRetriesExhausted), ShouldBeTrue)
			So(errors.Is(err, riot.ErrThrottled), ShouldBeTrue)
			So(hits.Load(), ShouldEqual, 3)
		})
	})
}

func TestListMatchIDs(t *testing.T) {
	Convey("Given a player with no history", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer srv.Close()

		ids, err := newClient(srv, fastGovernor()).ListMatchIDs(context.Background(), "ghost", 5)

		Convey("Then an explicit empty list is returned", func() {
			So(err, ShouldBeNil)
			So(ids, ShouldNotBeNil)
			So(ids, ShouldBeEmpty)
		})
	})

	Convey("Given an upstream returning more ids than asked", t, func() {
		var gotQuery, gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery, gotPath = r.URL.RawQuery, r.URL.Path
			_, _ = fmt.Fprint(w, `["a","b","c","d","e"]`)
		}))
		defer srv.Close()

		ids, err := newClient(srv, fastGovernor()).ListMatchIDs(context.Background(), "p1", 3)

		Convey("Then the list is capped at the target", func() {
			So(err, ShouldBeNil)
			So(gotPath, ShouldEqual, "/lol/match/v5/matches/by-puuid/p1/ids")
			So(gotQuery, ShouldEqual, "count=3")
			So(ids, ShouldResemble, []string{"a", "b", "c"})
		})
	})

	Convey("Given a zero target", t, func() {
		c := riot.New("k", fastGovernor())
		ids, err := c.ListMatchIDs(context.Background(), "p1", 0)
		So(err, ShouldBeNil)
		So(ids, ShouldBeEmpty)
	})
}

func TestFetchMatchDetail(t *testing.T) {
	Convey("Given an upstream with one known match", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/lol/match/v5/matches/KR_1" {
				http.NotFound(w, r)
				return
			}
			_, _ = fmt.Fprint(w, `{"metadata":{"matchId":"KR_1","participants":["p1"]},"info":{"gameCreation":1,"participants":[{"puuid":"p1"}]}}`)
		}))
		defer srv.Close()
		c := newClient(srv, fastGovernor())

		Convey("When the known match is fetched", func() {
			p, err := c.FetchMatchDetail(context.Background(), "KR_1")
			So(err, ShouldBeNil)
			So(p.Metadata.MatchID, ShouldEqual, "KR_1")
			So(p.Info.Participants, ShouldHaveLength, 1)
		})

		Convey("When an unknown match is fetched", func() {
			p, err := c.FetchMatchDetail(context.Background(), "KR_404")
			So(p, ShouldBeNil)
			So(errors.Is(err, riot.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given an upstream failing with server errors", t, func() {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := newClient(srv, fastGovernor()).FetchMatchDetail(context.Background(), "KR_1")

		Convey("Then the exhausted-retry error wraps unavailability", func() {
			So(errors.Is(err, riot.ErrRetriesExhausted), ShouldBeTrue)
			So(errors.Is(err, riot.ErrUnavailable), ShouldBeTrue)
			So(hits.Load(), ShouldEqual, 3)
		})
	})

	Convey("Given an upstream slower than the request timeout", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(500 * time.Millisecond):
			}
		}))
		defer srv.Close()

		_, err := newClient(srv, fastGovernor(), riot.WithTimeout(20*time.Millisecond), riot.WithMaxAttempts(2)).
			FetchMatchDetail(context.Background(), "KR_1")

		Convey("Then the call fails as unavailable", func() {
			So(errors.Is(err, riot.ErrRetriesExhausted), ShouldBeTrue)
			So(errors.Is(err, riot.ErrUnavailable), ShouldBeTrue)
		})
	})

	Convey("Given a cancelled context", t, func() {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newClient(srv, fastGovernor()).FetchMatchDetail(ctx, "KR_1")

		Convey("Then no request is issued", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(hits.Load(), ShouldEqual, 0)
		})
	})
}
