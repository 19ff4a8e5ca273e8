package types_test

import (
	"testing"

	types "github.com/okian/harvest/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStateMachine(t *testing.T) {
	Convey("Given the run states", t, func() {
		Convey("When walking successors from Init", func() {
			var path []types.State
			for s := types.StateInit; !s.Terminal(); s = s.Next() {
				path = append(path, s)
			}

			Convey("Then every stage is visited in order", func() {
				So(path, ShouldResemble, []types.State{
					types.StateInit,
					types.StateBootstrapStorage,
					types.StateCollectLeaderboard,
					types.StatePersistLeaderboard,
					types.StateWalkMatches,
					types.StatePersistMatches,
					types.StateVerify,
				})
			})
		})

		Convey("Then Aborted is reachable from any stage", func() {
			for _, s := range []types.State{types.StateInit, types.StateWalkMatches, types.StateVerify} {
				So(types.CanTransition(s, types.StateAborted), ShouldBeTrue)
			}
		})

		Convey("Then stages cannot be skipped or left once terminal", func() {
			So(types.CanTransition(types.StateCollectLeaderboard, types.StateWalkMatches), ShouldBeFalse)
			So(types.CanTransition(types.StateDone, types.StateAborted), ShouldBeFalse)
			So(types.CanTransition(types.StateAborted, types.StateInit), ShouldBeFalse)
			So(types.StateDone.Next(), ShouldEqual, types.StateDone)
		})
	})
}

func TestCounts(t *testing.T) {
	Convey("Given counts with skipped items", t, func() {
		c := types.Counts{PlayersFailed: 1, MatchesNotFound: 2, MatchesFailed: 3, MatchesFetched: 10}
		So(c.Skipped(), ShouldEqual, 6)

		r := types.Report{State: types.StateDone, Counts: c}
		So(r.Succeeded(), ShouldBeTrue)
	})
}
