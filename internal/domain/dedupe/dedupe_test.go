package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/harvest/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSet(t *testing.T) {
	Convey("Given a new Set", t, func() {
		ctx := context.Background()
		var d dedupe.Deduper = dedupe.NewSet()

		Convey("Then it starts empty", func() {
			So(d.Size(), ShouldEqual, 0)
			So(d.Keys(), ShouldBeEmpty)
		})

		Convey("When an id is recorded for the first time", func() {
			seen := d.SeenAndRecord(ctx, "KR_1")

			Convey("Then the caller owns it", func() {
				So(seen, ShouldBeFalse)
				So(d.Contains("KR_1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And a second claim reports it as seen", func() {
				So(d.SeenAndRecord(ctx, "KR_1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When several ids are recorded", func() {
			for _, id := range []string{"KR_3", "KR_1", "KR_2", "KR_1"} {
				d.SeenAndRecord(ctx, id)
			}
			Convey("Then Keys lists each once in order", func() {
				So(d.Keys(), ShouldResemble, []string{"KR_1", "KR_2", "KR_3"})
				So(d.Contains("KR_4"), ShouldBeFalse)
			})
		})
	})
}

func TestSetConcurrentClaims(t *testing.T) {
	Convey("Given many goroutines racing on overlapping ids", t, func() {
		ctx := context.Background()
		d := dedupe.NewSet(dedupe.WithShards(4))

		const workers, ids = 16, 200
		var owned atomic.Int64
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < ids; i++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("KR_%d", i)) {
						owned.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each id is owned exactly once", func() {
			So(owned.Load(), ShouldEqual, ids)
			So(d.Size(), ShouldEqual, ids)
			So(len(d.Keys()), ShouldEqual, ids)
		})
	})
}
