package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/harvest/internal/adapters/mq/kafka"
	"github.com/okian/harvest/internal/domain/types"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafkago.Message
	err    error
	ctxErr error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ctxErr = ctx.Err()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisher(t *testing.T) {
	convey.Convey("Given a publisher over a fake writer", t, func() {
		w := &fakeWriter{}
		p, err := kafka.NewPublisher([]string{"localhost:9092"}, "harvest.runs", kafka.WithWriter(w))
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When a run starts and finishes", func() {
			report := types.Report{
				RunID:      "run-1",
				State:      types.StateDone,
				Complete:   true,
				FinishedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
				Counts:     types.Counts{MatchesFetched: 5},
			}
			p.RunStarted(context.Background(), "run-1")
			p.RunFinished(context.Background(), report)

			convey.Convey("Then both events are keyed by run id", func() {
				convey.So(w.msgs, convey.ShouldHaveLength, 2)
				convey.So(string(w.msgs[0].Key), convey.ShouldEqual, "run-1")
				convey.So(string(w.msgs[1].Key), convey.ShouldEqual, "run-1")

				var started, finished kafka.Event
				convey.So(json.Unmarshal(w.msgs[0].Value, &started), convey.ShouldBeNil)
				convey.So(json.Unmarshal(w.msgs[1].Value, &finished), convey.ShouldBeNil)
				convey.So(started.Event, convey.ShouldEqual, kafka.EventRunStarted)
				convey.So(started.Report, convey.ShouldBeNil)
				convey.So(finished.Event, convey.ShouldEqual, kafka.EventRunFinished)
				convey.So(finished.Report.Counts.MatchesFetched, convey.ShouldEqual, 5)
				convey.So(finished.Report.State, convey.ShouldEqual, types.StateDone)
			})
		})

		convey.Convey("When the run context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			p.RunFinished(ctx, types.Report{RunID: "run-2", State: types.StateAborted})

			convey.Convey("Then the report is still written", func() {
				convey.So(w.msgs, convey.ShouldHaveLength, 1)
				convey.So(w.ctxErr, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the broker rejects the write", func() {
			w.err = errors.New("leader not available")
			err := p.Publish(context.Background(), kafka.Event{Event: kafka.EventRunStarted, RunID: "run-3"})

			convey.Convey("Then Publish returns the error and the monitor path swallows it", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "harvest.runs")
				convey.So(func() { p.RunStarted(context.Background(), "run-3") }, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When closed", func() {
			convey.So(p.Close(), convey.ShouldBeNil)
			convey.So(w.closed, convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given no brokers", t, func() {
		_, err := kafka.NewPublisher(nil, "harvest.runs")
		convey.So(errors.Is(err, kafka.ErrNoBrokers), convey.ShouldBeTrue)
	})
}
