package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/harvest/pkg/logger"
)

func TestParseFlags(t *testing.T) {
	convey.Convey("Given command line flags", t, func() {
		convey.Convey("When none are passed", func() {
			o, err := parseFlags(nil, io.Discard)
			convey.So(err, convey.ShouldBeNil)
			convey.So(o.addr, convey.ShouldEqual, ":9090")
			convey.So(o.cfg.Players, convey.ShouldEqual, 10)
			convey.So(o.cfg.Missing, convey.ShouldBeEmpty)
		})

		convey.Convey("When faults are configured", func() {
			o, err := parseFlags([]string{
				"-players", "3", "-throttle-every", "4", "-retry-after", "2s",
				"-missing", "KR_1, KR_2,,", "-key", "RGAPI-x",
			}, io.Discard)
			convey.So(err, convey.ShouldBeNil)
			convey.So(o.cfg.Players, convey.ShouldEqual, 3)
			convey.So(o.cfg.ThrottleEvery, convey.ShouldEqual, 4)
			convey.So(o.cfg.RetryAfter, convey.ShouldEqual, 2*time.Second)
			convey.So(o.cfg.Missing, convey.ShouldResemble, []string{"KR_1", "KR_2"})
			convey.So(o.cfg.APIKey, convey.ShouldEqual, "RGAPI-x")
		})

		convey.Convey("When a count is negative", func() {
			_, err := parseFlags([]string{"-players", "-1"}, io.Discard)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When help is requested", func() {
			_, err := parseFlags([]string{"-h"}, io.Discard)
			convey.So(errors.Is(err, flag.ErrHelp), convey.ShouldBeTrue)
		})
	})
}

func TestServeStopsOnCancel(t *testing.T) {
	convey.Convey("Given a running simulator", t, func() {
		o, err := parseFlags([]string{"-addr", "127.0.0.1:0"}, io.Discard)
		convey.So(err, convey.ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- serve(ctx, o, logger.NewNop()) }()

		convey.Convey("When the context is cancelled", func() {
			cancel()
			select {
			case err := <-done:
				convey.So(err, convey.ShouldBeNil)
			case <-time.After(5 * time.Second):
				convey.So("serve did not return", convey.ShouldBeEmpty)
			}
		})
	})
}
