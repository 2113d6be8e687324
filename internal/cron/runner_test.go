package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/appraisal/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type mockPurger struct {
	mu     sync.Mutex
	before []time.Time
	n      int
	err    error
}

func (m *mockPurger) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.before = append(m.before, before)
	return m.n, m.err
}

func TestCleanup(t *testing.T) {
	Convey("Given a purger and a fixed clock", t, func() {
		clk := clock.NewMock()
		now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
		clk.Set(now)
		p := &mockPurger{n: 3}
		job := Cleanup(p, 7*24*time.Hour, clk)

		Convey("When the job runs", func() {
			err := job(context.Background())

			Convey("Then reports created before the retention window are purged", func() {
				So(err, ShouldBeNil)
				So(p.before, ShouldHaveLength, 1)
				So(p.before[0].Equal(now.Add(-7*24*time.Hour)), ShouldBeTrue)
			})
		})

		Convey("When the store fails", func() {
			p.err = errors.New("redis down")
			So(job(context.Background()), ShouldEqual, p.err)
		})
	})
}

func TestRunner(t *testing.T) {
	Convey("Given a runner", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		r := New(ctx)

		Convey("Then an invalid schedule is rejected", func() {
			_, err := r.Add("bad", "not a schedule", func(context.Context) error { return nil })
			So(err, ShouldNotBeNil)
		})

		Convey("Then a job runs with the base context", func() {
			var got context.Context
			r.run("probe", func(c context.Context) error {
				got = c
				return nil
			})
			So(got, ShouldEqual, ctx)
		})

		Convey("Then a failing job is contained", func() {
			called := false
			r.run("failing", func(context.Context) error {
				called = true
				return errors.New("boom")
			})
			So(called, ShouldBeTrue)
		})

		Convey("Then nothing runs after the base context ends", func() {
			cancel()
			called := false
			r.run("late", func(context.Context) error {
				called = true
				return nil
			})
			So(called, ShouldBeFalse)
		})

		Convey("Then start and stop complete", func() {
			_, err := r.Add("noop", "@every 1h", func(context.Context) error { return nil })
			So(err, ShouldBeNil)
			r.Start()
			r.Stop()
		})
	})
}
