package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/appraisal/internal/domain/model"
	"github.com/okian/appraisal/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
	deadline bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	Convey("Given a publisher over a fake writer", t, func() {
		w := &fakeWriter{}
		p := newKafkaPublisher(w, WithPublishTimeout(time.Second))
		at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		ev := model.ReportEvent{ReportID: "r-1", Owner: "w", Status: model.StatusPartial, Processed: 15, Total: 40, At: at}

		Convey("When an event is published", func() {
			err := p.Publish(context.Background(), ev)

			Convey("Then it is keyed by report id and JSON encoded", func() {
				So(err, ShouldBeNil)
				So(w.messages, ShouldHaveLength, 1)
				msg := w.messages[0]
				So(string(msg.Key), ShouldEqual, "r-1")
				So(msg.Time.Equal(at), ShouldBeTrue)
				So(w.deadline, ShouldBeTrue)

				var got model.ReportEvent
				So(json.Unmarshal(msg.Value, &got), ShouldBeNil)
				So(got.Status, ShouldEqual, model.StatusPartial)
				So(got.Processed, ShouldEqual, 15)
			})
		})

		Convey("When the broker rejects the write", func() {
			w.err = errors.New("leader not available")
			err := p.Publish(context.Background(), ev)

			Convey("Then the error names the report", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "r-1")
				So(errors.Is(err, w.err), ShouldBeTrue)
			})
		})

		Convey("When closed", func() {
			So(p.Close(), ShouldBeNil)
			So(w.closed, ShouldBeTrue)
		})
	})
}

func TestNop(t *testing.T) {
	Convey("Given the no-op publisher", t, func() {
		var p Publisher = Nop{}
		So(p.Publish(context.Background(), model.ReportEvent{ReportID: "x"}), ShouldBeNil)
		So(p.Close(), ShouldBeNil)
	})
}
