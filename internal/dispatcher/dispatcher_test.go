package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mqspeak/mqspeak/internal/model"
	"github.com/mqspeak/mqspeak/internal/sender"
	"github.com/mqspeak/mqspeak/internal/updater"
)

type stubSender struct {
	result model.UpdateResult
	panic  bool
}

func (s *stubSender) Send(ctx context.Context, channel model.Channel, mapping model.FieldMapping, measurement model.Measurement) model.UpdateResult {
	if s.panic {
		panic("boom")
	}
	return s.result
}

type recordingUpdater struct {
	mu      sync.Mutex
	results []model.UpdateResult
	done    chan struct{}
}

func newRecordingUpdater() *recordingUpdater {
	return &recordingUpdater{done: make(chan struct{}, 16)}
}

func (u *recordingUpdater) IsRelevant(model.DataIdentifier) bool { return true }
func (u *recordingUpdater) Offer(model.DataIdentifier, string)   {}
func (u *recordingUpdater) NotifyUpdateResult(r model.UpdateResult) {
	u.mu.Lock()
	u.results = append(u.results, r)
	u.mu.Unlock()
	u.done <- struct{}{}
}
func (u *recordingUpdater) NotifyUpdateWaiting() {}
func (u *recordingUpdater) Stop()                {}

var _ updater.Updater = (*recordingUpdater)(nil)

func waitForResult(t *testing.T, u *recordingUpdater) {
	t.Helper()
	select {
	case <-u.done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatcher to notify the updater")
	}
}

func TestDispatcher_SuccessfulSendNotifiesUpdater(t *testing.T) {
	id := model.DataIdentifier{Broker: "b1", Topic: "t1"}
	ch := model.Channel{Kind: model.ThingSpeak, Name: "c1"}
	mapping := model.FieldMapping{id: "field1"}

	senders := sender.Registry{model.ThingSpeak: &stubSender{result: model.UpdateResult{Success: true}}}
	d := New(senders, func(model.Channel) (model.FieldMapping, bool) { return mapping, true }, 2, 4, nil)
	defer d.Stop()

	u := newRecordingUpdater()
	d.UpdateAvailable(ch, model.NewMeasurement(nil), u)
	waitForResult(t, u)

	if len(u.results) != 1 || !u.results[0].Success {
		t.Fatalf("expected one successful result, got %+v", u.results)
	}
}

func TestDispatcher_PanicInSenderStillNotifiesFailure(t *testing.T) {
	ch := model.Channel{Kind: model.ThingSpeak, Name: "c1"}
	senders := sender.Registry{model.ThingSpeak: &stubSender{panic: true}}
	d := New(senders, func(model.Channel) (model.FieldMapping, bool) { return model.FieldMapping{}, true }, 1, 4, nil)
	defer d.Stop()

	u := newRecordingUpdater()
	d.UpdateAvailable(ch, model.NewMeasurement(nil), u)
	waitForResult(t, u)

	if len(u.results) != 1 || u.results[0].Success {
		t.Fatalf("expected one failed result after panic, got %+v", u.results)
	}
}

func TestDispatcher_StopDrainsPendingQueueBeforeExiting(t *testing.T) {
	id := model.DataIdentifier{Broker: "b1", Topic: "t1"}
	ch := model.Channel{Kind: model.ThingSpeak, Name: "c1"}
	mapping := model.FieldMapping{id: "field1"}

	senders := sender.Registry{model.ThingSpeak: &stubSender{result: model.UpdateResult{Success: true}}}
	// A single worker and a queue deep enough to hold every item
	// unsent at the moment Stop is called, so Stop must drain the
	// backlog rather than race a worker's stop check against it.
	d := New(senders, func(model.Channel) (model.FieldMapping, bool) { return mapping, true }, 1, 8, nil)

	const n = 5
	updaters := make([]*recordingUpdater, n)
	for i := range updaters {
		updaters[i] = newRecordingUpdater()
		d.UpdateAvailable(ch, model.NewMeasurement(nil), updaters[i])
	}

	d.Stop()

	for i, u := range updaters {
		select {
		case <-u.done:
		default:
			t.Fatalf("updater %d never received a notification after Stop drained the queue", i)
		}
		if len(u.results) != 1 || !u.results[0].Success {
			t.Fatalf("updater %d: expected one successful result, got %+v", i, u.results)
		}
	}
}

func TestDispatcher_UnknownChannelKindIsFailure(t *testing.T) {
	ch := model.Channel{Kind: model.ChannelKind("unknown"), Name: "c1"}
	d := New(sender.Registry{}, func(model.Channel) (model.FieldMapping, bool) { return model.FieldMapping{}, true }, 1, 4, nil)
	defer d.Stop()

	u := newRecordingUpdater()
	d.UpdateAvailable(ch, model.NewMeasurement(nil), u)
	waitForResult(t, u)

	if len(u.results) != 1 || u.results[0].Success {
		t.Fatalf("expected failure for unregistered channel kind, got %+v", u.results)
	}
}
