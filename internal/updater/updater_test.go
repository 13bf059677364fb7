package updater

import (
	"testing"
	"time"

	"github.com/mqspeak/mqspeak/internal/buffer"
	"github.com/mqspeak/mqspeak/internal/model"
	"github.com/sirupsen/logrus"
)

type dispatchCall struct {
	channel     model.Channel
	measurement model.Measurement
	updater     Updater
}

// fakeDispatcher stands in for the real Dispatcher: it records every
// UpdateAvailable call on a channel so tests can assert emission order
// and timing without a real HTTP round trip.
type fakeDispatcher struct {
	calls chan dispatchCall
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{calls: make(chan dispatchCall, 16)}
}

func (d *fakeDispatcher) UpdateAvailable(channel model.Channel, measurement model.Measurement, u Updater) {
	d.calls <- dispatchCall{channel: channel, measurement: measurement, updater: u}
}

func (d *fakeDispatcher) expectEmission(t *testing.T, within time.Duration) dispatchCall {
	t.Helper()
	select {
	case c := <-d.calls:
		return c
	case <-time.After(within):
		t.Fatal("expected an emission, got none")
		return dispatchCall{}
	}
}

func (d *fakeDispatcher) expectNoEmission(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case c := <-d.calls:
		t.Fatalf("expected no emission, got one for %v", c.channel)
	case <-time.After(within):
	}
}

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log.WithField("test", true)
}

func TestBlackout_DiscardsInputsDuringInterval(t *testing.T) {
	id := idPair("b1", "t1")
	ch := model.Channel{Name: "c1", UpdateInterval: 40 * time.Millisecond}
	dispatcher := newFakeDispatcher()
	u := NewBlackout(ch, buffer.NewLastValue([]model.DataIdentifier{id}), dispatcher, testLogger())

	u.Offer(id, "1")
	call := dispatcher.expectEmission(t, 20*time.Millisecond)
	u.NotifyUpdateResult(model.UpdateResult{Success: true})
	_ = call

	u.Offer(id, "2")
	dispatcher.expectNoEmission(t, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	u.Offer(id, "3")
	dispatcher.expectEmission(t, 20*time.Millisecond)
}

func TestBlackout_RetriesImmediatelyAfterFailure(t *testing.T) {
	id := idPair("b1", "t1")
	ch := model.Channel{Name: "c1", UpdateInterval: 50 * time.Millisecond}
	dispatcher := newFakeDispatcher()
	u := NewBlackout(ch, buffer.NewLastValue([]model.DataIdentifier{id}), dispatcher, testLogger())

	u.Offer(id, "1")
	dispatcher.expectEmission(t, 20*time.Millisecond)
	u.NotifyUpdateResult(model.UpdateResult{Success: false})

	u.Offer(id, "2")
	dispatcher.expectEmission(t, 20*time.Millisecond)
}

func TestBuffered_EmitsImmediatelyThenOnSchedule(t *testing.T) {
	id := idPair("b1", "t1")
	ch := model.Channel{Name: "c1", UpdateInterval: 30 * time.Millisecond}
	dispatcher := newFakeDispatcher()
	u := NewBuffered(ch, buffer.NewLastValue([]model.DataIdentifier{id}), dispatcher, testLogger())

	u.Offer(id, "1")
	first := dispatcher.expectEmission(t, 20*time.Millisecond)
	if first.measurement.Fields[id] != "1" {
		t.Fatalf("expected first emission value 1, got %q", first.measurement.Fields[id])
	}
	u.NotifyUpdateResult(model.UpdateResult{Success: true})

	u.Offer(id, "2")
	dispatcher.expectNoEmission(t, 10*time.Millisecond)

	second := dispatcher.expectEmission(t, 40*time.Millisecond)
	if second.measurement.Fields[id] != "2" {
		t.Fatalf("expected scheduled emission value 2, got %q", second.measurement.Fields[id])
	}
}

func TestAverage_FoldsAllSamplesBeforeSchedulerFire(t *testing.T) {
	id := idPair("b1", "t1")
	ch := model.Channel{Name: "c1", UpdateInterval: 30 * time.Millisecond}
	dispatcher := newFakeDispatcher()
	u := NewAverage(ch, buffer.NewAverage([]model.DataIdentifier{id}), dispatcher, testLogger())

	for _, v := range []string{"1", "2", "3", "bad", "5"} {
		u.Offer(id, v)
	}
	dispatcher.expectNoEmission(t, 15*time.Millisecond)

	call := dispatcher.expectEmission(t, 40*time.Millisecond)
	if call.measurement.Fields[id] != "2.75" {
		t.Fatalf("expected mean 2.75, got %q", call.measurement.Fields[id])
	}
}

func TestOnChange_DrainsOneQueuedChangePerTick(t *testing.T) {
	id := idPair("b1", "t1")
	ch := model.Channel{Name: "c1", UpdateInterval: 20 * time.Millisecond}
	dispatcher := newFakeDispatcher()
	u := NewOnChange(ch, buffer.NewChangeValue([]model.DataIdentifier{id}), dispatcher, testLogger())

	for _, v := range []string{"1", "1", "2", "2", "3"} {
		u.Offer(id, v)
	}

	var seen []string
	for i := 0; i < 3; i++ {
		call := dispatcher.expectEmission(t, 60*time.Millisecond)
		seen = append(seen, call.measurement.Fields[id])
		u.NotifyUpdateResult(model.UpdateResult{Success: true})
	}

	want := []string{"1", "2", "3"}
	for i, v := range want {
		if seen[i] != v {
			t.Fatalf("emission order = %v, want %v", seen, want)
		}
	}
	dispatcher.expectNoEmission(t, 40*time.Millisecond)
}

func TestWaitingTimeout_EmitsPartialMeasurementAndClearsWaitingStarted(t *testing.T) {
	a := idPair("b1", "a")
	b := idPair("b1", "b")
	ch := model.Channel{
		Name:           "c1",
		UpdateInterval: 20 * time.Millisecond,
		HasWaiting:     true,
		Waiting:        15 * time.Millisecond,
	}
	dispatcher := newFakeDispatcher()
	u := NewBlackout(ch, buffer.NewLastValue([]model.DataIdentifier{a, b}), dispatcher, testLogger())

	u.Offer(a, "1")
	dispatcher.expectNoEmission(t, 5*time.Millisecond)

	// Interval has not expired yet: no waiting period should start.
	u.NotifyUpdateWaiting()

	time.Sleep(25 * time.Millisecond)
	// Interval now expired with buffer incomplete: waitingStarted begins.
	u.NotifyUpdateWaiting()

	// Not yet past the waiting grace period.
	dispatcher.expectNoEmission(t, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	u.NotifyUpdateWaiting()

	call := dispatcher.expectEmission(t, 10*time.Millisecond)
	if call.measurement.Fields[a] != "1" {
		t.Fatalf("expected partial measurement to contain a=1, got %v", call.measurement.Fields)
	}
	if _, ok := call.measurement.Fields[b]; ok {
		t.Fatal("expected partial measurement to omit missing field b")
	}

	u.mu.Lock()
	waitingStillSet := u.hasWaitingStarted
	u.mu.Unlock()
	if waitingStillSet {
		t.Fatal("expected the partial emission to clear waitingStarted")
	}
}

func idPair(broker, topic string) model.DataIdentifier {
	return model.DataIdentifier{Broker: broker, Topic: topic}
}
