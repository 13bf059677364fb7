package buffer

import "github.com/mqspeak/mqspeak/internal/model"

// ChangeValue queues one entry per id each time its value differs from
// the last value accepted for that id (consecutive duplicates are
// dropped). Reset is non-destructive: it advances each id's queue by one
// entry rather than clearing it, so values queued faster than the
// updater drains them are not lost, only delayed. Used by the OnChange
// updater.
//
// Complete and HasAny share one definition here: at least one declared
// id has a queued entry. ChangeValue has no notion of "all ids present"
// the way LastValue does — a channel watching independent changing
// values emits whenever there is something new to send, not when every
// id happens to have changed.
type ChangeValue struct {
	queue map[model.DataIdentifier][]string
	last  map[model.DataIdentifier]*string
}

// NewChangeValue builds a ChangeValue buffer declared over ids.
func NewChangeValue(ids []model.DataIdentifier) *ChangeValue {
	queue := make(map[model.DataIdentifier][]string, len(ids))
	last := make(map[model.DataIdentifier]*string, len(ids))
	for _, id := range ids {
		queue[id] = nil
		last[id] = nil
	}
	return &ChangeValue{queue: queue, last: last}
}

func (b *ChangeValue) Relevant(id model.DataIdentifier) bool {
	_, ok := b.queue[id]
	return ok
}

func (b *ChangeValue) Accept(id model.DataIdentifier, value string) error {
	if !b.Relevant(id) {
		return &TopicError{ID: id}
	}
	if prev := b.last[id]; prev != nil && *prev == value {
		return nil
	}
	v := value
	b.last[id] = &v
	b.queue[id] = append(b.queue[id], value)
	return nil
}

func (b *ChangeValue) Complete() bool {
	return b.HasAny()
}

func (b *ChangeValue) HasAny() bool {
	for _, q := range b.queue {
		if len(q) > 0 {
			return true
		}
	}
	return false
}

func (b *ChangeValue) Missing() []model.DataIdentifier {
	var missing []model.DataIdentifier
	for id, q := range b.queue {
		if len(q) == 0 {
			missing = append(missing, id)
		}
	}
	return missing
}

func (b *ChangeValue) Snapshot() model.Measurement {
	fields := make(map[model.DataIdentifier]string, len(b.queue))
	for id, q := range b.queue {
		if len(q) > 0 {
			fields[id] = q[0]
		}
	}
	return model.NewMeasurement(fields)
}

// Reset pops the head entry off every id's queue that has one. Ids with
// further queued changes keep them for the next cycle.
func (b *ChangeValue) Reset() {
	for id, q := range b.queue {
		if len(q) > 0 {
			b.queue[id] = q[1:]
		}
	}
}
