package buffer

import "github.com/mqspeak/mqspeak/internal/model"

// LastValue keeps the most recent value seen for each declared id,
// overwriting on every accept. It is complete once every declared id has
// received at least one value. Used by the Blackout and Buffered
// updaters.
type LastValue struct {
	fields map[model.DataIdentifier]*string
}

// NewLastValue builds a LastValue buffer declared over ids.
func NewLastValue(ids []model.DataIdentifier) *LastValue {
	fields := make(map[model.DataIdentifier]*string, len(ids))
	for _, id := range ids {
		fields[id] = nil
	}
	return &LastValue{fields: fields}
}

func (b *LastValue) Relevant(id model.DataIdentifier) bool {
	_, ok := b.fields[id]
	return ok
}

func (b *LastValue) Accept(id model.DataIdentifier, value string) error {
	if !b.Relevant(id) {
		return &TopicError{ID: id}
	}
	v := value
	b.fields[id] = &v
	return nil
}

func (b *LastValue) Complete() bool {
	for _, v := range b.fields {
		if v == nil {
			return false
		}
	}
	return true
}

func (b *LastValue) HasAny() bool {
	for _, v := range b.fields {
		if v != nil {
			return true
		}
	}
	return false
}

func (b *LastValue) Missing() []model.DataIdentifier {
	var missing []model.DataIdentifier
	for id, v := range b.fields {
		if v == nil {
			missing = append(missing, id)
		}
	}
	return missing
}

func (b *LastValue) Snapshot() model.Measurement {
	fields := make(map[model.DataIdentifier]string, len(b.fields))
	for id, v := range b.fields {
		if v != nil {
			fields[id] = *v
		}
	}
	return model.NewMeasurement(fields)
}

func (b *LastValue) Reset() {
	for id := range b.fields {
		b.fields[id] = nil
	}
}
