package buffer

import (
	"strconv"

	"github.com/mqspeak/mqspeak/internal/model"
)

// Average folds every accepted numeric sample for a declared id into a
// running mean, emitted at snapshot time. Non-numeric payloads are
// rejected with a *ParseError and do not affect the running mean. It is
// complete once every declared id has at least one accepted sample.
type Average struct {
	sums   map[model.DataIdentifier]float64
	counts map[model.DataIdentifier]int
}

// NewAverage builds an Average buffer declared over ids.
func NewAverage(ids []model.DataIdentifier) *Average {
	sums := make(map[model.DataIdentifier]float64, len(ids))
	counts := make(map[model.DataIdentifier]int, len(ids))
	for _, id := range ids {
		sums[id] = 0
		counts[id] = 0
	}
	return &Average{sums: sums, counts: counts}
}

func (b *Average) Relevant(id model.DataIdentifier) bool {
	_, ok := b.sums[id]
	return ok
}

func (b *Average) Accept(id model.DataIdentifier, value string) error {
	if !b.Relevant(id) {
		return &TopicError{ID: id}
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return &ParseError{ID: id, Value: value, Cause: err}
	}
	b.sums[id] += f
	b.counts[id]++
	return nil
}

func (b *Average) Complete() bool {
	for id := range b.sums {
		if b.counts[id] == 0 {
			return false
		}
	}
	return true
}

func (b *Average) HasAny() bool {
	for id := range b.sums {
		if b.counts[id] > 0 {
			return true
		}
	}
	return false
}

func (b *Average) Missing() []model.DataIdentifier {
	var missing []model.DataIdentifier
	for id := range b.sums {
		if b.counts[id] == 0 {
			missing = append(missing, id)
		}
	}
	return missing
}

func (b *Average) Snapshot() model.Measurement {
	fields := make(map[model.DataIdentifier]string, len(b.sums))
	for id, sum := range b.sums {
		if n := b.counts[id]; n > 0 {
			fields[id] = formatFloat(sum / float64(n))
		}
	}
	return model.NewMeasurement(fields)
}

func (b *Average) Reset() {
	for id := range b.sums {
		b.sums[id] = 0
		b.counts[id] = 0
	}
}
