package flash

import (
	"codeberg.org/mutker/acmonitor/internal/errors"
	"codeberg.org/mutker/acmonitor/internal/power"
	"codeberg.org/mutker/acmonitor/internal/ringbuf"
)

const (
	// MinRecordSeconds is the number of one-second samples a minute needs
	// to be worth a record.
	MinRecordSeconds = 15
	// TriggerSamples is the power sample backlog that starts a drain.
	TriggerSamples = 60
)

// Aggregate consumes power samples oldest first and integrates their active
// power into one minute record. It stops before the first sample of a later
// minute once the current one has MinRecordSeconds samples; shorter minutes
// are discarded along the way. Consumed samples are gone even when the
// result is ErrAggregation.
func Aggregate(samples *ringbuf.Ring[power.PowerSample], phases int) (Record, error) {
	var (
		rec     Record
		counter uint32
		minute  = int64(-1)
		second  = -1
	)

	phases = min(max(phases, 0), power.MaxPhases)

	_, err := samples.ConsumeWhile(func(s power.PowerSample) bool {
		m := int64(s.Timestamp / 60)
		if m != minute {
			if counter >= MinRecordSeconds {
				return false
			}
			rec = Record{Timestamp: s.Timestamp - s.Timestamp%60}
			counter = 0
			second = -1
		}

		last := second
		second = int(s.Timestamp % 60)
		minute = m

		for ch := 0; ch < phases; ch++ {
			rec.Active[ch] += s.P[ch] * float32(second-last) / 3600
		}
		counter++

		return true
	})
	if err != nil {
		return Record{}, err
	}

	rec.Seconds = counter
	if counter < MinRecordSeconds {
		return rec, errors.New().WithData(ErrAggregation, struct {
			Minute  uint32
			Seconds uint32
		}{rec.Timestamp, counter})
	}

	return rec, nil
}
