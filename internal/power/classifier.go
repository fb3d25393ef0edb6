package power

import "github.com/chewxy/math32"

type tally struct {
	count uint32
	sum   float32
	worst float32
}

// Classifier accumulates threshold violations per phase and event type over
// one aggregation window.
type Classifier struct {
	rules      Rules
	thresholds Thresholds
	phases     int
	tallies    [MaxPhases]map[EventType]*tally
}

func NewClassifier(rules Rules, thresholds Thresholds, phases int) *Classifier {
	c := &Classifier{
		rules:      rules,
		thresholds: thresholds,
		phases:     phases,
	}
	for ch := range c.tallies {
		c.tallies[ch] = make(map[EventType]*tally, len(eventTypes))
		for _, t := range eventTypes {
			c.tallies[ch][t] = &tally{}
		}
	}
	return c
}

// ObserveSample checks the instantaneous voltage of phase ch.
func (c *Classifier) ObserveSample(ch int, v float32) {
	if ch >= c.phases {
		return
	}
	if mag := math32.Abs(v); mag > c.thresholds.PeakVoltage {
		c.record(ch, VoltageSpike, mag, v)
	}
}

// ObserveCycle checks the metrics of a completed cycle of phase ch.
func (c *Classifier) ObserveCycle(ch int, m CycleMetrics) {
	if ch >= c.phases {
		return
	}

	th := c.thresholds
	if m.Frequency > th.FrequencyMax {
		c.record(ch, FrequencyHigh, m.Frequency, m.Frequency)
	}
	if m.Frequency < th.FrequencyMin {
		c.record(ch, FrequencyLow, m.Frequency, m.Frequency)
	}
	if m.Irms > th.MaxCurrent[ch] {
		c.record(ch, Overcurrent, m.Irms, m.Irms)
	}
	if m.Vrms > th.VoltageMax {
		c.record(ch, VoltageHigh, m.Vrms, m.Vrms)
	}
	if m.Vrms < th.VoltageMin {
		c.record(ch, VoltageLow, m.Vrms, m.Vrms)
	}
}

// record adds one occurrence. magnitude feeds the average, candidate
// competes for the worst value.
func (c *Classifier) record(ch int, t EventType, magnitude, candidate float32) {
	tl := c.tallies[ch][t]

	if tl.count == 0 {
		tl.sum = magnitude
		tl.worst = candidate
		tl.count = 1
		return
	}

	tl.sum += magnitude
	tl.count++

	if c.rules[t].Direction == Below {
		if candidate < tl.worst {
			tl.worst = candidate
		}
	} else if math32.Abs(candidate) > math32.Abs(tl.worst) {
		tl.worst = candidate
	}
}

// Reset discards the tallies of a partial window.
func (c *Classifier) Reset() {
	for ch := range c.tallies {
		for _, tl := range c.tallies[ch] {
			*tl = tally{}
		}
	}
}

// count returns the occurrences of t on phase ch so far in this window.
func (c *Classifier) count(ch int, t EventType) uint32 {
	if ch < 0 || ch >= MaxPhases {
		return 0
	}
	tl, ok := c.tallies[ch][t]
	if !ok {
		return 0
	}
	return tl.count
}

// Close emits one event per (phase, type) whose count reached its minimum
// and resets every tally.
func (c *Classifier) Close(timestamp uint32) []PowerEvent {
	var events []PowerEvent

	for ch := 0; ch < MaxPhases; ch++ {
		for _, t := range eventTypes {
			tl := c.tallies[ch][t]
			rule, ok := c.rules[t]
			if ok && tl.count > 0 && tl.count >= rule.MinCount {
				events = append(events, PowerEvent{
					Timestamp: timestamp,
					Type:      t,
					//nolint:gosec // G115: ch < MaxPhases
					Channel: uint8(ch + 1),
					Count:   tl.count,
					Avg:     tl.sum / float32(tl.count),
					Worst:   tl.worst,
				})
			}
			*tl = tally{}
		}
	}

	return events
}
