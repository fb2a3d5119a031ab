package rig

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/samber/lo"

	"go.viam.com/slrig/pipeline/metadata"
)

// A Summary describes a set of durations.
type Summary struct {
	Count  int
	Mean   time.Duration
	StdDev time.Duration
	Median time.Duration
	P95    time.Duration
	Max    time.Duration
}

func summarize(ticks []int64) Summary {
	if len(ticks) == 0 {
		return Summary{}
	}
	data := stats.Float64Data(lo.Map(ticks, func(v int64, _ int) float64 {
		return float64(v)
	}))
	// errors only occur for empty input
	mean, _ := stats.Mean(data)
	sd, _ := stats.StandardDeviation(data)
	median, _ := stats.Median(data)
	p95, _ := stats.Percentile(data, 95)
	maxTicks, _ := stats.Max(data)
	return Summary{
		Count:  len(ticks),
		Mean:   time.Duration(mean),
		StdDev: time.Duration(sd),
		Median: time.Duration(median),
		P95:    time.Duration(p95),
		Max:    time.Duration(maxTicks),
	}
}

// A TimingReport summarizes how well frames were shown and captured.
//
// PresentInterval is the time between consecutive presentations, DisplayInterval how long a
// frame stayed on screen according to the presentation of its successor, TriggerLatency the time
// from presentation to the end of the trigger call and ScheduleError how late frames were
// presented compared to their schedule.
type TimingReport struct {
	Frames          int
	PresentInterval Summary
	DisplayInterval Summary
	TriggerLatency  Summary
	ScheduleError   Summary
}

// NewTimingReport computes a timing report from acquired frame records.
func NewTimingReport(recs []metadata.FrameRecord) TimingReport {
	presented := lo.Filter(recs, func(rec metadata.FrameRecord, _ int) bool {
		return rec.Presented > 0
	})
	sort.Slice(presented, func(i, j int) bool {
		return presented[i].Presented < presented[j].Presented
	})

	var intervals []int64
	for i := 1; i < len(presented); i++ {
		intervals = append(intervals, presented[i].Presented-presented[i-1].Presented)
	}
	display := lo.FilterMap(presented, func(rec metadata.FrameRecord, _ int) (int64, bool) {
		return rec.NextPresented - rec.Presented, rec.NextPresented > 0
	})
	latency := lo.FilterMap(presented, func(rec metadata.FrameRecord, _ int) (int64, bool) {
		return rec.AfterTrigger - rec.Presented, rec.Triggered && rec.AfterTrigger > 0
	})
	schedule := lo.FilterMap(presented, func(rec metadata.FrameRecord, _ int) (int64, bool) {
		return rec.Presented - rec.ScheduledPresent, rec.ScheduledPresent > 0
	})
	return TimingReport{
		Frames:          len(recs),
		PresentInterval: summarize(intervals),
		DisplayInterval: summarize(display),
		TriggerLatency:  summarize(latency),
		ScheduleError:   summarize(schedule),
	}
}
