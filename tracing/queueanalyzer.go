package tracing

import (
	"fmt"
	"io"

	"golang.org/x/exp/slices"

	"github.com/sarchlab/tcpgoodput/network"
	"github.com/sarchlab/tcpgoodput/sim/hooking"
	"github.com/sarchlab/tcpgoodput/sim/timing"
)

// A QueueAnalyzer follows the occupancy of queues over time, so that the
// queues where packets wait the most can be found after a run.
type QueueAnalyzer struct {
	timeTeller timing.TimeTeller
	queues     map[*network.DropTailQueue]*queueInfo
	order      []*network.DropTailQueue
}

type queueInfo struct {
	lastLevel       int
	lastTime        timing.VTimeInSec
	maxLevel        int
	levelToDuration map[int]timing.VTimeInSec
}

func (q *queueInfo) averageLevel(until timing.VTimeInSec) float64 {
	sum := 0.0
	durationSum := 0.0

	for level, duration := range q.levelToDuration {
		sum += float64(level) * duration
		durationSum += duration
	}

	if until > q.lastTime {
		sum += float64(q.lastLevel) * (until - q.lastTime)
		durationSum += until - q.lastTime
	}

	if durationSum == 0.0 {
		return 0.0
	}

	return sum / durationSum
}

// NewQueueAnalyzer creates a QueueAnalyzer that watches no queue yet.
func NewQueueAnalyzer(timeTeller timing.TimeTeller) *QueueAnalyzer {
	return &QueueAnalyzer{
		timeTeller: timeTeller,
		queues:     make(map[*network.DropTailQueue]*queueInfo),
	}
}

// Watch starts following the queue of every device.
func (a *QueueAnalyzer) Watch(devices ...*network.Device) {
	for _, d := range devices {
		q := d.Queue()
		if _, ok := a.queues[q]; ok {
			continue
		}

		a.queues[q] = &queueInfo{
			lastLevel:       q.Size(),
			lastTime:        a.timeTeller.Now(),
			levelToDuration: make(map[int]timing.VTimeInSec),
		}
		a.order = append(a.order, q)

		q.AcceptHook(a)
	}
}

// Func records a change of queue level.
func (a *QueueAnalyzer) Func(ctx hooking.HookCtx) {
	if ctx.Pos == network.HookPosQueueDrop {
		return
	}

	q, ok := ctx.Domain.(*network.DropTailQueue)
	if !ok {
		return
	}

	info, ok := a.queues[q]
	if !ok {
		panic("queue not watched by QueueAnalyzer")
	}

	now := a.timeTeller.Now()
	info.levelToDuration[info.lastLevel] += now - info.lastTime
	info.lastTime = now
	info.lastLevel = q.Size()
	info.maxLevel = max(info.maxLevel, info.lastLevel)
}

// QueueLevel summarizes the occupancy of one queue.
type QueueLevel struct {
	Queue    string
	Average  float64
	Max      int
	Capacity int
}

// Levels returns the summary of every watched queue up to the given time,
// fullest on average first.
func (a *QueueAnalyzer) Levels(until timing.VTimeInSec) []QueueLevel {
	levels := make([]QueueLevel, 0, len(a.order))
	for _, q := range a.order {
		info := a.queues[q]
		levels = append(levels, QueueLevel{
			Queue:    q.Name(),
			Average:  info.averageLevel(until),
			Max:      info.maxLevel,
			Capacity: q.Capacity(),
		})
	}

	slices.SortStableFunc(levels, func(x, y QueueLevel) int {
		switch {
		case x.Average > y.Average:
			return -1
		case x.Average < y.Average:
			return 1
		default:
			return 0
		}
	})

	return levels
}

// Report writes the busiest queues, at most n of them, one per line.
func (a *QueueAnalyzer) Report(w io.Writer, until timing.VTimeInSec, n int) error {
	for i, l := range a.Levels(until) {
		if i >= n || l.Average == 0 {
			break
		}

		_, err := fmt.Fprintf(w, "%s, avg %.2f, max %d, cap %d\n",
			l.Queue, l.Average, l.Max, l.Capacity)
		if err != nil {
			return err
		}
	}

	return nil
}
