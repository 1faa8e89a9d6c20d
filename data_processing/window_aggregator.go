package data_processing

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"
	"sync"
)

type windowStat struct {
	sum   int
	count int
	max   int
}

// WindowAggregator buckets requests by start time into windows of windowWidthMs and keeps the latency
// sum, max and request count of each window.
type WindowAggregator struct {
	windows       map[int]*windowStat
	windowWidthMs int

	sync.RWMutex
}

func NewWindowAggregator(windowWidthMs int) *WindowAggregator {
	if windowWidthMs <= 0 {
		windowWidthMs = 1
	}
	return &WindowAggregator{
		windows:       make(map[int]*windowStat),
		windowWidthMs: windowWidthMs,
	}
}

func (w *WindowAggregator) GetWindowWidth() int {
	return w.windowWidthMs
}

// AdjustForEpochTime renumbers the windows so the one holding et becomes window 0
func (w *WindowAggregator) AdjustForEpochTime(et int) {
	w.Lock()
	defer w.Unlock()
	shift := et / w.windowWidthMs
	shifted := make(map[int]*windowStat, len(w.windows))
	for t, ws := range w.windows {
		shifted[t-shift] = ws
	}
	w.windows = shifted
}

func (w *WindowAggregator) Add(startTimeMs, latencyUs int) {
	w.Lock()
	defer w.Unlock()
	bucket := startTimeMs / w.windowWidthMs
	ws, ok := w.windows[bucket]
	if !ok {
		ws = &windowStat{}
		w.windows[bucket] = ws
	}
	ws.sum += latencyUs
	ws.count++
	if latencyUs > ws.max {
		ws.max = latencyUs
	}
}

func (w *WindowAggregator) GetAverageAggregates() map[int]int {
	w.RLock()
	defer w.RUnlock()
	avg := make(map[int]int, len(w.windows))
	for k, ws := range w.windows {
		avg[k] = ws.sum / ws.count
	}
	return avg
}

// Throughput is requests per second for every window
func (w *WindowAggregator) Throughput() map[int]float64 {
	w.RLock()
	defer w.RUnlock()
	tput := make(map[int]float64, len(w.windows))
	for k, ws := range w.windows {
		tput[k] = float64(ws.count) * 1000.0 / float64(w.windowWidthMs)
	}
	return tput
}

func (w *WindowAggregator) sortedWindows() []int {
	keys := make([]int, 0, len(w.windows))
	for k := range w.windows {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// WriteToCSV writes one row per window: elapsed ms, requests, average and max latency
func (w *WindowAggregator) WriteToCSV(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"elapsed time (ms)", "requests", "average latency (us)", "max latency (us)"}); err != nil {
		return err
	}
	w.RLock()
	for _, k := range w.sortedWindows() {
		ws := w.windows[k]
		writer.Write([]string{
			strconv.Itoa(k * w.windowWidthMs),
			strconv.Itoa(ws.count),
			strconv.Itoa(ws.sum / ws.count),
			strconv.Itoa(ws.max),
		})
	}
	w.RUnlock()
	writer.Flush()
	return writer.Error()
}
