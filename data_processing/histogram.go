package data_processing

import (
	"encoding/csv"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
)

// Histogram counts latencies in fixed-width buckets of microseconds
type Histogram struct {
	hist                 map[int]int
	histogramBucketWidth int

	sync.RWMutex
}

func NewHistogram(bucketWidthUs int) *Histogram {
	if bucketWidthUs <= 0 {
		bucketWidthUs = 1
	}
	return &Histogram{
		hist:                 make(map[int]int),
		histogramBucketWidth: bucketWidthUs,
	}
}

func (h *Histogram) GetHistogramBucketWith() int {
	return h.histogramBucketWidth
}

func (h *Histogram) Add(measurement int) {
	if measurement < 0 {
		measurement = 0
	}
	h.Lock()
	defer h.Unlock()
	h.hist[measurement/h.histogramBucketWidth] += 1
}

func (h *Histogram) Count() int {
	h.RLock()
	defer h.RUnlock()
	count := 0
	for _, c := range h.hist {
		count += c
	}
	return count
}

// Mean is approximated by bucket midpoints. 0 for an empty histogram.
func (h *Histogram) Mean() int {
	h.RLock()
	defer h.RUnlock()
	count := 0
	sum := 0
	for i, c := range h.hist {
		count += c
		sum += c * (i*h.histogramBucketWidth + h.histogramBucketWidth/2)
	}
	if count == 0 {
		return 0
	}
	return sum / count
}

func (h *Histogram) Variance() float64 {
	mean := h.Mean()
	count := h.Count()
	if count < 2 {
		return 0
	}
	h.RLock()
	defer h.RUnlock()
	sum := 0
	for i, c := range h.hist {
		diff := i*h.histogramBucketWidth + h.histogramBucketWidth/2 - mean
		sum += c * diff * diff
	}
	return float64(sum) / float64(count-1)
}

func (h *Histogram) StdDev() float64 {
	return math.Sqrt(h.Variance())
}

func (h *Histogram) sortedBuckets() []int {
	buckets := make([]int, 0, len(h.hist))
	for b := range h.hist {
		buckets = append(buckets, b)
	}
	sort.Ints(buckets)
	return buckets
}

// ApproxPercentile returns the lower edge of the bucket holding the p-th percentile
func (h *Histogram) ApproxPercentile(p float64) int {
	count := h.Count()
	h.RLock()
	defer h.RUnlock()
	buckets := h.sortedBuckets()
	if len(buckets) == 0 {
		return 0
	}
	target := int(math.Ceil(float64(count) * p))
	c := 0
	for _, b := range buckets {
		c += h.hist[b]
		if c >= target {
			return b * h.histogramBucketWidth
		}
	}
	return buckets[len(buckets)-1] * h.histogramBucketWidth
}

func (h *Histogram) Max() int {
	h.RLock()
	defer h.RUnlock()
	maxBucket := 0
	for i, c := range h.hist {
		if i > maxBucket && c > 0 {
			maxBucket = i
		}
	}
	return maxBucket*h.histogramBucketWidth + h.histogramBucketWidth/2
}

// GetHistogram returns every bucket from 0 up to the highest non-empty one, empty ones as 0
func (h *Histogram) GetHistogram() map[int]int {
	h.RLock()
	defer h.RUnlock()
	maxBucket := -1
	for i, c := range h.hist {
		if i > maxBucket && c > 0 {
			maxBucket = i
		}
	}
	dense := make(map[int]int, maxBucket+1)
	for b := 0; b <= maxBucket; b++ {
		dense[b] = h.hist[b]
	}
	return dense
}

func (h *Histogram) WriteToCSV(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	headers := []string{"bucket number (bucket width=" + strconv.Itoa(h.histogramBucketWidth) + " microseconds)", "count"}
	if err := writer.Write(headers); err != nil {
		return err
	}
	data := h.GetHistogram()
	for b := 0; b < len(data); b++ {
		writer.Write([]string{strconv.Itoa(b), strconv.Itoa(data[b])})
	}
	writer.Flush()
	return writer.Error()
}
