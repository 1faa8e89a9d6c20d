package data_processing

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xiaogangfan/rocketmq/log"
)

// AllPools is the pseudo pool aggregating every row of a report
const AllPools = "all"

var ErrBadRow = errors.New("malformed measurement row")

// PoolLatency aggregates the latency rows of one worker pool
type PoolLatency struct {
	Pool     string
	Hist     *Histogram
	Windows  *WindowAggregator
	Outcomes map[string]int
}

func newPoolLatency(pool string, bucketUs, windowMs int) *PoolLatency {
	return &PoolLatency{
		Pool:     pool,
		Hist:     NewHistogram(bucketUs),
		Windows:  NewWindowAggregator(windowMs),
		Outcomes: make(map[string]int),
	}
}

// LatencyReport is built from the measurement CSV files written by snodes
type LatencyReport struct {
	bucketUs int
	windowMs int
	pools    map[string]*PoolLatency
	minStart int64
	rows     int
}

func NewLatencyReport(bucketUs, windowMs int) *LatencyReport {
	return &LatencyReport{
		bucketUs: bucketUs,
		windowMs: windowMs,
		pools:    make(map[string]*PoolLatency),
		minStart: math.MaxInt64,
	}
}

func (r *LatencyReport) pool(name string) *PoolLatency {
	p, ok := r.pools[name]
	if !ok {
		p = newPoolLatency(name, r.bucketUs, r.windowMs)
		r.pools[name] = p
	}
	return p
}

// AddRow takes a row in measurement.Header order
func (r *LatencyReport) AddRow(row []string) error {
	if len(row) != 6 {
		return fmt.Errorf("%w: %d columns", ErrBadRow, len(row))
	}
	start, err := strconv.ParseInt(row[4], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: start %q", ErrBadRow, row[4])
	}
	end, err := strconv.ParseInt(row[5], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: end %q", ErrBadRow, row[5])
	}
	latency := int(end - start)
	if start < r.minStart {
		r.minStart = start
	}
	for _, name := range []string{row[2], AllPools} {
		p := r.pool(name)
		p.Hist.Add(latency)
		p.Windows.Add(int(start/1000), latency)
		p.Outcomes[row[3]]++
	}
	r.rows++
	return nil
}

func openMaybeGzip(filename string) (io.ReadCloser, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(filename, ".gz") {
		return file, nil
	}
	gz, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{gz, file}, nil
}

// LoadFile reads one measurement CSV, plain or gzipped. Malformed rows are skipped with a warning.
func (r *LatencyReport) LoadFile(filename string) error {
	in, err := openMaybeGzip(filename)
	if err != nil {
		return err
	}
	defer in.Close()

	reader := csv.NewReader(in)
	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	if len(header) == 0 || header[0] != "thisNodeId" {
		return fmt.Errorf("%s: %w: unexpected header %v", filename, ErrBadRow, header)
	}
	skipped := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: %w", filename, err)
		}
		if err := r.AddRow(row); err != nil {
			skipped++
		}
	}
	if skipped > 0 {
		log.Warningf("skipped %d malformed rows in %s", skipped, filename)
	}
	return nil
}

// LoadDir reads every .csv and .csv.gz file directly under dir
func (r *LatencyReport) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".csv.gz")) {
			continue
		}
		if err := r.LoadFile(filepath.Join(dir, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Finish moves the time windows so the earliest request falls in window 0
func (r *LatencyReport) Finish() {
	if r.rows == 0 {
		return
	}
	for _, p := range r.pools {
		p.Windows.AdjustForEpochTime(int(r.minStart / 1000))
	}
}

func (r *LatencyReport) Rows() int {
	return r.rows
}

// Pools returns the pool names sorted, AllPools included
func (r *LatencyReport) Pools() []string {
	names := make([]string, 0, len(r.pools))
	for name := range r.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *LatencyReport) Pool(name string) *PoolLatency {
	return r.pools[name]
}

func (r *LatencyReport) WriteSummary(w io.Writer) error {
	for _, name := range r.Pools() {
		p := r.pools[name]
		outcomes := make([]string, 0, len(p.Outcomes))
		for o, c := range p.Outcomes {
			outcomes = append(outcomes, fmt.Sprintf("%s=%d", o, c))
		}
		sort.Strings(outcomes)
		_, err := fmt.Fprintf(w, "%s: count=%d mean=%dus stddev=%.1fus p50=%dus p99=%dus max=%dus [%s]\n",
			name, p.Hist.Count(), p.Hist.Mean(), p.Hist.StdDev(),
			p.Hist.ApproxPercentile(0.5), p.Hist.ApproxPercentile(0.99), p.Hist.Max(),
			strings.Join(outcomes, " "))
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteCSVs writes <pool>_histogram.csv and <pool>_windows.csv for every pool into dir
func (r *LatencyReport) WriteCSVs(dir string) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}
	for _, name := range r.Pools() {
		p := r.pools[name]
		if err := p.Hist.WriteToCSV(filepath.Join(dir, name+"_histogram.csv")); err != nil {
			return err
		}
		if err := p.Windows.WriteToCSV(filepath.Join(dir, name+"_windows.csv")); err != nil {
			return err
		}
	}
	return nil
}
