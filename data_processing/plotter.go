package data_processing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/wcharczuk/go-chart"
	"github.com/wcharczuk/go-chart/drawing"
)

var ErrNoPlotData = errors.New("nothing to plot")

const (
	plotWidth  = 2000
	plotHeight = 700
)

func renderBarChart(graph chart.BarChart, filename string) error {
	graph.TitleStyle = chart.StyleShow()
	graph.Background = chart.Style{
		Padding: chart.Box{
			Top:   100,
			Right: 20,
		},
	}
	graph.Width = plotWidth
	graph.Height = plotHeight

	graph.YAxis.Style.Show = true
	graph.YAxis.GridMajorStyle.Show = true
	graph.YAxis.GridMinorStyle.Show = false

	graph.XAxis.Show = true
	graph.XAxis.FontSize = 8
	graph.XAxis.TextRotationDegrees = 45

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// PlotHistogram draws the latency histogram as a PNG. Buckets below offset microseconds are left out.
func PlotHistogram(hist *Histogram, filename, title string, normalizeYAxis bool, offset int) error {
	barStyle := chart.Style{
		FillColor:   drawing.ColorFromHex("13c158"),
		StrokeColor: drawing.ColorFromHex("c19641"),
		StrokeWidth: 1,
	}

	data := hist.GetHistogram()
	keys := make([]int, 0, len(data))
	for k := range data {
		if k*hist.GetHistogramBucketWith() >= offset {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ErrNoPlotData
	}
	sort.Ints(keys)

	barWidth := plotWidth/len(keys) - 4
	if barWidth < 1 {
		barWidth = 1
	}
	norm := hist.Count()
	max := 0.0
	values := make([]chart.Value, 0, len(keys))
	for i, key := range keys {
		value := float64(data[key])
		if normalizeYAxis {
			value = value / float64(norm)
		}
		if max < value {
			max = value
		}
		chartVal := chart.Value{
			Value: value,
			Style: barStyle,
		}
		// labels in milliseconds
		if i%2 == 0 {
			chartVal.Label = fmt.Sprintf("%2.1f", float64(key*hist.GetHistogramBucketWith())/1000.0)
		}
		values = append(values, chartVal)
	}

	graph := chart.BarChart{
		Title:    title,
		BarWidth: barWidth,
		Bars:     values,
	}

	if normalizeYAxis {
		graph.YAxis.Range = &chart.ContinuousRange{
			Min: 0,
			Max: max,
		}
	} else {
		// round the tick step to the nearest thousand once counts get large
		step := int(max) / 10
		if step >= 1000 {
			rem := step % 1000
			if rem >= 500 {
				step = step - rem + 1000
			} else {
				step = step - rem
			}
		}
		if step < 1 {
			step = 1
		}
		ticks := make([]chart.Tick, 0)
		for i := 0; i <= int(max); i += step {
			ticks = append(ticks, chart.Tick{Value: float64(i), Label: fmt.Sprintf("%d", i)})
		}
		graph.YAxis.Ticks = ticks
	}

	return renderBarChart(graph, filename)
}

// PlotAggregatedLatencyOverTime draws the per-window average latency as a PNG
func PlotAggregatedLatencyOverTime(w *WindowAggregator, filename, title string) error {
	barStyle := chart.Style{
		FillColor:   drawing.ColorFromHex("13c158"),
		StrokeColor: drawing.ColorFromHex("13c158"),
		StrokeWidth: 1,
	}

	data := w.GetAverageAggregates()
	if len(data) == 0 {
		return ErrNoPlotData
	}
	keys := make([]int, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	barWidth := plotWidth / len(keys)
	if barWidth < 1 {
		barWidth = 1
	}
	max := 0.0
	values := make([]chart.Value, 0, len(keys))
	for i, key := range keys {
		value := float64(data[key])
		if value > max {
			max = value
		}
		chartVal := chart.Value{
			Value: value,
			Style: barStyle,
		}
		// elapsed seconds
		if i%10 == 0 {
			chartVal.Label = fmt.Sprintf("%2.1f", float64(key*w.GetWindowWidth())/1000.0)
		}
		values = append(values, chartVal)
	}

	graph := chart.BarChart{
		Title:    title,
		BarWidth: barWidth,
		Bars:     values,
	}
	graph.YAxis.Range = &chart.ContinuousRange{
		Min: 0,
		Max: max,
	}

	return renderBarChart(graph, filename)
}

// PlotReport writes a histogram and a latency-over-time chart for every pool of the report into dir
func PlotReport(r *LatencyReport, dir string) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}
	var errs []error
	for _, name := range r.Pools() {
		p := r.Pool(name)
		if p.Hist.Count() == 0 {
			continue
		}
		if err := PlotHistogram(p.Hist, filepath.Join(dir, name+"_histogram.png"), name+" latency (ms)", false, 0); err != nil {
			errs = append(errs, fmt.Errorf("%s histogram: %w", name, err))
		}
		if err := PlotAggregatedLatencyOverTime(p.Windows, filepath.Join(dir, name+"_over_time.png"), name+" average latency (us) over time (s)"); err != nil {
			errs = append(errs, fmt.Errorf("%s over time: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
