package measurement

// Measurement keeps one latency row per dispatched request and writes them to CSV files of at most
// listLength rows each.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/xiaogangfan/rocketmq/ids"
	"github.com/xiaogangfan/rocketmq/log"
	"github.com/xiaogangfan/rocketmq/protocol"
)

// local Epoch equal to January 1, 2023 00:00:00 UTC
const START_EPOCH int64 = 1672531200000000

var Header = []string{"thisNodeId", "opcode", "pool", "outcome", "startTime", "endTime"}

type Measurement struct {
	thisNodeId ids.ID
	dir        string
	prefix     string
	data       []measurementRow

	//internal variables for tracking/updating
	mu          sync.Mutex
	listLength  int
	fileCounter int
	closed      bool
	flushes     sync.WaitGroup
	errs        []error
}

type measurementRow struct {
	opcode  protocol.Opcode
	pool    string
	outcome string
	start   int64 //begin time, in microseconds since START_EPOCH
	end     int64 //end time, in microseconds since START_EPOCH
}

func NewMeasurement(nodeId ids.ID, dir string, csvPrefix string, listSize int) *Measurement {
	return &Measurement{
		thisNodeId: nodeId,
		dir:        dir,
		prefix:     csvPrefix,
		data:       make([]measurementRow, 0, listSize),
		listLength: listSize,
	}
}

// Record is called by the dispatcher after every request. Rows after Close are dropped.
func (m *Measurement) Record(op protocol.Opcode, pool string, outcome string, startMicro, endMicro int64) {
	row := measurementRow{
		opcode:  op,
		pool:    pool,
		outcome: outcome,
		start:   startMicro - START_EPOCH,
		end:     endMicro - START_EPOCH,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.data = append(m.data, row)

	//flush list to csv if full
	if len(m.data) >= m.listLength {
		m.flushAsync(m.data, m.fileCounter)
		m.fileCounter++
		m.data = make([]measurementRow, 0, m.listLength)
	}
}

// must hold m.mu
func (m *Measurement) flushAsync(data []measurementRow, counter int) {
	m.flushes.Add(1)
	go func() {
		defer m.flushes.Done()
		if err := m.flush(data, counter); err != nil {
			log.Errorf("measurement flush failed: %v", err)
			m.mu.Lock()
			m.errs = append(m.errs, err)
			m.mu.Unlock()
		}
	}()
}

// Close flushes the remaining rows and waits for pending files. Nodes call it when they stop.
func (m *Measurement) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if len(m.data) > 0 {
		m.flushAsync(m.data, m.fileCounter)
		m.fileCounter++
		m.data = nil
	}
	m.mu.Unlock()

	m.flushes.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	return errors.Join(m.errs...)
}

func (m *Measurement) fileName(counter int) string {
	return filepath.Join(m.dir, m.prefix+"_"+m.thisNodeId.String()+"_"+strconv.Itoa(counter)+".csv")
}

func (m *Measurement) flush(data []measurementRow, counter int) error {
	if err := os.MkdirAll(m.dir, os.ModePerm); err != nil {
		return fmt.Errorf("error creating directory %v: %w", m.dir, err)
	}
	fileName := m.fileName(counter)
	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", fileName, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(Header); err != nil {
		return err
	}
	for _, item := range data {
		w.Write([]string{
			m.thisNodeId.String(),
			item.opcode.String(),
			item.pool,
			item.outcome,
			strconv.FormatInt(item.start, 10),
			strconv.FormatInt(item.end, 10),
		})
	}
	w.Flush()
	log.Debugf("Flushed %d measurement rows to %s", len(data), fileName)
	return w.Error()
}
