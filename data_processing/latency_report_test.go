package data_processing

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaogangfan/rocketmq/ids"
	"github.com/xiaogangfan/rocketmq/measurement"
	"github.com/xiaogangfan/rocketmq/protocol"
)

const sampleCSV = `thisNodeId,opcode,pool,outcome,startTime,endTime
1.1,SEND_MESSAGE_V2,send,ok,1000000,1000150
1.1,SEND_MESSAGE_V2,send,ok,1000500,1000750
1.1,HEART_BEAT,heartbeat,ok,2000000,2000010
1.1,HEART_BEAT,heartbeat,ok,not-a-number,2000010
`

func writeGzip(t *testing.T, filename string, content string) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(filename, buf.Bytes(), 0644))
}

func TestLoadDirReadsPlainAndGzip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte(sampleCSV), 0644))
	writeGzip(t, filepath.Join(dir, "b.csv.gz"), sampleCSV)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	r := NewLatencyReport(100, 1000)
	require.NoError(t, r.LoadDir(dir))
	r.Finish()

	assert.Equal(t, 6, r.Rows())
	assert.Equal(t, []string{AllPools, "heartbeat", "send"}, r.Pools())

	send := r.Pool("send")
	assert.Equal(t, 4, send.Hist.Count())
	assert.Equal(t, 4, send.Outcomes["ok"])
	assert.Equal(t, 6, r.Pool(AllPools).Hist.Count())

	// the earliest request starts the first window
	windows := r.Pool(AllPools).Windows.GetAverageAggregates()
	assert.Contains(t, windows, 0)
	assert.Contains(t, windows, 1)
}

func TestLoadFileRejectsForeignCSV(t *testing.T) {
	file := filepath.Join(t.TempDir(), "x.csv")
	require.NoError(t, os.WriteFile(file, []byte("a,b\n1,2\n"), 0644))
	assert.ErrorIs(t, NewLatencyReport(10, 10).LoadFile(file), ErrBadRow)
}

func TestAddRowColumnCount(t *testing.T) {
	assert.ErrorIs(t, NewLatencyReport(10, 10).AddRow([]string{"1.1", "x"}), ErrBadRow)
}

func TestSummaryAndCSVs(t *testing.T) {
	dir := t.TempDir()
	r := NewLatencyReport(100, 1000)
	require.NoError(t, r.AddRow([]string{"1.1", "HEART_BEAT", "heartbeat", "ok", "10", "60"}))
	require.NoError(t, r.AddRow([]string{"1.1", "HEART_BEAT", "heartbeat", "saturated", "20", "20"}))
	r.Finish()

	var out bytes.Buffer
	require.NoError(t, r.WriteSummary(&out))
	assert.Contains(t, out.String(), "heartbeat: count=2")
	assert.Contains(t, out.String(), "ok=1 saturated=1")

	require.NoError(t, r.WriteCSVs(dir))
	assert.FileExists(t, filepath.Join(dir, "heartbeat_histogram.csv"))
	assert.FileExists(t, filepath.Join(dir, "all_windows.csv"))
}

func TestReadsMeasurementOutput(t *testing.T) {
	dir := t.TempDir()
	m := measurement.NewMeasurement(*ids.NewID(1, 2), dir, "latency", 2)
	for i := int64(0); i < 5; i++ {
		start := measurement.START_EPOCH + i*1000
		m.Record(protocol.SnodePullMessage, "pull", "ok", start, start+40)
	}
	require.NoError(t, m.Close())

	r := NewLatencyReport(10, 1)
	require.NoError(t, r.LoadDir(dir))
	assert.Equal(t, 5, r.Rows())
	assert.Equal(t, 5, r.Pool("pull").Hist.Count())
	assert.Equal(t, 45, r.Pool("pull").Hist.Mean())
}
