package collector

import (
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/tturner/farmreg/internal/catalog"
)

func testRow() Row {
	temp := 25.1
	return Row{
		Timestamp: time.Date(2025, 12, 26, 9, 30, 0, 0, time.UTC),
		RunID:     "run-1",
		Samples:   6,
		Values: map[string]*float64{
			"indoor_current_temperature": &temp,
			RainSensor:                   nil,
		},
	}
}

func testSignals() []*catalog.Signal {
	cat := catalog.Default()
	return []*catalog.Signal{cat.MustLookup("indoor_current_temperature"), cat.MustLookup(RainSensor)}
}

func TestSQLiteSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.db")
	sink, err := OpenSQLite(path, testSignals())
	assert.NilError(t, err)
	defer sink.Close()

	assert.NilError(t, sink.WriteRow(testRow()))
	assert.NilError(t, sink.WriteRow(testRow()))

	var count int
	assert.NilError(t, sink.DB().QueryRow(`SELECT COUNT(*) FROM readings`).Scan(&count))
	assert.Equal(t, count, 4)

	var value float64
	var unit string
	err = sink.DB().QueryRow(`SELECT value, unit FROM readings WHERE signal = ? LIMIT 1`, "indoor_current_temperature").Scan(&value, &unit)
	assert.NilError(t, err)
	assert.Equal(t, value, 25.1)
	assert.Equal(t, unit, "°C")

	var nulls int
	assert.NilError(t, sink.DB().QueryRow(`SELECT COUNT(*) FROM readings WHERE value IS NULL`).Scan(&nulls))
	assert.Equal(t, nulls, 2)
}

func TestSQLiteSinkReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.db")
	for i := 0; i < 2; i++ {
		sink, err := OpenSQLite(path, testSignals())
		assert.NilError(t, err)
		assert.NilError(t, sink.WriteRow(testRow()))
		assert.NilError(t, sink.Close())
	}

	sink, err := OpenSQLite(path, testSignals())
	assert.NilError(t, err)
	defer sink.Close()
	var count int
	assert.NilError(t, sink.DB().QueryRow(`SELECT COUNT(*) FROM readings`).Scan(&count))
	assert.Equal(t, count, 4)
}

func TestMQTTSinkPublishesTelemetry(t *testing.T) {
	var topic string
	var qos byte
	var payload []byte
	closed := false
	sink := newMQTTSink(MQTTConfig{QoS: 1}, func(tp string, q byte, p []byte) error {
		topic, qos, payload = tp, q, p
		return nil
	}, func() { closed = true }, nil)

	assert.NilError(t, sink.WriteRow(testRow()))
	assert.Equal(t, topic, DefaultTopic)
	assert.Equal(t, qos, byte(1))

	var got Telemetry
	assert.NilError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, got.TS, int64(1766741400000))
	assert.DeepEqual(t, got.Values, map[string]float64{"indoor_current_temperature": 25.1})

	assert.NilError(t, sink.Close())
	assert.Assert(t, closed)
}

func TestMQTTSinkPublishError(t *testing.T) {
	sink := newMQTTSink(MQTTConfig{Topic: "farm/gh1"}, func(string, byte, []byte) error {
		return errors.New("not connected")
	}, nil, nil)
	assert.ErrorContains(t, sink.WriteRow(testRow()), "not connected")
}

type recordingSink struct {
	rows   int
	err    error
	closed bool
}

func (r *recordingSink) WriteRow(Row) error { r.rows++; return r.err }
func (r *recordingSink) Close() error       { r.closed = true; return nil }

func TestMultiSink(t *testing.T) {
	failing := &recordingSink{err: errors.New("disk full")}
	ok := &recordingSink{}
	m := MultiSink{failing, ok}

	assert.ErrorContains(t, m.WriteRow(testRow()), "disk full")
	assert.Equal(t, ok.rows, 1)
	assert.NilError(t, m.Close())
	assert.Assert(t, failing.closed && ok.closed)
}

func TestMirroredKeepsEitherCopy(t *testing.T) {
	primary := &recordingSink{err: errors.New("share offline")}
	backup := &recordingSink{}
	m := &Mirrored{Primary: primary, Backup: backup}

	assert.NilError(t, m.WriteRow(testRow()))
	assert.Equal(t, backup.rows, 1)

	backup.err = errors.New("desktop full")
	assert.ErrorContains(t, m.WriteRow(testRow()), "both failed")

	primary.err = nil
	assert.NilError(t, m.WriteRow(testRow()))

	assert.NilError(t, m.Close())
	assert.Assert(t, primary.closed && backup.closed)
}

func TestMQTTDialFailureReturns(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	addr := l.Addr().String()
	l.Close()

	start := time.Now()
	_, err = DialMQTT(MQTTConfig{Broker: "tcp://" + addr, Timeout: 300 * time.Millisecond}, nil)
	assert.ErrorContains(t, err, "connect to MQTT broker")
	assert.Assert(t, time.Since(start) < 2*time.Second)
}
