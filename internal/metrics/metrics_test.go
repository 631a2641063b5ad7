package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/sensor-node/internal/dht"
	"github.com/sweeney/sensor-node/internal/fabric"
	"github.com/sweeney/sensor-node/internal/mqtt"
)

var _ mqtt.Stats = (*Metrics)(nil)

func TestReadAttemptFailedByReason(t *testing.T) {
	m := New()
	var sink dht.ErrorSink = m.ReadAttemptFailed
	sink(1, dht.ErrNoResponse)
	sink(2, fmt.Errorf("wrapped: %w", dht.ErrChecksumMismatch))
	sink(3, dht.ErrNoResponse)
	sink(1, errors.New("gpio busy"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dhtFailures.WithLabelValues("no_response")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dhtFailures.WithLabelValues("checksum")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dhtFailures.WithLabelValues("other")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.dhtFailures.WithLabelValues("invalid_response")))
}

func TestSessionCounters(t *testing.T) {
	m := New()
	m.ConnectAttempt(errors.New("refused"))
	m.ConnectAttempt(nil)
	m.PublishAttempt(fabric.TopicHumidity, nil)
	m.PublishAttempt(fabric.TopicHumidity, errors.New("eof"))
	m.KeepAlive(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connects.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connects.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishes.WithLabelValues("humidity", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishes.WithLabelValues("humidity", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.keepAlives.WithLabelValues("ok")))
}

func TestRegistrySessionState(t *testing.T) {
	m := New()
	connected := false
	m.RegisterSessionState(func() bool { return connected })

	const want = `
# HELP sensor_node_mqtt_connected 1 while a broker session is established
# TYPE sensor_node_mqtt_connected gauge
sensor_node_mqtt_connected %d
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(),
		strings.NewReader(fmt.Sprintf(want, 0)), "sensor_node_mqtt_connected"))
	connected = true
	require.NoError(t, testutil.GatherAndCompare(m.Registry(),
		strings.NewReader(fmt.Sprintf(want, 1)), "sensor_node_mqtt_connected"))

	m.PublishAttempt(fabric.TopicHumidity, nil)
	m.PublishAttempt(fabric.TopicTemperature, nil)
	n, err := testutil.GatherAndCount(m.Registry(), "sensor_node_mqtt_publishes_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Alert(fabric.AlertMotion)
	m.ReadCompleted(nil)
	connected := true
	m.RegisterSessionState(func() bool { return connected })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `sensor_node_input_alerts_total{source="motion"} 1`), text)
	assert.True(t, strings.Contains(text, `sensor_node_dht_reads_total{result="ok"} 1`), text)
	assert.True(t, strings.Contains(text, "sensor_node_mqtt_connected 1"), text)
}
