package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/metrics"
)

// value finds the value of the sample of family name whose
// labels contain all of want.
func value(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	next:
		for _, m := range family.GetMetric() {
			labels := make(map[string]string)
			for _, pair := range m.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue next
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("no sample %s%v", name, want)
	return 0
}

func TestRecord(t *testing.T) {
	assert := assert.New(t)
	reg := prometheus.NewRegistry()
	m := New(reg, "")

	done := metrics.Timer(m, "ReadFile")
	assert.Equal(1.0, value(t, reg, "dokanfs_calls_in_flight", map[string]string{"operation": "ReadFile"}))
	done(dokan.Success)
	assert.Equal(0.0, value(t, reg, "dokanfs_calls_in_flight", map[string]string{"operation": "ReadFile"}))

	m.RecordCall("CreateFile", dokan.NotFound, time.Millisecond)
	m.RecordCallStart("CreateFile")
	m.RecordCall("CreateFile", dokan.NotFound, time.Millisecond)
	assert.Equal(1.0, value(t, reg, "dokanfs_calls_total",
		map[string]string{"operation": "ReadFile", "status": dokan.Success.String()}))
	assert.Equal(2.0, value(t, reg, "dokanfs_calls_total",
		map[string]string{"operation": "CreateFile", "status": dokan.NotFound.String()}))
	assert.Equal(2.0, value(t, reg, "dokanfs_call_duration_seconds",
		map[string]string{"operation": "CreateFile"}))

	m.RecordBytes(metrics.DirectionWrite, 100)
	m.RecordBytes(metrics.DirectionWrite, 0)
	m.RecordBytes(metrics.DirectionWrite, 28)
	assert.Equal(128.0, value(t, reg, "dokanfs_bytes_transferred_total",
		map[string]string{"direction": "write"}))

	m.SetOpenHandles(3)
	assert.Equal(3.0, value(t, reg, "dokanfs_open_handles", nil))
}

func TestNilRegistry(t *testing.T) {
	assert := assert.New(t)
	m := New(nil, "x")
	assert.Equal(metrics.Noop(), m)
	metrics.Timer(m, "CloseFile")(dokan.Success)
}

func TestHandler(t *testing.T) {
	assert := assert.New(t)
	reg := prometheus.NewRegistry()
	m := New(reg, "custom")
	m.SetOpenHandles(7)

	server := httptest.NewServer(Handler(reg))
	defer server.Close()
	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	assert.NoError(err)
	assert.Contains(buf.String(), "custom_open_handles 7")
}
