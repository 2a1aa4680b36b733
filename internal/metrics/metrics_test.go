package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) []*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestRecordRelay_LabelsByDirection(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRelay("new")
	c.RecordRelay("new")
	c.RecordRelay("admin")

	metrics := gather(t, reg, "comment_bridge_relayed_total")
	require.Len(t, metrics, 2)

	values := map[string]float64{}
	for _, m := range metrics {
		values[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	assert.Equal(t, 2.0, values["new"])
	assert.Equal(t, 1.0, values["admin"])
}

func TestRecordCommentSaved_CountsMedia(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCommentSaved(3)
	c.RecordCommentSaved(0)

	assert.Equal(t, 2.0, gather(t, reg, "comment_bridge_comments_saved_total")[0].GetCounter().GetValue())
	assert.Equal(t, 3.0, gather(t, reg, "comment_bridge_comment_media_saved_total")[0].GetCounter().GetValue())
}

func TestRecordAlbumFlush_ObservesSize(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAlbumFlush(3)

	h := gather(t, reg, "comment_bridge_album_items")[0].GetHistogram()
	assert.Equal(t, uint64(1), h.GetSampleCount())
	assert.Equal(t, 3.0, h.GetSampleSum())
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordRateLimited()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "comment_bridge_rate_limited_total 1"))
}
