package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func findMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	if NewCollector(prometheus.NewRegistry()) == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestRecordMutation_LabelsByActionAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMutation("mark_sold", "ok")
	c.RecordMutation("mark_sold", "ok")
	c.RecordMutation("delete_listing", "error")

	mf := findMetric(t, reg, "semesterswap_mutations_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label sets, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		labels := map[string]string{}
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		if labels["action"] == "mark_sold" && m.GetCounter().GetValue() != 2 {
			t.Errorf("mark_sold count = %v, want 2", m.GetCounter().GetValue())
		}
	}
}

func TestRecordSyncReload_ObservesLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncReload("marketplace", 20*time.Millisecond)

	mf := findMetric(t, reg, "semesterswap_sync_reload_seconds")
	if got := mf.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestRecordImagesUploaded_Adds(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordImagesUploaded(3)
	c.RecordImagesUploaded(2)

	mf := findMetric(t, reg, "semesterswap_images_uploaded_total")
	if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 5 {
		t.Errorf("images uploaded = %v, want 5", got)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordNotification("items")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body, _ := io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), `semesterswap_change_notifications_total{table="items"} 1`) {
		t.Errorf("metrics output missing notification counter:\n%s", body)
	}
}
