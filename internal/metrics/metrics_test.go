// SPDX-License-Identifier: MIT
package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vodsaver/vodsaver/internal/metrics"
)

func scrape(t *testing.T) string {
	t.Helper()
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	promhttp.Handler().ServeHTTP(recorder, req)
	return recorder.Body.String()
}

func TestRunOutcomes(t *testing.T) {
	outcomes := []string{"downloaded", "up_to_date", "live_deferred", "no_vods", "dry_run", "error"}
	for _, outcome := range outcomes {
		metrics.IncRun(outcome)
	}

	body := scrape(t)
	if !strings.Contains(body, "vodsaver_runs_total") {
		t.Fatal("expected vodsaver_runs_total metric to be present")
	}
	for _, outcome := range outcomes {
		label := `outcome="` + outcome + `"`
		if !strings.Contains(body, label) {
			t.Errorf("expected label %q in metrics output", label)
		}
	}
}

func TestFailureStages(t *testing.T) {
	metrics.IncFailure("download")
	metrics.IncFailure("auth")

	body := scrape(t)
	if !strings.Contains(body, "vodsaver_failures_total") {
		t.Fatal("expected vodsaver_failures_total metric to be present")
	}
	if !strings.Contains(body, `stage="download"`) {
		t.Error("expected download stage label in metrics output")
	}
	if !strings.Contains(body, `stage="auth"`) {
		t.Error("expected auth stage label in metrics output")
	}
}

func TestDownloadObservations(t *testing.T) {
	metrics.ObserveDownloadDuration(95 * time.Second)
	metrics.AddDownloadedBytes(1 << 20)
	metrics.RecordDownloadSuccess(time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC))

	body := scrape(t)
	for _, name := range []string{
		"vodsaver_download_duration_seconds",
		"vodsaver_downloaded_bytes_total",
		"vodsaver_last_success_timestamp_seconds",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s metric to be present", name)
		}
	}
}

func TestPushToGateway(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	metrics.IncRun("downloaded")
	metrics.Push(context.Background(), srv.URL, "vodsaver")

	if gotMethod != http.MethodPut {
		t.Errorf("expected PUT to gateway, got %q", gotMethod)
	}
	if !strings.Contains(gotPath, "/metrics/job/vodsaver") {
		t.Errorf("unexpected push path %q", gotPath)
	}
}

func TestPushEmptyURLIsNoop(t *testing.T) {
	// Must not panic or block.
	metrics.Push(context.Background(), "", "vodsaver")
}

func TestPushUnreachableGatewayDoesNotFail(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// Refused connection is logged and swallowed.
	metrics.Push(ctx, "http://127.0.0.1:1", "vodsaver")
}
