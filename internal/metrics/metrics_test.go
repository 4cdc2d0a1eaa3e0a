package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Command("tip", "ok")
	m.Command("tip", "ok")
	m.Command("rain", "rejected")
	m.Transfer("tip", true)
	m.Transfer("rain", false)
	m.Verification("timed_out")

	if got := testutil.ToFloat64(m.commands.WithLabelValues("tip", "ok")); got != 2 {
		t.Fatalf("expected tip/ok=2, got %v", got)
	}
	if got := testutil.ToFloat64(m.transfers.WithLabelValues("rain", "failed")); got != 1 {
		t.Fatalf("expected rain/failed=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.verifications.WithLabelValues("timed_out")); got != 1 {
		t.Fatalf("expected timed_out=1, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Command("tip", "ok")
	m.Transfer("tip", true)
	m.Verification("verified")
	m.WalletUp(true)
}

func TestWalletUp(t *testing.T) {
	m := New()
	m.WalletUp(true)
	if got := testutil.ToFloat64(m.walletUp); got != 1 {
		t.Fatalf("expected wallet_up=1, got %v", got)
	}
	m.WalletUp(false)
	if got := testutil.ToFloat64(m.walletUp); got != 0 {
		t.Fatalf("expected wallet_up=0, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.Command("help", "ok")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), `tipbot_commands_total{command="help",outcome="ok"} 1`) {
		t.Fatalf("metric missing from exposition:\n%s", body)
	}
}
