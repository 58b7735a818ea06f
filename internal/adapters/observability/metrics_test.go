package observability_test

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"newsletter/internal/adapters/observability"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	return string(body)
}

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry(nil)

	// record one sample so counters are non-zero
	observability.ObserveHTTP("/health_check", "GET", 200, 12*time.Millisecond)
	observability.ObserveSubscription("created")

	out := scrape(t, observability.MetricsHandler(reg))
	for _, name := range []string{"newsletter_http_requests_total", "newsletter_subscriptions_total"} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %s in output", name)
		}
	}
}

func TestMetricsServerExportsDBStats(t *testing.T) {
	// sql.Open does not dial, so a DSN pointing nowhere is enough for stats
	db, err := sql.Open("mysql", "root:root@tcp(127.0.0.1:1)/none")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	srv := observability.NewMetricsServer(":0", observability.InitRegistry(db))
	out := scrape(t, srv.Handler)
	if !strings.Contains(out, `go_sql_max_open_connections{db_name="newsletter"}`) {
		t.Fatalf("expected db stats in output")
	}
}
