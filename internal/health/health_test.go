package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("broken") }

func TestStatusAggregation(t *testing.T) {
	tests := []struct {
		name     string
		critical Check
		optional Check
		want     Status
	}{
		{"all healthy", ok, ok, StatusHealthy},
		{"optional failure degrades", ok, failing, StatusDegraded},
		{"critical failure", failing, ok, StatusUnhealthy},
		{"both fail", failing, failing, StatusUnhealthy},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := NewChecker()
			c.Register("journal", true, test.critical)
			c.Register("dbus", false, test.optional)
			c.Run(context.Background())
			assert.Equal(t, test.want, c.Status())
		})
	}
}

func TestStatusUnknownBeforeRun(t *testing.T) {
	c := NewChecker()
	assert.Equal(t, StatusHealthy, c.Status(), "no checks is healthy")

	c.Register("journal", true, ok)
	assert.Equal(t, StatusUnknown, c.Status())

	c.Run(context.Background())
	assert.Equal(t, StatusHealthy, c.Status())
}

func TestRunRecordsErrorsAndTimeouts(t *testing.T) {
	c := NewChecker()
	c.timeout = 20 * time.Millisecond
	c.Register("slow", false, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	c.Register("bad", false, failing)
	c.Register("good", false, ok)

	results := c.Run(context.Background())
	require.Len(t, results, 3)
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, StatusUnhealthy, results["bad"].Status)
	assert.Equal(t, "broken", results["bad"].Error)
	assert.Equal(t, StatusHealthy, results["good"].Status)
	assert.Equal(t, []string{"bad", "good", "slow"}, c.Names())
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("journal", true, ok)

	get := func() (int, Report) {
		rec := httptest.NewRecorder()
		c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		var rep Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
		return rec.Code, rep
	}

	code, rep := get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, rep.Ready)

	c.SetReady(true)
	code, rep = get()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, rep.Status)
	assert.Contains(t, rep.Components, "journal")

	c.Register("journal", true, failing)
	code, rep = get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusUnhealthy, rep.Status)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}
