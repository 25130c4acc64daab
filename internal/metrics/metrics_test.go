package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("create_booking", 201)
		ObserveTransition("confirm", "ok")
		ObservePayment("authorize", time.Now(), nil)
		ObservePayment("capture", time.Now(), errors.New("boom"))
		IncReleaseRetry("completed")
		IncBookingCreated()
	})

	before := testutil.ToFloat64(releaseFailures)
	IncReleaseFailure()
	assert.Equal(t, before+1, testutil.ToFloat64(releaseFailures))

	conflicts := testutil.ToFloat64(bookingConflicts)
	IncBookingConflict()
	assert.Equal(t, conflicts+1, testutil.ToFloat64(bookingConflicts))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(200))
	assert.Equal(t, "4xx", statusClass(409))
	assert.Equal(t, "5xx", statusClass(503))
}
