package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRegisteredCollectors(t *testing.T) {
	QueueDepth.WithLabelValues("threaded").Set(3)
	OpsCompleted.WithLabelValues("ok").Inc()
	PurgatorySize.WithLabelValues("default").Set(1)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "parafs_opqueue_depth")
	require.Contains(t, body, "parafs_opmgr_ops_completed_total")
	require.Contains(t, body, "parafs_collection_purgatory_handles")
	require.True(t, strings.Contains(body, `queue="threaded"`))
}
