package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"djchat/backend/internal/chathub"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recorder(t *testing.T) {
	m := New()

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.MessageDelivered(chathub.OutcomeConfirmed)
	m.MessageDelivered(chathub.OutcomeConfirmed)
	m.MessageDelivered(chathub.OutcomeTimeout)
	m.BroadcastReceived(chathub.BroadcastApplied)
	m.BroadcastReceived(chathub.BroadcastDuplicate)
	m.BroadcastReceived(chathub.BroadcastDuplicate)
	m.PublishFailed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesSent.WithLabelValues(chathub.OutcomeConfirmed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesSent.WithLabelValues(chathub.OutcomeTimeout)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.broadcastEvents.WithLabelValues(string(chathub.BroadcastDuplicate))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishFailures))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.MessageDelivered(chathub.OutcomeFailed)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `chat_messages_sent_total{outcome="failed"} 1`)
	assert.Contains(t, string(body), "chat_sessions_active 0")
}
