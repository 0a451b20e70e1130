package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/peercast/internal/domain"
)

func TestEncodeEvent(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	value, err := encodeEvent(&domain.LifecycleEvent{
		ID:         "e1",
		Type:       domain.EventSessionDestroyed,
		SessionID:  "s1",
		Code:       "ABC123",
		Reason:     domain.ReasonPublisherDisconnect,
		Recipients: 2,
		OccurredAt: at,
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(value, &decoded))
	assert.Equal(t, "session_destroyed", decoded["type"])
	assert.Equal(t, "s1", decoded["session_id"])
	assert.Equal(t, "publisher_disconnect", decoded["reason"])
	assert.EqualValues(t, 2, decoded["recipients"])
}

func TestEncodeEventRequiresSession(t *testing.T) {
	_, err := encodeEvent(&domain.LifecycleEvent{Type: domain.EventSessionCreated})
	assert.Error(t, err)
}
