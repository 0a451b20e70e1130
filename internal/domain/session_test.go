package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionJSONNullPublisher(t *testing.T) {
	s := Session{ID: "id-1", Code: "ABC123", Title: "Untitled", Owner: "anon", IsPublic: true, CreatedAt: time.Unix(0, 0).UTC()}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	v, present := raw["publisher_connection"]
	assert.True(t, present)
	assert.Nil(t, v)
	assert.Equal(t, SessionCreated, s.State())
}

func TestSessionJSONLivePublisher(t *testing.T) {
	s := Session{ID: "id-1", Code: "ABC123", PublisherConnection: "conn-1"}

	data, err := json.Marshal(NewSessionUpdatedMessage(s))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"publisher_connection":"conn-1"`)
	assert.Contains(t, string(data), `"type":"session_updated"`)

	var back SessionUpdatedMessage
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "conn-1", back.Session.PublisherConnection)
	assert.Equal(t, SessionLive, back.Session.State())
	assert.Equal(t, SessionCreated, back.Session.WithoutPublisher().State())
}
