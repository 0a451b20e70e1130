package directory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions map[string]bool

func (f fakeSessions) Exists(id string) bool { return f[id] }

func newDirectory() *Directory {
	return New(fakeSessions{"s1": true, "s2": true})
}

func TestBindPublisherUnknownSession(t *testing.T) {
	d := newDirectory()
	_, err := d.BindPublisher("c1", "missing", false)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, d.BindViewer("c1", "missing"), ErrSessionNotFound)
	assert.Equal(t, 0, d.Connections())
}

func TestBindPublisherRejectsSecondPublisher(t *testing.T) {
	d := newDirectory()

	_, err := d.BindPublisher("c1", "s1", false)
	require.NoError(t, err)

	// Same connection again is fine.
	prev, err := d.BindPublisher("c1", "s1", false)
	require.NoError(t, err)
	assert.Empty(t, prev)

	_, err = d.BindPublisher("c2", "s1", false)
	assert.ErrorIs(t, err, ErrAlreadyLive)

	pub, ok := d.PublisherOf("s1")
	require.True(t, ok)
	assert.Equal(t, "c1", pub)
}

func TestBindPublisherTakeover(t *testing.T) {
	d := newDirectory()

	_, err := d.BindPublisher("c1", "s1", false)
	require.NoError(t, err)
	prev, err := d.BindPublisher("c2", "s1", true)
	require.NoError(t, err)
	assert.Equal(t, "c1", prev)

	pub, _ := d.PublisherOf("s1")
	assert.Equal(t, "c2", pub)
	assert.Empty(t, d.SessionsPublishedBy("c1"))
	assert.Equal(t, RoleNone, d.RoleOf("c1", "s1"))
	assert.Equal(t, []string{"c2"}, d.Members("s1"))
}

func TestViewerBindingAndMembers(t *testing.T) {
	d := newDirectory()

	_, err := d.BindPublisher("pub", "s1", false)
	require.NoError(t, err)
	require.NoError(t, d.BindViewer("v1", "s1"))
	require.NoError(t, d.BindViewer("v2", "s1"))
	require.NoError(t, d.BindViewer("v1", "s2"))

	assert.Equal(t, []string{"pub", "v1", "v2"}, d.Members("s1"))
	assert.Equal(t, []string{"v1"}, d.Members("s2"))
	assert.Equal(t, RoleViewer, d.RoleOf("v1", "s1"))

	// Publisher joining as viewer keeps its role.
	require.NoError(t, d.BindViewer("pub", "s1"))
	assert.Equal(t, RolePublisher, d.RoleOf("pub", "s1"))
}

func TestSessionsPublishedByAcrossSessions(t *testing.T) {
	d := newDirectory()

	_, err := d.BindPublisher("pub", "s1", false)
	require.NoError(t, err)
	_, err = d.BindPublisher("pub", "s2", false)
	require.NoError(t, err)

	assert.Equal(t, []string{"s1", "s2"}, d.SessionsPublishedBy("pub"))
	assert.Nil(t, d.SessionsPublishedBy("nobody"))
}

func TestUnbindIsIdempotent(t *testing.T) {
	d := newDirectory()

	_, err := d.BindPublisher("pub", "s1", false)
	require.NoError(t, err)
	require.NoError(t, d.BindViewer("pub", "s2"))

	removed := d.Unbind("pub")
	assert.Equal(t, []Binding{{SessionID: "s1", Role: RolePublisher}, {SessionID: "s2", Role: RoleViewer}}, removed)

	_, ok := d.PublisherOf("s1")
	assert.False(t, ok)
	assert.Empty(t, d.Members("s1"))
	assert.Nil(t, d.Unbind("pub"))
	assert.Equal(t, 0, d.Connections())
}

func TestDropSessionReturnsFormerMembers(t *testing.T) {
	d := newDirectory()

	_, err := d.BindPublisher("pub", "s1", false)
	require.NoError(t, err)
	require.NoError(t, d.BindViewer("v1", "s1"))
	require.NoError(t, d.BindViewer("v1", "s2"))

	members := d.DropSession("s1")
	assert.Equal(t, []string{"pub", "v1"}, members)
	assert.Empty(t, d.Members("s1"))
	_, ok := d.PublisherOf("s1")
	assert.False(t, ok)

	// Bindings to other sessions survive.
	assert.Equal(t, RoleViewer, d.RoleOf("v1", "s2"))
	assert.Empty(t, d.DropSession("s1"))
}

func TestConcurrentBindPublisherHasOneWinner(t *testing.T) {
	d := newDirectory()

	const n = 50
	var wg sync.WaitGroup
	wins := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(conn string) {
			defer wg.Done()
			if _, err := d.BindPublisher(conn, "s1", false); err == nil {
				wins <- conn
			}
		}(string(rune('a' + i%26)) + string(rune('a' + i/26)))
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1)
	pub, _ := d.PublisherOf("s1")
	assert.Equal(t, winners[0], pub)
}
