package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"chatty":  zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewTagsService(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", ServiceName: "peercast", Output: &buf})

	l.Debug().Msg("hidden")
	l.Info().Msg("shown")

	got := lines(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "peercast", got[0][FieldService])
	assert.Equal(t, "shown", got[0]["message"])
}

func TestCtxFallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	child := New(Config{Output: &buf})
	ctx := WithLogger(context.Background(), child)

	l := Ctx(ctx)
	l.Info().Msg("from ctx")
	assert.Contains(t, buf.String(), "from ctx")

	assert.NotPanics(t, func() {
		l := Ctx(context.Background())
		l.Debug().Msg("global")
	})
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})

	r := gin.New()
	r.Use(GinMiddleware(logger))
	r.GET("/sessions/:id", func(c *gin.Context) {
		c.Set(FieldSessionID, c.Param("id"))
		l := Ctx(c.Request.Context())
		l.Info().Msg("handler")
		c.Status(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/sessions/s1", nil)
	req.Header.Set(headerRequestID, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get(headerRequestID))

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "req-1", got[0][FieldRequestID])
	assert.Equal(t, "request completed", got[1]["message"])
	assert.Equal(t, "warn", got[1]["level"])
	assert.Equal(t, "s1", got[1][FieldSessionID])
	assert.EqualValues(t, http.StatusNotFound, got[1][FieldStatus])
}

func TestHTTPMiddlewareGeneratesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})

	h := HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.NotEmpty(t, w.Header().Get(headerRequestID))
	got := lines(t, &buf)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.EqualValues(t, http.StatusTeapot, last[FieldStatus])
	assert.Equal(t, false, last["hijacked"])
}
