package siegeserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/siegeai/siegeinfer/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	path string
	auth string
	body []byte
}

func newServer(t *testing.T, status int, reply string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bs, err := io.ReadAll(r.Body)
		assert.Nil(t, err)
		calls = append(calls, recorded{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: bs})
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("", "http://x")
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	c, err := NewClient("key", "http://x/")
	assert.Nil(t, err)
	assert.Equal(t, "http://x/api/v1/listener/update", c.formatURL("/api/v1/listener/update"))
}

func TestStartup(t *testing.T) {
	srv, calls := newServer(t, http.StatusOK, `{"listenerID": "from-server"}`)
	c, err := NewClient("key", srv.URL)
	require.Nil(t, err)

	config, err := c.Startup(context.Background())
	require.Nil(t, err)
	assert.Equal(t, "from-server", config.ListenerID)
	require.Len(t, *calls, 1)
	assert.Equal(t, "/api/v1/listener/startup", (*calls)[0].path)
	assert.Equal(t, "Bearer key", (*calls)[0].auth)
}

func TestStartupKeepsProposedID(t *testing.T) {
	srv, calls := newServer(t, http.StatusOK, ``)
	c, err := NewClient("key", srv.URL)
	require.Nil(t, err)

	config, err := c.Startup(context.Background())
	require.Nil(t, err)

	var sent ListenerStartupRequest
	require.Nil(t, json.Unmarshal((*calls)[0].body, &sent))
	assert.NotEmpty(t, config.ListenerID)
	assert.Equal(t, sent.ListenerID, config.ListenerID)
}

func TestUpdate(t *testing.T) {
	srv, calls := newServer(t, http.StatusOK, ``)
	c, err := NewClient("key", srv.URL)
	require.Nil(t, err)

	s := schema.Must(schema.NewArray(schema.Must(schema.NewAtomic(schema.Int))))
	err = c.Update(context.Background(), ListenerUpdate{
		ListenerID: "l1",
		Schemas:    []RouteSchema{NewRouteSchema("GET /items response 200", s)},
	})
	require.Nil(t, err)

	var got ListenerUpdate
	require.Nil(t, json.Unmarshal((*calls)[0].body, &got))
	assert.Equal(t, "l1", got.ListenerID)
	require.Len(t, got.Schemas, 1)
	assert.Equal(t, "GET /items response 200", got.Schemas[0].Route)
	assert.Equal(t, "Array(Atomic(int))", got.Schemas[0].Schema)
	assert.True(t, schema.Equal(s, got.Schemas[0].Definition.Schema))
}

func TestUnexpectedResponse(t *testing.T) {
	srv, _ := newServer(t, http.StatusUnauthorized, ``)
	c, err := NewClient("key", srv.URL)
	require.Nil(t, err)

	err = c.Shutdown(context.Background(), "l1")
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}
