package siegeserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/siegeai/siegeinfer/schema"
)

type Client struct {
	APIKey string
	Server string
	HTTP   *http.Client
}

var (
	ErrUnexpectedResponse = errors.New("unexpected response code")
	ErrMissingAPIKey      = errors.New("missing api key")
)

func NewClient(apikey, server string) (*Client, error) {
	if apikey == "" {
		return nil, ErrMissingAPIKey
	}
	client := &Client{
		APIKey: apikey,
		Server: strings.TrimSuffix(server, "/"),
		HTTP:   &http.Client{Timeout: 30 * time.Second},
	}
	return client, nil
}

type ListenerConfig struct {
	ListenerID string `json:"listenerID"`
}

type ListenerStartupRequest struct {
	ListenerID string `json:"listenerID"`
}

// Startup announces a new listener. The server may assign its own ID; otherwise the
// one proposed here is kept.
func (c *Client) Startup(ctx context.Context) (*ListenerConfig, error) {
	proposed := uuid.NewString()

	var config ListenerConfig
	if err := c.post(ctx, "/api/v1/listener/startup", &ListenerStartupRequest{ListenerID: proposed}, &config); err != nil {
		return nil, err
	}
	if config.ListenerID == "" {
		config.ListenerID = proposed
	}
	return &config, nil
}

type ListenerShutdownRequest struct {
	ListenerID string `json:"listenerID"`
}

func (c *Client) Shutdown(ctx context.Context, listenerID string) error {
	return c.post(ctx, "/api/v1/listener/shutdown", &ListenerShutdownRequest{ListenerID: listenerID}, nil)
}

// RouteSchema is the schema inferred for one route key, e.g. "GET /users/{arg1}
// response 200", both rendered and in the schema codec form.
type RouteSchema struct {
	Route      string         `json:"route"`
	Schema     string         `json:"schema"`
	Definition schema.Encoded `json:"definition"`
}

func NewRouteSchema(route string, s schema.Schema) RouteSchema {
	return RouteSchema{Route: route, Schema: s.String(), Definition: schema.Encoded{Schema: s}}
}

type ListenerUpdate struct {
	ListenerID string        `json:"listenerID"`
	Schemas    []RouteSchema `json:"schemas"`
	Metrics    string        `json:"metrics"`
}

func (c *Client) Update(ctx context.Context, args ListenerUpdate) error {
	return c.post(ctx, "/api/v1/listener/update", &args, nil)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	bs, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.formatURL(path), bytes.NewReader(bs))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		return fmt.Errorf("%w: %s %s", ErrUnexpectedResponse, path, res.Status)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Client) formatURL(path string) string {
	return fmt.Sprintf("%s%s", c.Server, path)
}
