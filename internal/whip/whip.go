// Package whip implements the client side of the WebRTC-HTTP Ingestion
// Protocol signaling exchange: POST an SDP offer, receive an answer plus a
// resource Location, DELETE that Location on teardown.
package whip

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/lanikai/whip-publisher/internal/logging"
)

var log = logging.DefaultLogger.WithTag("whip")

// Client publishes one session's offer/answer exchange and its eventual
// teardown against a single WHIP endpoint.
type Client struct {
	Endpoint      string
	Authorization string

	// correlationID ties every log line for one publish attempt together;
	// it is never sent on the wire, since WHIP defines no such header.
	correlationID string

	resourceLocation string
}

// NewClient creates a client for the given endpoint URL and optional
// bearer token.
func NewClient(endpoint, authorization string) *Client {
	return &Client{
		Endpoint:      endpoint,
		Authorization: authorization,
		correlationID: uuid.NewString(),
	}
}

// Publish POSTs the SDP offer and returns the SDP answer. The resource
// Location, if present, is captured for the later Teardown call.
func (c *Client) Publish(offer string) (answer string, err error) {
	req, err := http.NewRequest(http.MethodPost, c.Endpoint, strings.NewReader(offer))
	if err != nil {
		return "", errors.Wrap(err, "whip: build POST request")
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Cache-Control", "no-cache")
	if c.Authorization != "" {
		req.Header.Set("Authorization", "Bearer "+c.Authorization)
	}

	log.Debug("[%s] POST %s", c.correlationID, c.Endpoint)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "whip: POST failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "whip: reading answer body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Errorf("whip: POST returned %d: %s", resp.StatusCode, body)
	}
	answer = string(body)
	if !strings.HasPrefix(answer, "v=") {
		return "", errors.Errorf("whip: answer does not start with v=")
	}

	if loc := resp.Header.Get("Location"); loc != "" {
		c.resourceLocation = resolveLocation(c.Endpoint, loc)
		log.Debug("[%s] resource location %s", c.correlationID, c.resourceLocation)
	}

	return answer, nil
}

// Teardown sends DELETE to the captured Location. Per spec §4.5, failures
// are logged but never fatal.
func (c *Client) Teardown() {
	if c.resourceLocation == "" {
		return
	}
	req, err := http.NewRequest(http.MethodDelete, c.resourceLocation, bytes.NewReader(nil))
	if err != nil {
		log.Warn("[%s] building DELETE request: %v", c.correlationID, err)
		return
	}
	if c.Authorization != "" {
		req.Header.Set("Authorization", "Bearer "+c.Authorization)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Warn("[%s] DELETE %s failed: %v", c.correlationID, c.resourceLocation, err)
		return
	}
	resp.Body.Close()
	log.Debug("[%s] DELETE %s -> %d", c.correlationID, c.resourceLocation, resp.StatusCode)
}

// resolveLocation resolves a possibly-relative Location header against the
// endpoint URL it was returned from.
func resolveLocation(endpoint, location string) string {
	base, err := url.Parse(endpoint)
	if err != nil {
		return location
	}
	ref, err := url.Parse(location)
	if err != nil {
		return location
	}
	return base.ResolveReference(ref).String()
}
