package policies

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/zeu5/locomotion-rl/types"
)

// ActRequest is the body of POST /act
type ActRequest struct {
	Observation []float64 `json:"observation"`
}

// ActResponse carries the action, or the error of a failed request
type ActResponse struct {
	Action []float64 `json:"action,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Remote asks an external process for every action over HTTP
type Remote struct {
	url    string
	client *http.Client
}

var _ types.Policy = &Remote{}

// NewRemote talks to the policy server at addr, e.g. "localhost:7070" or a
// full http URL
func NewRemote(addr string, timeout time.Duration) *Remote {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Remote{
		url: strings.TrimSuffix(addr, "/") + "/act",
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
				MaxIdleConnsPerHost:   4,
			},
		},
	}
}

func (r *Remote) Act(ctx context.Context, observation []float64) ([]float64, error) {
	bs, err := json.Marshal(ActRequest{Observation: observation})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(bs))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote policy: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote policy: reading response: %w", err)
	}
	out := ActResponse{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("remote policy: status %d: decoding response: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote policy: status %d: %s", resp.StatusCode, out.Error)
	}
	return out.Action, nil
}

// Close drops idle connections to the server
func (r *Remote) Close() {
	r.client.CloseIdleConnections()
}
