// Package transport carries per-shard requests between the coordinator and
// data nodes as JSON over HTTP. It implements coordinator.Transport with one
// goroutine per in-flight shard call, so the coordinator never blocks waiting
// for a shard response.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/scatter/internal/coordinator"
	"github.com/dreamware/scatter/internal/search"
)

// ShardResponse is the node's wire envelope for one shard request. Exactly
// one payload field is set on success; Error carries the node-side failure
// message otherwise.
type ShardResponse struct {
	Query      *search.QueryResult      `json:"query,omitempty"`
	Fetch      *search.FetchResult      `json:"fetch,omitempty"`
	QueryFetch *search.QueryFetchResult `json:"query_fetch,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// HTTP sends shard requests to node endpoints of the form
// {addr}/shard/{n}/exec.
type HTTP struct {
	client *http.Client
	logger *zap.Logger
}

// NewHTTP builds a transport whose per-call timeout bounds every shard RPC.
func NewHTTP(timeout time.Duration, logger *zap.Logger) *HTTP {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTP{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// SendShardRequest implements coordinator.Transport. The callback runs on the
// transport goroutine once the node answers or the call fails.
func (t *HTTP) SendShardRequest(ctx context.Context, target search.ShardTarget, req *coordinator.ShardRequest, cb func(search.PerShardResult, error)) {
	go func() {
		res, err := t.roundTrip(ctx, target, req)
		cb(res, err)
	}()
}

func (t *HTTP) roundTrip(ctx context.Context, target search.ShardTarget, req *coordinator.ShardRequest) (search.PerShardResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("transport: encode shard request: %w", err)
	}

	url := fmt.Sprintf("%s/shard/%d/exec", target.NodeAddr, target.Shard.ID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport: %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("transport: %s: status %d", target, resp.StatusCode)
	}

	var envelope ShardResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("transport: decode shard response: %w", err)
	}
	if envelope.Error != "" {
		return nil, fmt.Errorf("transport: %s: %s", target, envelope.Error)
	}
	return resultForPhase(req.Phase, &envelope)
}

// resultForPhase picks the typed payload the phase expects from the
// envelope.
func resultForPhase(phase coordinator.PhaseKind, env *ShardResponse) (search.PerShardResult, error) {
	switch phase {
	case coordinator.PhaseQuery, coordinator.PhaseDfsQuery:
		if env.Query == nil {
			return nil, errors.New("transport: node returned no query payload")
		}
		return env.Query, nil
	case coordinator.PhaseFetch:
		if env.Fetch == nil {
			return nil, errors.New("transport: node returned no fetch payload")
		}
		return env.Fetch, nil
	case coordinator.PhaseQueryFetch, coordinator.PhaseScroll:
		if env.QueryFetch == nil {
			return nil, errors.New("transport: node returned no query_fetch payload")
		}
		return env.QueryFetch, nil
	}
	return nil, fmt.Errorf("transport: unknown phase %q", phase)
}
