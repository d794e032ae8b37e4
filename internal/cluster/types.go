package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dreamware/scatter/internal/search"
)

// NodeInfo identifies one data node in the cluster: its unique ID and the
// base URL other processes use to reach it.
type NodeInfo struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// RegisterRequest is sent by a node to the coordinator on startup, announcing
// the index it hosts and how many shards it carries.
type RegisterRequest struct {
	Node      NodeInfo `json:"node"`
	Index     string   `json:"index"`
	NumShards int      `json:"num_shards"`
}

// ResolveShardsRequest asks a coordinator for the shard iterators matching a
// set of index patterns. Remote coordinators serve this for cross-cluster
// search.
type ResolveShardsRequest struct {
	Indices []string `json:"indices"`
	Routing string   `json:"routing,omitempty"`
}

// ResolvedShard is one shard group on the wire: the logical shard plus its
// ordered candidate replicas. The receiving side rebuilds a ShardIterator
// from it, stamping its own cluster alias and original index patterns.
type ResolvedShard struct {
	Shard   search.ShardID       `json:"shard"`
	Targets []search.ShardTarget `json:"targets"`
}

// ResolveShardsResponse carries resolved shard groups together with any
// per-index alias filters the resolving cluster wants applied.
type ResolveShardsResponse struct {
	Shards       []ResolvedShard   `json:"shards"`
	AliasFilters map[string]string `json:"alias_filters,omitempty"`
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// NormalizeAddr ensures an address carries an http scheme so it can be used
// as a URL base. Nodes register with bare host:port or full URLs; both work.
func NormalizeAddr(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	return "http://" + strings.TrimRight(addr, "/")
}

// PostJSON sends body as JSON to url and decodes the response into out when
// out is non-nil. Status codes >= 300 are errors.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON fetches url and decodes the JSON response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
