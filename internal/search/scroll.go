package search

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ScrollEntry is the per-shard continuation state a scroll ID carries: which
// node to go back to and which node-side search context to resume. The entry
// is enough to re-dispatch without resolving shards again.
type ScrollEntry struct {
	Shard        ShardID `json:"shard"`
	ClusterAlias string  `json:"cluster_alias,omitempty"`
	NodeID       string  `json:"node_id"`
	NodeAddr     string  `json:"node_addr"`
	ContextID    string  `json:"context_id"`
}

// scrollToken is the decoded form of a scroll ID. The token ID exists so two
// scrolls over identical shards still produce distinct opaque cursors.
type scrollToken struct {
	ID      string        `json:"id"`
	Entries []ScrollEntry `json:"entries"`
}

// EncodeScrollID packs per-shard continuation entries into a single opaque
// cursor string.
func EncodeScrollID(entries []ScrollEntry) string {
	tok := scrollToken{ID: uuid.NewString(), Entries: entries}
	raw, _ := json.Marshal(tok)
	return base64.URLEncoding.EncodeToString(raw)
}

// DecodeScrollID unpacks a cursor produced by EncodeScrollID. Malformed or
// empty cursors are rejected before any dispatch happens.
func DecodeScrollID(id string) ([]ScrollEntry, error) {
	raw, err := base64.URLEncoding.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("search: malformed scroll id: %w", err)
	}
	var tok scrollToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("search: malformed scroll id: %w", err)
	}
	if len(tok.Entries) == 0 {
		return nil, fmt.Errorf("search: scroll id carries no shard state")
	}
	return tok.Entries, nil
}
