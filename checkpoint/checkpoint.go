// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

/*
Package checkpoint lets interrupted workflows resume without redoing work.

Before a node executes, instrumentation hashes its resolved parameters and
asks the store for a record under the workflow's resume key. A hit with the
same hash means the node already ran with identical inputs: its saved
namespace output is restored into the store and the node is skipped. A
changed hash means the inputs differ, so the node runs again and the record
is replaced.
*/
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/cascadeflow/cascade/types"
)

// Record is what a completed node leaves behind: the parameter hash it ran
// with, the action it returned, and its namespace output for restoring on
// resume.
type Record struct {
	NodeID    string      `json:"node_id"`
	ParamHash string      `json:"param_hash"`
	Action    string      `json:"action"`
	Output    types.Value `json:"output"`
	SavedAt   time.Time   `json:"saved_at"`
}

// Store persists node checkpoints under a resume key. The key is stable
// across runs of the same workflow; the run ID is not suitable because
// resuming happens in a fresh run.
type Store interface {
	Load(ctx context.Context, key, nodeID string) (Record, bool, error)
	Save(ctx context.Context, key string, rec Record) error
	Clear(ctx context.Context, key string) error
}

// HashParams computes the content hash of a resolved parameter map.
// Encoding is canonical: map keys serialize sorted, so equal parameter
// values always produce equal hashes.
func HashParams(params map[string]types.Value) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		raw, err := json.Marshal(params[k])
		if err != nil {
			// Unencodable values cannot happen for the closed Value type;
			// fall back to the formatted form to keep the hash total.
			raw = []byte(fmt.Sprintf("%v", params[k]))
		}
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write(raw)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
