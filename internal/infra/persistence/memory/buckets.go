package memory

import (
	"encoding/json"
	"fmt"
)

// Buckets names the collections of a Snapshot as stored by the snapshot
// tables of the SQL seed sources, one JSON payload per bucket.
var Buckets = []string{
	"vendors",
	"contracts",
	"products",
	"pools",
	"departments",
	"cost_centers",
	"people",
	"allocations",
	"audit_log",
	"requests",
}

func (s *Snapshot) bucketTargets() map[string]any {
	return map[string]any{
		"vendors":      &s.Vendors,
		"contracts":    &s.Contracts,
		"products":     &s.Products,
		"pools":        &s.Pools,
		"departments":  &s.Departments,
		"cost_centers": &s.CostCenters,
		"people":       &s.People,
		"allocations":  &s.Allocations,
		"audit_log":    &s.AuditLog,
		"requests":     &s.Requests,
	}
}

// EncodeBuckets renders every collection as a JSON array keyed by bucket name.
func (s Snapshot) EncodeBuckets() (map[string][]byte, error) {
	targets := s.bucketTargets()
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		data, err := json.Marshal(targets[bucket])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket fills the collection named by bucket from payload. Unknown
// buckets and empty payloads are ignored.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	target, ok := s.bucketTargets()[bucket]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
