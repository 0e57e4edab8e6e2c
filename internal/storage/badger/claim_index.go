package badger

import (
	"fmt"
	"time"
)

// The claim pool is a raw key index over waiting contracts, one entry per
// claimable contract:
//
//	claim:{job_type}:{job_created_at_ns}:{job_id} -> contract_id
//
// The timestamp is zero padded to 20 digits so lexicographic key order
// matches numeric order; a prefix scan over one job type therefore yields
// waiting contracts oldest job first, which is the claim FIFO. Entries are
// written when a contract opens as waiting, removed when it leaves waiting,
// and re-added when add-dependencies sends a running contract back.

func claimKey(jobType string, jobCreatedAt time.Time, jobID string) []byte {
	ts := jobCreatedAt.UnixNano()
	return []byte(fmt.Sprintf("claim:%s:%020d:%s", jobType, ts, jobID))
}

func claimPrefix(jobType string) []byte {
	return []byte(fmt.Sprintf("claim:%s:", jobType))
}
