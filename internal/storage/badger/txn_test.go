package badger

import (
	"context"
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/common"
	"github.com/ternarybob/pactum/internal/interfaces"
	"github.com/ternarybob/pactum/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	config := common.NewDefaultConfig()
	config.Storage.Badger.Path = filepath.Join(t.TempDir(), "badger")
	config.Engine.ClaimRetryBase = "1ms"

	mgr, err := NewManager(arbor.NewLogger(), config, nil)
	if err != nil {
		t.Fatalf("failed to open storage manager: %v", err)
	}
	t.Cleanup(func() {
		if err := mgr.Close(); err != nil {
			t.Errorf("failed to close storage manager: %v", err)
		}
	})
	return mgr.(*Manager)
}

func newTestJob(jobType string, createdAt time.Time) *models.Job {
	id := uuid.NewString()
	return &models.Job{
		ID:                 id,
		JobType:            jobType,
		RequestBody:        json.RawMessage(`{}`),
		FungibilityGroupID: id,
		CreatedAt:          createdAt,
	}
}

// poolContracts scans the claim pool for one job type and returns the
// contract ids in scan order.
func poolContracts(t *testing.T, mgr *Manager, jobType string) []string {
	t.Helper()
	var ids []string
	err := mgr.View(context.Background(), func(tx interfaces.Txn) error {
		return tx.ScanClaimPool(jobType, func(contractID string) (bool, error) {
			ids = append(ids, contractID)
			return false, nil
		})
	})
	if err != nil {
		t.Fatalf("failed to scan claim pool: %v", err)
	}
	return ids
}

func TestOpenContractTracksJobState(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	job := newTestJob("fetch", now)

	var contract *models.Contract
	err := mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		if err := tx.InsertJob(job); err != nil {
			return err
		}
		var err error
		contract, err = tx.OpenContract(job, now.Add(models.DefaultDueOffset), now)
		return err
	})
	if err != nil {
		t.Fatalf("failed to open contract: %v", err)
	}

	if contract.ContractNumber != 1 {
		t.Errorf("first contract should be number 1, got %d", contract.ContractNumber)
	}
	if contract.Outcome != models.OutcomeWaiting {
		t.Errorf("fresh contract should be waiting, got %s", contract.Outcome)
	}

	err = mgr.View(ctx, func(tx interfaces.Txn) error {
		state, err := tx.GetJobState(job.ID)
		if err != nil {
			return err
		}
		if state.ActiveContractID != contract.ID {
			t.Errorf("expected active contract %s, got %s", contract.ID, state.ActiveContractID)
		}
		if state.LatestContractID != contract.ID {
			t.Errorf("expected latest contract %s, got %s", contract.ID, state.LatestContractID)
		}
		if state.LatestOutcome != models.OutcomeWaiting {
			t.Errorf("expected latest outcome waiting, got %s", state.LatestOutcome)
		}
		if state.ContractCount != 1 {
			t.Errorf("expected contract count 1, got %d", state.ContractCount)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read job state: %v", err)
	}

	if pool := poolContracts(t, mgr, "fetch"); len(pool) != 1 || pool[0] != contract.ID {
		t.Errorf("expected claim pool [%s], got %v", contract.ID, pool)
	}
}

func TestTransitionContractKeepsClaimPoolInStep(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	job := newTestJob("fetch", now)

	var contract *models.Contract
	err := mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		if err := tx.InsertJob(job); err != nil {
			return err
		}
		var err error
		contract, err = tx.OpenContract(job, now.Add(models.DefaultDueOffset), now)
		return err
	})
	if err != nil {
		t.Fatalf("failed to open contract: %v", err)
	}

	// waiting -> running removes the claim entry.
	err = mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		contract.MarkClaimed(now.Add(time.Second))
		return tx.TransitionContract(job, contract, models.OutcomeWaiting, now.Add(time.Second))
	})
	if err != nil {
		t.Fatalf("failed to claim contract: %v", err)
	}
	if pool := poolContracts(t, mgr, "fetch"); len(pool) != 0 {
		t.Errorf("running contract should not be claimable, pool %v", pool)
	}

	// running -> waiting, the path a contract takes when it gains new
	// dependencies mid run, re-registers the claim entry.
	err = mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		contract.Outcome = models.OutcomeWaiting
		return tx.TransitionContract(job, contract, models.OutcomeRunning, now.Add(2*time.Second))
	})
	if err != nil {
		t.Fatalf("failed to return contract to waiting: %v", err)
	}
	if pool := poolContracts(t, mgr, "fetch"); len(pool) != 1 || pool[0] != contract.ID {
		t.Errorf("waiting contract should be back in the pool, got %v", pool)
	}

	// waiting -> running -> success clears the pool and the active pointer.
	err = mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		contract.MarkClaimed(now.Add(3 * time.Second))
		if err := tx.TransitionContract(job, contract, models.OutcomeWaiting, now.Add(3*time.Second)); err != nil {
			return err
		}
		contract.MarkFinished(models.OutcomeSuccess, now.Add(4*time.Second))
		return tx.TransitionContract(job, contract, models.OutcomeRunning, now.Add(4*time.Second))
	})
	if err != nil {
		t.Fatalf("failed to finish contract: %v", err)
	}
	if pool := poolContracts(t, mgr, "fetch"); len(pool) != 0 {
		t.Errorf("finished contract should not be claimable, pool %v", pool)
	}

	err = mgr.View(ctx, func(tx interfaces.Txn) error {
		state, err := tx.GetJobState(job.ID)
		if err != nil {
			return err
		}
		if state.ActiveContractID != "" {
			t.Errorf("terminal outcome should clear active contract, got %s", state.ActiveContractID)
		}
		if state.LatestOutcome != models.OutcomeSuccess {
			t.Errorf("expected latest outcome success, got %s", state.LatestOutcome)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read job state: %v", err)
	}
}

func TestScanClaimPoolFIFO(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	first := newTestJob("fetch", base)
	second := newTestJob("fetch", base.Add(time.Second))
	third := newTestJob("fetch", base.Add(2*time.Second))
	other := newTestJob("transform", base)

	contractIDs := map[string]string{}
	err := mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		// Insertion order deliberately differs from creation order.
		for _, job := range []*models.Job{second, other, third, first} {
			if err := tx.InsertJob(job); err != nil {
				return err
			}
			c, err := tx.OpenContract(job, job.CreatedAt.Add(models.DefaultDueOffset), job.CreatedAt)
			if err != nil {
				return err
			}
			contractIDs[job.ID] = c.ID
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to seed jobs: %v", err)
	}

	scanned := poolContracts(t, mgr, "fetch")
	want := []string{contractIDs[first.ID], contractIDs[second.ID], contractIDs[third.ID]}
	if !reflect.DeepEqual(scanned, want) {
		t.Errorf("expected oldest-first scan %v, got %v", want, scanned)
	}

	// The other job type has its own pool.
	if pool := poolContracts(t, mgr, "transform"); len(pool) != 1 || pool[0] != contractIDs[other.ID] {
		t.Errorf("expected isolated transform pool, got %v", pool)
	}
}

func TestScanClaimPoolStopsEarly(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	err := mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		for i := 0; i < 3; i++ {
			job := newTestJob("fetch", base.Add(time.Duration(i)*time.Second))
			if err := tx.InsertJob(job); err != nil {
				return err
			}
			if _, err := tx.OpenContract(job, job.CreatedAt, job.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to seed jobs: %v", err)
	}

	seen := 0
	err = mgr.View(ctx, func(tx interfaces.Txn) error {
		return tx.ScanClaimPool("fetch", func(contractID string) (bool, error) {
			seen++
			return true, nil
		})
	})
	if err != nil {
		t.Fatalf("failed to scan claim pool: %v", err)
	}
	if seen != 1 {
		t.Errorf("scan should stop after the first entry, saw %d", seen)
	}
}

func TestInsertJobDuplicateIsConflict(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	job := newTestJob("fetch", time.Now().UTC())

	err := mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		return tx.InsertJob(job)
	})
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	err = mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		return tx.InsertJob(job)
	})
	if !models.IsKind(err, models.ErrKindConflict) {
		t.Fatalf("expected conflict kind for duplicate insert, got %v", err)
	}
}

func TestGetJobNotFoundKind(t *testing.T) {
	mgr := newTestManager(t)

	err := mgr.View(context.Background(), func(tx interfaces.Txn) error {
		_, err := tx.GetJob(uuid.NewString())
		return err
	})
	if !models.IsKind(err, models.ErrKindNotFound) {
		t.Fatalf("expected not-found kind, got %v", err)
	}
}

func TestAtomicallyRetriesOnConflict(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	jobID := uuid.NewString()

	err := mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		return tx.PutJobState(&models.JobState{JobID: jobID, ContractCount: 1})
	})
	if err != nil {
		t.Fatalf("failed to seed job state: %v", err)
	}

	attempts := 0
	err = mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		attempts++
		state, err := tx.GetJobState(jobID)
		if err != nil {
			return err
		}

		if attempts == 1 {
			// Commit a competing write between this transaction's read and
			// its commit so the commit loses the conflict check.
			err := mgr.Atomically(ctx, func(inner interfaces.Txn) error {
				other, err := inner.GetJobState(jobID)
				if err != nil {
					return err
				}
				other.ContractCount = 7
				return inner.PutJobState(other)
			})
			if err != nil {
				return err
			}
		}

		state.ContractCount++
		return tx.PutJobState(state)
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected exactly one retry, ran %d attempts", attempts)
	}

	err = mgr.View(ctx, func(tx interfaces.Txn) error {
		state, err := tx.GetJobState(jobID)
		if err != nil {
			return err
		}
		// The retry re-reads the competing write, so both survive.
		if state.ContractCount != 8 {
			t.Errorf("expected contract count 8 after retry, got %d", state.ContractCount)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read job state: %v", err)
	}
}

func TestContractsForJobSortedByNumber(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	job := newTestJob("fetch", now)

	err := mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		if err := tx.InsertJob(job); err != nil {
			return err
		}
		first, err := tx.OpenContract(job, now, now)
		if err != nil {
			return err
		}
		first.MarkFinished(models.OutcomeError, now.Add(time.Second))
		first.Error = "boom"
		if err := tx.TransitionContract(job, first, models.OutcomeWaiting, now.Add(time.Second)); err != nil {
			return err
		}
		_, err = tx.OpenContract(job, now.Add(time.Second), now.Add(time.Second))
		return err
	})
	if err != nil {
		t.Fatalf("failed to seed contracts: %v", err)
	}

	err = mgr.View(ctx, func(tx interfaces.Txn) error {
		contracts, err := tx.ContractsForJob(job.ID)
		if err != nil {
			return err
		}
		if len(contracts) != 2 {
			t.Fatalf("expected 2 contracts, got %d", len(contracts))
		}
		if contracts[0].ContractNumber != 1 || contracts[1].ContractNumber != 2 {
			t.Errorf("contracts out of order: %d, %d", contracts[0].ContractNumber, contracts[1].ContractNumber)
		}
		if contracts[0].Outcome != models.OutcomeError || contracts[0].Error != "boom" {
			t.Errorf("first contract lost its outcome: %s %q", contracts[0].Outcome, contracts[0].Error)
		}
		if contracts[1].Outcome != models.OutcomeWaiting {
			t.Errorf("second contract should be waiting, got %s", contracts[1].Outcome)
		}

		state, err := tx.GetJobState(job.ID)
		if err != nil {
			return err
		}
		if state.ContractCount != 2 {
			t.Errorf("expected contract count 2, got %d", state.ContractCount)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read contracts: %v", err)
	}
}

func TestDependencyEdges(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC()

	parent := uuid.NewString()
	child := uuid.NewString()

	err := mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		if err := tx.InsertDependency(models.NewDependency(parent, child, now)); err != nil {
			return err
		}
		// Re-adding the same edge is a no-op.
		return tx.InsertDependency(models.NewDependency(parent, child, now))
	})
	if err != nil {
		t.Fatalf("failed to insert dependency: %v", err)
	}

	err = mgr.View(ctx, func(tx interfaces.Txn) error {
		exists, err := tx.DependencyExists(parent, child)
		if err != nil {
			return err
		}
		if !exists {
			t.Error("dependency edge should exist")
		}

		exists, err = tx.DependencyExists(child, parent)
		if err != nil {
			return err
		}
		if exists {
			t.Error("reverse edge should not exist")
		}

		parents, err := tx.ParentsOf(child)
		if err != nil {
			return err
		}
		if len(parents) != 1 || parents[0] != parent {
			t.Errorf("expected parents [%s], got %v", parent, parents)
		}

		children, err := tx.ChildrenOf(parent)
		if err != nil {
			return err
		}
		if len(children) != 1 || children[0] != child {
			t.Errorf("expected children [%s], got %v", child, children)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read dependency edges: %v", err)
	}
}

func TestCommitmentRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	commitment := &models.Commitment{
		ID:            uuid.NewString(),
		ContractID:    common.NewContractID(),
		AgentID:       common.NewAgentID(),
		ClaimedAt:     now,
		LastHeartbeat: now,
	}

	err := mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		return tx.InsertCommitment(commitment)
	})
	if err != nil {
		t.Fatalf("failed to insert commitment: %v", err)
	}

	// A second claim with the same commitment id is rejected.
	err = mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		return tx.InsertCommitment(commitment)
	})
	if !models.IsKind(err, models.ErrKindConflict) {
		t.Fatalf("expected conflict kind for duplicate commitment, got %v", err)
	}

	err = mgr.View(ctx, func(tx interfaces.Txn) error {
		active, err := tx.ActiveCommitmentForContract(commitment.ContractID)
		if err != nil {
			return err
		}
		if active.ID != commitment.ID {
			t.Errorf("expected active commitment %s, got %s", commitment.ID, active.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to find active commitment: %v", err)
	}

	err = mgr.Atomically(ctx, func(tx interfaces.Txn) error {
		commitment.MarkFinished(now.Add(time.Minute))
		return tx.UpdateCommitment(commitment)
	})
	if err != nil {
		t.Fatalf("failed to finish commitment: %v", err)
	}

	err = mgr.View(ctx, func(tx interfaces.Txn) error {
		_, err := tx.ActiveCommitmentForContract(commitment.ContractID)
		if !models.IsKind(err, models.ErrKindNotFound) {
			t.Errorf("finished commitment should not be active, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to check commitment: %v", err)
	}
}
