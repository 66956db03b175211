package repository_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/magabrotheeeer/signal-engine/internal/models"
	"github.com/magabrotheeeer/signal-engine/internal/services/admission"
	"github.com/magabrotheeeer/signal-engine/internal/storage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSettings struct {
	quota int
}

func (s staticSettings) RequestRanges(context.Context) []models.TimeRange { return nil }
func (s staticSettings) RecoveryInterval(context.Context) time.Duration { return time.Minute }
func (s staticSettings) SignalQuota(context.Context) int { return s.quota }

type discardNotifier struct{}

func (discardNotifier) Send(context.Context, int64, string) error { return nil }

type countingActivator struct {
	mu    sync.Mutex
	count map[int64]int
}

func (a *countingActivator) Activate(sig *models.Signal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.count[sig.UserID]++
}

func TestIntegration_ConcurrentAdmissionCyclesGrantOncePerUser(t *testing.T) {
	storage := repository.SetupTestDatabase(t)
	factory := repository.NewTestDataFactory(storage)
	verification := repository.NewTestVerification(storage)
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	const (
		trials        = 50
		usersPerTrial = 5
	)
	for i := range trials {
		users := make([]int64, 0, usersPerTrial)
		for range usersPerTrial {
			users = append(users, factory.CreateUser(t, 10))
		}

		activator := &countingActivator{count: make(map[int64]int)}
		replicas := []*admission.Service{
			admission.New(storage, storage, staticSettings{quota: 100}, discardNotifier{}, activator, time.UTC, log),
			admission.New(storage, storage, staticSettings{quota: 100}, discardNotifier{}, activator, time.UTC, log),
		}

		var wg sync.WaitGroup
		reports := make([]admission.CycleReport, len(replicas))
		errs := make([]error, len(replicas))
		for j, s := range replicas {
			wg.Add(1)
			go func() {
				defer wg.Done()
				reports[j], errs[j] = s.RunCycle(ctx)
			}()
		}
		wg.Wait()

		granted := 0
		for j := range replicas {
			require.NoError(t, errs[j], "trial %d", i)
			assert.Contains(t, []admission.Outcome{admission.OutcomeCompleted, admission.OutcomeLocked},
				reports[j].Outcome, "trial %d", i)
			granted += reports[j].Granted
		}
		assert.Equal(t, usersPerTrial, granted, "trial %d", i)

		for _, userID := range users {
			require.Equal(t, 1, verification.OpenSignals(t, userID), "trial %d user %d", i, userID)
			assert.Equal(t, 1, activator.count[userID], "trial %d user %d", i, userID)
		}
	}
}
