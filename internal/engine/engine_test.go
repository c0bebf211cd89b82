package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qistsync/internal/auth"
	"qistsync/internal/cache"
	"qistsync/internal/localstore"
	"qistsync/internal/models"
	"qistsync/internal/queue"
)

const testUser = "user-1"

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

type fakeRemote struct {
	mu        sync.Mutex
	snapshots map[string][]models.Installment
	err       error
	calls     int
	gate      chan struct{} // when set, FetchAll blocks until closed
	entered   chan struct{} // when set, receives once per FetchAll before the gate
}

func (f *fakeRemote) FetchAll(ctx context.Context, userID string) ([]models.Installment, error) {
	f.mu.Lock()
	gate := f.gate
	entered := f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshots[userID], nil
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	eng    *Engine
	store  *localstore.Memory
	cache  *cache.Memory
	queue  *queue.Memory
	remote *fakeRemote
}

func newFixture(remote *fakeRemote, online bool) *fixture {
	if remote.snapshots == nil {
		remote.snapshots = make(map[string][]models.Installment)
	}
	f := &fixture{
		store:  localstore.NewMemory(),
		cache:  cache.NewMemory(30 * time.Second),
		queue:  queue.NewMemory(),
		remote: remote,
	}
	f.eng = New(Config{
		Store:    f.store,
		Cache:    f.cache,
		Remote:   remote,
		Queue:    f.queue,
		Sessions: auth.StaticSessions{UserID: testUser},
		Online:   func(ctx context.Context) bool { return online },
		Now:      func() time.Time { return testNow },
	})
	return f
}

func makeInstallment(id string, createdAt time.Time, payments ...models.Payment) models.Installment {
	return models.Installment{
		ID:           id,
		UserID:       testUser,
		CreditorName: "creditor-" + id,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
		Payments:     payments,
	}
}

func makePayment(id, dueDate string) models.Payment {
	return models.Payment{ID: id, DueDate: dueDate, Amount: decimal.NewFromInt(100)}
}

func assertPaidDatePairing(t *testing.T, snapshot []models.Installment) {
	t.Helper()
	for _, inst := range snapshot {
		for _, p := range inst.Payments {
			assert.Equal(t, p.IsPaid, p.PaidDate != "",
				"payment %s violates is_paid/paid_date pairing", p.ID)
		}
	}
}

func TestLoad_FirstRunFetchesRemoteAndPersists(t *testing.T) {
	ctx := context.Background()
	newest := makeInstallment("new", testNow.Add(-time.Hour))
	older := makeInstallment("old", testNow.Add(-2*time.Hour))
	f := newFixture(&fakeRemote{snapshots: map[string][]models.Installment{
		testUser: {newest, older},
	}}, true)

	got := f.eng.LoadInstallments(ctx)

	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "old", got[1].ID)

	stored := f.store.Read(ctx, testUser)
	assert.Equal(t, got, stored)
	cached, ok := f.cache.Get(ctx, testUser)
	require.True(t, ok)
	assert.Equal(t, got, cached)
}

func TestLoad_FirstRunRemoteFailureDegradesToEmpty(t *testing.T) {
	f := newFixture(&fakeRemote{err: errors.New("connection refused")}, true)

	got := f.eng.LoadInstallments(context.Background())

	assert.Empty(t, got)
	assert.Empty(t, f.store.Read(context.Background(), testUser))
}

func TestLoad_OfflineServesLocalWithoutFetching(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&fakeRemote{}, false)
	f.store.Write(ctx, testUser, []models.Installment{makeInstallment("local", testNow)})

	got := f.eng.LoadInstallments(ctx)

	require.Len(t, got, 1)
	assert.Equal(t, "local", got[0].ID)
	f.eng.Flush()
	assert.Zero(t, f.remote.callCount(), "offline load must not touch the remote")
}

func TestLoad_LocalDataServedImmediatelyThenRefreshed(t *testing.T) {
	ctx := context.Background()
	localOnly := makeInstallment("offline-created", testNow.Add(-time.Minute))
	serverSide := makeInstallment("server-side", testNow.Add(-2*time.Hour))
	f := newFixture(&fakeRemote{snapshots: map[string][]models.Installment{
		testUser: {serverSide},
	}}, true)
	f.store.Write(ctx, testUser, []models.Installment{localOnly})

	events, cancel := f.eng.Notifier().Subscribe()
	defer cancel()

	got := f.eng.LoadInstallments(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "offline-created", got[0].ID)

	f.eng.Flush()

	merged := f.store.Read(ctx, testUser)
	require.Len(t, merged, 2)
	assert.Equal(t, "offline-created", merged[0].ID, "newer local entry first")
	assert.Equal(t, "server-side", merged[1].ID)

	cached, ok := f.cache.Get(ctx, testUser)
	require.True(t, ok)
	assert.Equal(t, merged, cached)

	select {
	case ev := <-events:
		assert.Equal(t, testUser, ev.UserID)
		assert.Equal(t, merged, ev.Snapshot)
	default:
		t.Fatal("expected a change notification after background refresh")
	}
}

func TestLoad_CacheHitSkipsLocalReadAndTriggersRefresh(t *testing.T) {
	ctx := context.Background()
	cachedInst := makeInstallment("cached", testNow)
	f := newFixture(&fakeRemote{snapshots: map[string][]models.Installment{
		testUser: {cachedInst},
	}}, true)
	f.cache.Set(ctx, testUser, []models.Installment{cachedInst})

	got := f.eng.LoadInstallments(ctx)

	require.Len(t, got, 1)
	assert.Equal(t, "cached", got[0].ID)
	f.eng.Flush()
	assert.Equal(t, 1, f.remote.callCount(), "cache hit still refreshes in background")
}

func TestLoad_BackgroundRefreshFailureLeavesLocalUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&fakeRemote{err: errors.New("boom")}, true)
	local := []models.Installment{makeInstallment("keep", testNow)}
	f.store.Write(ctx, testUser, local)

	got := f.eng.LoadInstallments(ctx)
	f.eng.Flush()

	assert.Equal(t, local, got)
	assert.Equal(t, local, f.store.Read(ctx, testUser))
	_, ok := f.cache.Get(ctx, testUser)
	assert.False(t, ok, "failed refresh must not populate the cache")
}

func TestLoad_NoSessionReturnsEmpty(t *testing.T) {
	f := newFixture(&fakeRemote{}, true)
	f.eng.sessions = auth.StaticSessions{}

	assert.Empty(t, f.eng.LoadInstallments(context.Background()))
	assert.Zero(t, f.remote.callCount())
}

func TestSave_OfflineCreatePersistsAndEnqueues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&fakeRemote{}, false)

	inst := makeInstallment("new-inst", time.Time{}, makePayment("p-1", "2026-04-01"))
	inst.CreatedAt = time.Time{}
	f.eng.SaveInstallment(ctx, inst)

	stored := f.store.Read(ctx, testUser)
	require.Len(t, stored, 1)
	assert.Equal(t, "new-inst", stored[0].ID)
	assert.Equal(t, testNow, stored[0].CreatedAt, "zero created_at is stamped")
	assert.Equal(t, testNow, stored[0].UpdatedAt)

	// Reload immediately sees the write even though nothing synced.
	got := f.eng.LoadInstallments(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "new-inst", got[0].ID)

	ops := f.queue.Drain()
	require.Len(t, ops, 1)
	assert.Equal(t, models.OpCreate, ops[0].Type)
	assert.Equal(t, models.EntityInstallment, ops[0].EntityType)

	var payload models.Installment
	require.NoError(t, json.Unmarshal(ops[0].Data, &payload))
	assert.Equal(t, testUser, payload.UserID, "operation carries the owner id")
}

func TestSave_ExistingIDIsUpdateInPlace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&fakeRemote{}, false)
	orig := makeInstallment("inst-1", testNow.Add(-time.Hour))
	f.store.Write(ctx, testUser, []models.Installment{orig})

	edited := orig
	edited.CreditorName = "renamed"
	f.eng.SaveInstallment(ctx, edited)

	stored := f.store.Read(ctx, testUser)
	require.Len(t, stored, 1, "update must not duplicate")
	assert.Equal(t, "renamed", stored[0].CreditorName)
	assert.Equal(t, testNow, stored[0].UpdatedAt)

	ops := f.queue.Drain()
	require.Len(t, ops, 1)
	assert.Equal(t, models.OpUpdate, ops[0].Type)
}

func TestSave_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&fakeRemote{}, false)
	stale := makeInstallment("stale", testNow.Add(-time.Hour))
	f.cache.Set(ctx, testUser, []models.Installment{stale})

	f.eng.SaveInstallment(ctx, makeInstallment("fresh", testNow))

	// A fresh write is never masked by a stale cache hit.
	got := f.eng.LoadInstallments(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].ID)
}

func TestSave_NormalizesPaidDatePairing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&fakeRemote{}, false)

	paidNoDate := makePayment("paid-no-date", "2026-04-01")
	paidNoDate.IsPaid = true
	unpaidWithDate := makePayment("unpaid-with-date", "2026-05-01")
	unpaidWithDate.PaidDate = "2026-03-01"
	f.eng.SaveInstallment(ctx, makeInstallment("inst-1", testNow, paidNoDate, unpaidWithDate))

	stored := f.store.Read(ctx, testUser)
	require.Len(t, stored, 1)
	assertPaidDatePairing(t, stored)
	assert.Equal(t, "2026-03-15", stored[0].Payments[0].PaidDate)
	assert.Empty(t, stored[0].Payments[1].PaidDate)
}

func TestSave_NoSessionIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&fakeRemote{}, false)
	f.eng.sessions = auth.StaticSessions{}

	f.eng.SaveInstallment(ctx, makeInstallment("ignored", testNow))

	assert.Empty(t, f.store.Read(ctx, testUser))
	size, _ := f.queue.Size(ctx)
	assert.Zero(t, size)
}

func TestDelete_ThenReloadExcludesDeleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&fakeRemote{}, false)
	f.store.Write(ctx, testUser, []models.Installment{
		makeInstallment("keep", testNow.Add(-time.Hour)),
		makeInstallment("gone", testNow.Add(-2*time.Hour)),
	})

	f.eng.DeleteInstallment(ctx, "gone")

	got := f.eng.LoadInstallments(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "keep", got[0].ID)

	ops := f.queue.Drain()
	require.Len(t, ops, 1)
	assert.Equal(t, models.OpDelete, ops[0].Type)
	var payload models.DeletePayload
	require.NoError(t, json.Unmarshal(ops[0].Data, &payload))
	assert.Equal(t, "gone", payload.ID)
}

func TestToggleThenUndo_RoundTripsPaymentState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&fakeRemote{}, false)
	inst := makeInstallment("inst-1", testNow.Add(-time.Hour),
		makePayment("p-1", "2026-04-01"))
	f.store.Write(ctx, testUser, []models.Installment{inst})

	f.eng.TogglePayment(ctx, "inst-1", "p-1")

	stored := f.store.Read(ctx, testUser)
	p := stored[0].Payments[0]
	assert.True(t, p.IsPaid)
	assert.Equal(t, "2026-03-15", p.PaidDate, "paid date is date-only, no time component")
	assert.Equal(t, testNow, stored[0].UpdatedAt)
	assertPaidDatePairing(t, stored)

	f.eng.UndoLastPayment(ctx, "inst-1")

	stored = f.store.Read(ctx, testUser)
	p = stored[0].Payments[0]
	assert.False(t, p.IsPaid)
	assert.Empty(t, p.PaidDate)
	assertPaidDatePairing(t, stored)

	ops := f.queue.Drain()
	require.Len(t, ops, 2)
	var first, second models.TogglePayload
	require.NoError(t, json.Unmarshal(ops[0].Data, &first))
	require.NoError(t, json.Unmarshal(ops[1].Data, &second))
	assert.Equal(t, models.OpTogglePayment, ops[0].Type)
	assert.Equal(t, models.OpTogglePayment, ops[1].Type)
	assert.True(t, first.IsPaid)
	assert.Equal(t, "2026-03-15", first.PaidDate)
	assert.False(t, second.IsPaid)
	assert.Empty(t, second.PaidDate)
}

func TestToggle_BackToUnpaidClearsPaidDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&fakeRemote{}, false)
	paid := makePayment("p-1", "2026-04-01")
	paid.IsPaid = true
	paid.PaidDate = "2026-03-01"
	f.store.Write(ctx, testUser, []models.Installment{makeInstallment("inst-1", testNow, paid)})

	f.eng.TogglePayment(ctx, "inst-1", "p-1")

	stored := f.store.Read(ctx, testUser)
	assert.False(t, stored[0].Payments[0].IsPaid)
	assert.Empty(t, stored[0].Payments[0].PaidDate)
	assertPaidDatePairing(t, stored)
}

func TestToggle_MissingTargetsEnqueueNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&fakeRemote{}, false)
	f.store.Write(ctx, testUser, []models.Installment{
		makeInstallment("inst-1", testNow, makePayment("p-1", "2026-04-01")),
	})

	f.eng.TogglePayment(ctx, "missing-inst", "p-1")
	f.eng.TogglePayment(ctx, "inst-1", "missing-payment")

	size, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size, "no partial operation for a nonexistent target")
	stored := f.store.Read(ctx, testUser)
	assert.False(t, stored[0].Payments[0].IsPaid)
}

func TestUndo_PicksLatestDueDateAmongPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&fakeRemote{}, false)
	early := makePayment("early", "2026-01-01")
	early.IsPaid = true
	early.PaidDate = "2026-01-05"
	late := makePayment("late", "2026-02-01")
	late.IsPaid = true
	late.PaidDate = "2026-01-02" // paid earlier in wall time, due later
	f.store.Write(ctx, testUser, []models.Installment{makeInstallment("inst-1", testNow, early, late)})

	f.eng.UndoLastPayment(ctx, "inst-1")

	stored := f.store.Read(ctx, testUser)
	byID := map[string]models.Payment{}
	for _, p := range stored[0].Payments {
		byID[p.ID] = p
	}
	assert.True(t, byID["early"].IsPaid, "earlier due date stays paid")
	assert.False(t, byID["late"].IsPaid, "latest due date among paid is undone")
}

func TestUndo_NothingPaidIsDefinedNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&fakeRemote{}, false)
	before := []models.Installment{makeInstallment("inst-1", testNow, makePayment("p-1", "2026-04-01"))}
	f.store.Write(ctx, testUser, before)

	f.eng.UndoLastPayment(ctx, "inst-1")

	assert.Equal(t, before, f.store.Read(ctx, testUser))
	size, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestRefresh_MergesAgainstCurrentLocalState(t *testing.T) {
	ctx := context.Background()
	serverVersion := makeInstallment("inst-a", testNow.Add(-2*time.Hour))
	serverVersion.CreditorName = "server truth"
	remote := &fakeRemote{snapshots: map[string][]models.Installment{
		testUser: {serverVersion},
	}}
	gate := make(chan struct{})
	remote.gate = gate

	f := newFixture(remote, true)
	localVersion := serverVersion
	localVersion.CreditorName = "local edit"
	f.store.Write(ctx, testUser, []models.Installment{localVersion})

	// Load returns local data and leaves a refresh blocked on the fetch.
	got := f.eng.LoadInstallments(ctx)
	require.Len(t, got, 1)

	// A mutation lands while the remote response is in flight.
	f.eng.SaveInstallment(ctx, makeInstallment("inst-b", testNow.Add(-time.Hour)))

	close(gate)
	f.eng.Flush()

	merged := f.store.Read(ctx, testUser)
	require.Len(t, merged, 2, "in-flight refresh must not clobber the newer local write")
	byID := map[string]models.Installment{}
	for _, inst := range merged {
		byID[inst.ID] = inst
	}
	assert.Contains(t, byID, "inst-b")
	assert.Equal(t, "server truth", byID["inst-a"].CreditorName, "remote wins for shared ids")
}

func TestLoad_FirstRunMergesAgainstConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	remoteInst := makeInstallment("inst-remote", testNow.Add(-2*time.Hour))
	remote := &fakeRemote{snapshots: map[string][]models.Installment{
		testUser: {remoteInst},
	}}
	gate := make(chan struct{})
	remote.gate = gate
	remote.entered = make(chan struct{}, 1)

	f := newFixture(remote, true)

	// Nothing local, so the load blocks on the synchronous first fetch.
	loaded := make(chan []models.Installment, 1)
	go func() { loaded <- f.eng.LoadInstallments(ctx) }()
	<-remote.entered

	// A mutation is accepted while the remote response is in flight.
	f.eng.SaveInstallment(ctx, makeInstallment("inst-local", testNow.Add(-time.Hour)))

	close(gate)
	got := <-loaded

	require.Len(t, got, 2, "first load must not clobber a mutation accepted mid-fetch")
	assert.Equal(t, "inst-local", got[0].ID)
	assert.Equal(t, "inst-remote", got[1].ID)

	stored := f.store.Read(ctx, testUser)
	require.Len(t, stored, 2)
	assert.Equal(t, "inst-local", stored[0].ID)

	cached, ok := f.cache.Get(ctx, testUser)
	require.True(t, ok)
	require.Len(t, cached, 2)
	assert.Equal(t, "inst-local", cached[0].ID)
}

func TestPendingOperations_DelegatesToQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&fakeRemote{}, false)

	f.eng.SaveInstallment(ctx, makeInstallment("a", testNow))
	f.eng.DeleteInstallment(ctx, "a")

	count, err := f.eng.PendingOperations(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}
