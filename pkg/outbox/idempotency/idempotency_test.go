package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	seen        map[string]bool
	setNXError  error
	lastTTL     time.Duration
	lastDeleted string
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: map[string]bool{}}
}

func (f *fakeStore) Get(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if f.setNXError != nil {
		return false, f.setNXError
	}
	f.lastTTL = ttl
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeStore) Set(context.Context, string, any, time.Duration) error {
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "canopy:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.seen, k)
		f.lastDeleted = k
	}
	return nil
}

func TestCheckAndMarkProcessedDetectsRedelivery(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, 24*time.Hour)
	require.NoError(t, err)

	eventID := uuid.New()
	already, err := manager.CheckAndMarkProcessed(context.Background(), "loyalty-sync", eventID)
	require.NoError(t, err)
	require.False(t, already)
	require.Equal(t, 24*time.Hour, store.lastTTL)

	already, err = manager.CheckAndMarkProcessed(context.Background(), "loyalty-sync", eventID)
	require.NoError(t, err)
	require.True(t, already)

	// a different consumer keeps its own ledger
	already, err = manager.CheckAndMarkProcessed(context.Background(), "audit", eventID)
	require.NoError(t, err)
	require.False(t, already)
}

func TestCheckAndMarkProcessedStoreError(t *testing.T) {
	store := newFakeStore()
	store.setNXError = errors.New("boom")
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	_, err = manager.CheckAndMarkProcessed(context.Background(), "loyalty-sync", uuid.New())
	require.Error(t, err)
}

func TestCheckAndMarkProcessedRejectsBadInput(t *testing.T) {
	manager, err := NewManager(newFakeStore(), time.Hour)
	require.NoError(t, err)

	_, err = manager.CheckAndMarkProcessed(context.Background(), "", uuid.New())
	require.Error(t, err)
	_, err = manager.CheckAndMarkProcessed(context.Background(), "loyalty-sync", uuid.Nil)
	require.Error(t, err)
}

func TestReleaseAllowsReprocessing(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	eventID := uuid.New()
	_, err = manager.CheckAndMarkProcessed(context.Background(), "loyalty-sync", eventID)
	require.NoError(t, err)
	require.NoError(t, manager.Release(context.Background(), "loyalty-sync", eventID))
	require.Equal(t, "canopy:idempotency:evt:loyalty-sync:"+eventID.String(), store.lastDeleted)

	already, err := manager.CheckAndMarkProcessed(context.Background(), "loyalty-sync", eventID)
	require.NoError(t, err)
	require.False(t, already)
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	require.Error(t, err)
	_, err = NewManager(newFakeStore(), -time.Second)
	require.Error(t, err)
}
