package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/fundflow/be-fund-requests/internal/repository"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func activeDelegation(id, from, to int64, createdAt time.Time) *repository.Delegation {
	return &repository.Delegation{
		ID:         id,
		FromUserID: from,
		ToUserID:   to,
		StartsAt:   testNow.Add(-time.Hour),
		EndsAt:     testNow.Add(time.Hour),
		CreatedAt:  createdAt,
	}
}

func TestResolveAssigneeNoDelegation(t *testing.T) {
	store := &fakeDelegationStore{}
	r := NewDelegationResolver(store, fixedClock, zerolog.Nop())

	got := r.ResolveAssignee(context.Background(), 7)

	assert.Equal(t, int64(7), got)
	assert.Equal(t, 1, store.calls)
}

func TestResolveAssigneeFollowsChain(t *testing.T) {
	store := &fakeDelegationStore{delegations: []*repository.Delegation{
		activeDelegation(1, 1, 2, testNow),
		activeDelegation(2, 2, 3, testNow),
	}}
	r := NewDelegationResolver(store, fixedClock, zerolog.Nop())

	got := r.ResolveAssignee(context.Background(), 1)

	assert.Equal(t, int64(3), got)
}

func TestResolveAssigneeCycleShortCircuits(t *testing.T) {
	store := &fakeDelegationStore{delegations: []*repository.Delegation{
		activeDelegation(1, 1, 2, testNow),
		activeDelegation(2, 2, 1, testNow),
	}}
	r := NewDelegationResolver(store, fixedClock, zerolog.Nop())

	got := r.ResolveAssignee(context.Background(), 1)

	// The chain is revisited at user 1; resolution terminates there instead
	// of looping.
	assert.Equal(t, int64(1), got)
}

func TestResolveAssigneeHopCap(t *testing.T) {
	var chain []*repository.Delegation
	for i := int64(1); i <= 10; i++ {
		chain = append(chain, activeDelegation(i, i, i+1, testNow))
	}
	store := &fakeDelegationStore{delegations: chain}
	r := NewDelegationResolver(store, fixedClock, zerolog.Nop())

	got := r.ResolveAssignee(context.Background(), 1)

	assert.Equal(t, int64(1+maxDelegationHops), got)
}

func TestResolveAssigneeIgnoresInactiveDelegations(t *testing.T) {
	revoked := activeDelegation(1, 1, 2, testNow)
	revoked.Revoked = true

	expired := activeDelegation(2, 1, 3, testNow)
	expired.EndsAt = testNow.Add(-time.Minute)

	future := activeDelegation(3, 1, 4, testNow)
	future.StartsAt = testNow.Add(time.Minute)

	store := &fakeDelegationStore{delegations: []*repository.Delegation{revoked, expired, future}}
	r := NewDelegationResolver(store, fixedClock, zerolog.Nop())

	got := r.ResolveAssignee(context.Background(), 1)

	assert.Equal(t, int64(1), got)
}

func TestResolveAssigneeMostRecentDelegationWins(t *testing.T) {
	store := &fakeDelegationStore{delegations: []*repository.Delegation{
		activeDelegation(1, 1, 2, testNow.Add(-2*time.Hour)),
		activeDelegation(2, 1, 3, testNow.Add(-time.Hour)),
	}}
	r := NewDelegationResolver(store, fixedClock, zerolog.Nop())

	got := r.ResolveAssignee(context.Background(), 1)

	assert.Equal(t, int64(3), got)
}

func TestResolveAssigneeLookupErrorDegradesToCurrent(t *testing.T) {
	store := &fakeDelegationStore{err: errors.New("connection refused")}
	r := NewDelegationResolver(store, fixedClock, zerolog.Nop())

	got := r.ResolveAssignee(context.Background(), 9)

	assert.Equal(t, int64(9), got)
}
