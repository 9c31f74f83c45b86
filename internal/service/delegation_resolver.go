package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// maxDelegationHops bounds chain walking independently of cycle detection.
// Defense in depth: the cap holds even if the visited-set logic is bypassed by
// a malformed graph.
const maxDelegationHops = 5

// DelegationResolver follows active personal-delegation chains to the
// effective assignee.
type DelegationResolver struct {
	delegations DelegationStore
	now         func() time.Time
	log         zerolog.Logger
}

// NewDelegationResolver creates a resolver. A nil clock defaults to time.Now.
func NewDelegationResolver(delegations DelegationStore, now func() time.Time, log zerolog.Logger) *DelegationResolver {
	if now == nil {
		now = time.Now
	}
	return &DelegationResolver{delegations: delegations, now: now, log: log}
}

// ResolveAssignee walks the delegation chain starting at intendedUserID and
// returns the effective assignee. It never fails: lookup errors, cycles and
// over-long chains all degrade to returning whoever was last reached, so
// callers can always act even under a malformed delegation graph.
//
// A user with no active delegation is returned unchanged without any
// bookkeeping cost. A cycle returns the user at which the chain was first
// revisited.
func (r *DelegationResolver) ResolveAssignee(ctx context.Context, intendedUserID int64) int64 {
	now := r.now().UTC()
	current := intendedUserID
	visited := map[int64]bool{current: true}

	for hop := 0; hop < maxDelegationHops; hop++ {
		d, err := r.delegations.ActiveDelegation(ctx, current, now)
		if err != nil {
			r.log.Warn().Err(err).
				Int64("user_id", current).
				Int64("intended_user_id", intendedUserID).
				Msg("Delegation lookup failed; assigning to last reached user")
			return current
		}
		if d == nil {
			return current
		}
		if visited[d.ToUserID] {
			r.log.Warn().
				Int64("intended_user_id", intendedUserID).
				Int64("cycle_user_id", d.ToUserID).
				Msg("Delegation cycle detected; short-circuiting")
			return d.ToUserID
		}
		visited[d.ToUserID] = true
		current = d.ToUserID
	}

	r.log.Warn().
		Int64("intended_user_id", intendedUserID).
		Int64("final_user_id", current).
		Int("max_hops", maxDelegationHops).
		Msg("Delegation chain exceeded hop cap; truncating")
	return current
}
