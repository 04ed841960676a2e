// Package quota answers admission questions against an organization's
// configured resource ceilings. The evaluator is a pure query: the binding
// check-then-insert happens inside the store transactions, which lock the
// organization row. Callers use the evaluator for pre-checks and to build
// actionable quota errors.
package quota

import (
	"context"

	"github.com/google/uuid"

	"github.com/audiolens/scribed/internal/store"
)

// Evaluator reads an organization's limits and live counts.
type Evaluator struct {
	orgs  store.OrganizationStore
	users store.UserStore
	jobs  store.JobStore
}

// NewEvaluator creates an evaluator over the given stores.
func NewEvaluator(orgs store.OrganizationStore, users store.UserStore, jobs store.JobStore) *Evaluator {
	return &Evaluator{
		orgs:  orgs,
		users: users,
		jobs:  jobs,
	}
}

// Usage describes one resource's standing against its ceiling.
type Usage struct {
	Used  int
	Limit int
}

// Remaining returns the number of free slots, never negative.
func (u Usage) Remaining() int {
	if u.Used >= u.Limit {
		return 0
	}
	return u.Limit - u.Used
}

// CanAdmitUser reports whether the organization has a free user slot.
func (e *Evaluator) CanAdmitUser(ctx context.Context, orgID uuid.UUID) (bool, Usage, error) {
	org, err := e.orgs.Get(ctx, orgID)
	if err != nil {
		return false, Usage{}, err
	}

	used, err := e.users.CountByOrganization(ctx, orgID)
	if err != nil {
		return false, Usage{}, err
	}

	usage := Usage{Used: used, Limit: org.EffectiveMaxUsers()}
	return usage.Remaining() > 0, usage, nil
}

// CanAdmitJob reports whether the organization has a free concurrent-job
// slot. Only pending and processing jobs count; terminal jobs never do.
func (e *Evaluator) CanAdmitJob(ctx context.Context, orgID uuid.UUID) (bool, Usage, error) {
	org, err := e.orgs.Get(ctx, orgID)
	if err != nil {
		return false, Usage{}, err
	}

	used, err := e.jobs.CountActive(ctx, orgID)
	if err != nil {
		return false, Usage{}, err
	}

	usage := Usage{Used: used, Limit: org.EffectiveMaxConcurrentJobs()}
	return usage.Remaining() > 0, usage, nil
}
