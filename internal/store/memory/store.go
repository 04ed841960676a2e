package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiolens/scribed/internal/models"
	"github.com/audiolens/scribed/internal/store"
)

// Store holds all in-memory tables. It exists for tests and the development
// store mode; data is lost on restart. A single mutex covers every table,
// which gives the same atomicity the PostgreSQL implementation gets from
// transactions and row locks: admission checks, counter updates, and cascade
// deletes are indivisible with respect to concurrent callers.
//
// The per-entity store interfaces are exposed as facade views over the shared
// state: Organizations(), Users(), Records(), Jobs().
type Store struct {
	mu sync.Mutex

	organizations map[uuid.UUID]*models.Organization
	users         map[uuid.UUID]*models.User
	records       map[uuid.UUID]*models.StorageRecord
	jobs          map[uuid.UUID]*models.Job
	results       map[uuid.UUID]*models.AnalysisResult // keyed by job_id
	emails        map[string]struct{}
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		organizations: make(map[uuid.UUID]*models.Organization),
		users:         make(map[uuid.UUID]*models.User),
		records:       make(map[uuid.UUID]*models.StorageRecord),
		jobs:          make(map[uuid.UUID]*models.Job),
		results:       make(map[uuid.UUID]*models.AnalysisResult),
		emails:        make(map[string]struct{}),
	}
}

// Organizations returns the store.OrganizationStore view.
func (s *Store) Organizations() *OrganizationStore { return &OrganizationStore{s: s} }

// Users returns the store.UserStore view.
func (s *Store) Users() *UserStore { return &UserStore{s: s} }

// Records returns the store.StorageStore view.
func (s *Store) Records() *StorageStore { return &StorageStore{s: s} }

// Jobs returns the store.JobStore view.
func (s *Store) Jobs() *JobStore { return &JobStore{s: s} }

// OrganizationStore implements store.OrganizationStore over the shared state.
type OrganizationStore struct{ s *Store }

var _ store.OrganizationStore = (*OrganizationStore)(nil)

func (v *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emails[org.Email]; taken {
		return store.ErrEmailTaken
	}

	clone := *org
	s.organizations[org.OrgID] = &clone
	s.emails[org.Email] = struct{}{}

	return nil
}

func (v *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}

func (v *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.organizations[org.OrgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	// Counter and lifecycle fields are owned by the store, not callers.
	org.UpdatedAt = time.Now()
	org.TotalMemberCount = existing.TotalMemberCount
	org.ArchivedAt = existing.ArchivedAt

	clone := *org
	s.organizations[org.OrgID] = &clone

	return nil
}

func (v *OrganizationStore) Archive(ctx context.Context, orgID uuid.UUID, at time.Time) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	if org.ArchivedAt == nil {
		archivedAt := at
		org.ArchivedAt = &archivedAt
		org.UpdatedAt = at
	}

	return nil
}

func (v *OrganizationStore) ListExpired(ctx context.Context, cutoff time.Time) ([]*models.Organization, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*models.Organization
	for _, org := range s.organizations {
		if org.ArchivedAt != nil && !org.ArchivedAt.After(cutoff) {
			clone := *org
			expired = append(expired, &clone)
		}
	}

	return expired, nil
}

func (v *OrganizationStore) Purge(ctx context.Context, orgID uuid.UUID) (store.PurgeCounts, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return store.PurgeCounts{}, store.ErrOrganizationNotFound
	}

	var counts store.PurgeCounts

	for jobID, job := range s.jobs {
		if job.OrgID != orgID {
			continue
		}
		if _, ok := s.results[jobID]; ok {
			delete(s.results, jobID)
			counts.Results++
		}
		delete(s.jobs, jobID)
		counts.Jobs++
	}

	for fileID, rec := range s.records {
		if rec.OrgID == orgID {
			delete(s.records, fileID)
			counts.StorageRecords++
		}
	}

	for userID, user := range s.users {
		if user.OrgID == orgID {
			delete(s.emails, user.Email)
			delete(s.users, userID)
			counts.Users++
		}
	}

	delete(s.emails, org.Email)
	delete(s.organizations, orgID)

	return counts, nil
}

// UserStore implements store.UserStore over the shared state.
type UserStore struct{ s *Store }

var _ store.UserStore = (*UserStore)(nil)

func (v *UserStore) Create(ctx context.Context, user *models.User) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.organizations[user.OrgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}
	if org.ArchivedAt != nil {
		return store.ErrOrganizationArchived
	}

	if _, taken := s.emails[user.Email]; taken {
		return store.ErrEmailTaken
	}

	count := 0
	for _, u := range s.users {
		if u.OrgID == user.OrgID {
			count++
		}
	}
	if count >= org.EffectiveMaxUsers() {
		return store.ErrUserQuotaExceeded
	}

	clone := *user
	s.users[user.UserID] = &clone
	s.emails[user.Email] = struct{}{}
	org.TotalMemberCount++
	org.UpdatedAt = time.Now()

	return nil
}

func (v *UserStore) Get(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) (*models.User, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists || (orgID != nil && user.OrgID != *orgID) {
		return nil, store.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

func (v *UserStore) Delete(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists || (orgID != nil && user.OrgID != *orgID) {
		return store.ErrUserNotFound
	}

	delete(s.emails, user.Email)
	delete(s.users, userID)

	if org, ok := s.organizations[user.OrgID]; ok && org.TotalMemberCount > 0 {
		org.TotalMemberCount--
		org.UpdatedAt = time.Now()
	}

	return nil
}

func (v *UserStore) CountByOrganization(ctx context.Context, orgID uuid.UUID) (int, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, u := range s.users {
		if u.OrgID == orgID {
			count++
		}
	}
	return count, nil
}

// StorageStore implements store.StorageStore over the shared state.
type StorageStore struct{ s *Store }

var _ store.StorageStore = (*StorageStore)(nil)

func (v *StorageStore) Create(ctx context.Context, rec *models.StorageRecord) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[rec.OrgID]; !exists {
		return store.ErrOrganizationNotFound
	}

	clone := *rec
	s.records[rec.FileID] = &clone

	return nil
}

func (v *StorageStore) Get(ctx context.Context, fileID uuid.UUID, orgID *uuid.UUID) (*models.StorageRecord, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[fileID]
	if !exists || (orgID != nil && rec.OrgID != *orgID) {
		return nil, store.ErrStorageRecordNotFound
	}

	clone := *rec
	return &clone, nil
}

func (v *StorageStore) Update(ctx context.Context, rec *models.StorageRecord) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.records[rec.FileID]
	if !exists {
		return store.ErrStorageRecordNotFound
	}

	existing.Filename = rec.Filename
	existing.Mimetype = rec.Mimetype
	existing.UpdatedAt = time.Now()

	return nil
}

func (v *StorageStore) Delete(ctx context.Context, fileID uuid.UUID, orgID *uuid.UUID) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[fileID]
	if !exists || (orgID != nil && rec.OrgID != *orgID) {
		return store.ErrStorageRecordNotFound
	}

	delete(s.records, fileID)

	return nil
}

// JobStore implements store.JobStore over the shared state.
type JobStore struct{ s *Store }

var _ store.JobStore = (*JobStore)(nil)

func (v *JobStore) Create(ctx context.Context, job *models.Job) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.organizations[job.OrgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}
	if org.ArchivedAt != nil {
		return store.ErrOrganizationArchived
	}
	// Postgres enforces jobs.file_id as a foreign key; mirror it here.
	if _, exists := s.records[job.FileID]; !exists {
		return store.ErrStorageRecordNotFound
	}

	active := 0
	for _, j := range s.jobs {
		if j.OrgID == job.OrgID && j.Status.Active() {
			active++
		}
	}
	if active >= org.EffectiveMaxConcurrentJobs() {
		return store.ErrJobQuotaExceeded
	}

	clone := *job
	s.jobs[job.JobID] = &clone

	return nil
}

func (v *JobStore) Get(ctx context.Context, jobID uuid.UUID, orgID *uuid.UUID) (*models.Job, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || (orgID != nil && job.OrgID != *orgID) {
		return nil, store.ErrJobNotFound
	}

	clone := *job
	return &clone, nil
}

func (v *JobStore) ApplyOutcome(ctx context.Context, jobID uuid.UUID, outcome *models.JobOutcome) (bool, error) {
	if !outcome.Status.IsTerminal() {
		return false, fmt.Errorf("outcome status %q is not terminal", outcome.Status)
	}

	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return false, store.ErrJobNotFound
	}

	if job.Status.IsTerminal() {
		// Idempotent retry: no state change, no second result row.
		return false, nil
	}

	now := time.Now()
	job.Status = outcome.Status
	job.CompletedAt = &now
	job.UpdatedAt = now

	if outcome.Status == models.JobStatusFailed {
		errMsg := outcome.Error
		job.Error = &errMsg
		return true, nil
	}

	s.results[jobID] = &models.AnalysisResult{
		ResultID:   uuid.Must(uuid.NewV7()),
		JobID:      jobID,
		Transcript: outcome.Transcript,
		Sentiment:  outcome.Sentiment,
		Metadata:   outcome.Metadata,
		CreatedAt:  now,
	}

	return true, nil
}

func (v *JobStore) MarkProcessing(ctx context.Context, jobID uuid.UUID) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return store.ErrJobNotFound
	}

	if job.Status == models.JobStatusPending {
		now := time.Now()
		job.Status = models.JobStatusProcessing
		job.StartedAt = &now
		job.UpdatedAt = now
	}

	return nil
}

func (v *JobStore) GetResult(ctx context.Context, jobID uuid.UUID, orgID *uuid.UUID) (*models.AnalysisResult, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || (orgID != nil && job.OrgID != *orgID) {
		return nil, store.ErrResultNotFound
	}

	result, exists := s.results[jobID]
	if !exists {
		return nil, store.ErrResultNotFound
	}

	clone := *result
	return &clone, nil
}

func (v *JobStore) CountActive(ctx context.Context, orgID uuid.UUID) (int, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, j := range s.jobs {
		if j.OrgID == orgID && j.Status.Active() {
			active++
		}
	}
	return active, nil
}
