// Package memory holds an in-memory Job Store with the same conditional-update
// semantics as the gorm repositories. Tests of the scheduler and the dispatcher
// run against it.
package memory

import (
	"math"
	"sort"
	"sync"
	"time"

	domainErrors "go-wa-campaign-api/src/domain/errors"
	domainMassMessage "go-wa-campaign-api/src/domain/massmessage"
)

type JobStore struct {
	mu      sync.Mutex
	jobs    map[int]*domainMassMessage.MassMessageJob
	records map[int][]*domainMassMessage.DeliveryRecord
	nextID  int
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs:    map[int]*domainMassMessage.MassMessageJob{},
		records: map[int][]*domainMassMessage.DeliveryRecord{},
	}
}

func (s *JobStore) CreateWithRecipients(job *domainMassMessage.MassMessageJob, recipients []domainMassMessage.Recipient) (*domainMassMessage.MassMessageJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	for _, r := range recipients {
		if seen[r.Phone] {
			return nil, domainErrors.NewAppErrorWithType(domainErrors.ValidationError)
		}
		seen[r.Phone] = true
	}
	s.nextID++
	stored := *job
	stored.ID = s.nextID
	stored.CreatedAt = time.Now().UTC()
	s.jobs[stored.ID] = &stored
	for i, r := range recipients {
		s.nextID++
		s.records[stored.ID] = append(s.records[stored.ID], &domainMassMessage.DeliveryRecord{
			ID:      s.nextID,
			JobID:   stored.ID,
			Seq:     i + 1,
			Phone:   r.Phone,
			Name:    r.Name,
			GroupID: r.GroupID,
			State:   domainMassMessage.DeliveryPending,
		})
	}
	out := stored
	return &out, nil
}

func (s *JobStore) GetByID(id int) (*domainMassMessage.MassMessageJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domainErrors.NewAppErrorWithType(domainErrors.NotFound)
	}
	out := *job
	return &out, nil
}

func (s *JobStore) GetForCompany(companyID, id int) (*domainMassMessage.MassMessageJob, error) {
	job, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if job.CompanyID != companyID {
		return nil, domainErrors.NewAppErrorWithType(domainErrors.NotFound)
	}
	return job, nil
}

func (s *JobStore) Transition(id int, from, to domainMassMessage.Status, fields map[string]interface{}) (bool, error) {
	if !domainMassMessage.CanTransition(from, to) {
		return false, domainErrors.NewAppErrorWithType(domainErrors.InvalidTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != from {
		return false, nil
	}
	job.Status = to
	for k, v := range fields {
		switch k {
		case "startedAt":
			t := v.(time.Time)
			job.StartedAt = &t
		case "completedAt":
			t := v.(time.Time)
			job.CompletedAt = &t
		case "heartbeatAt":
			t := v.(time.Time)
			job.HeartbeatAt = &t
		case "claimedBy":
			job.ClaimedBy = v.(string)
		case "failureReason":
			job.FailureReason = v.(string)
		}
	}
	return true, nil
}

func (s *JobStore) list(match func(*domainMassMessage.MassMessageJob) bool, limit int) *[]domainMassMessage.MassMessageJob {
	var out []domainMassMessage.MassMessageJob
	for _, job := range s.jobs {
		if match(job) {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return &out
}

func (s *JobStore) ListDueScheduled(now time.Time, limit int) (*[]domainMassMessage.MassMessageJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(j *domainMassMessage.MassMessageJob) bool {
		return j.Status == domainMassMessage.StatusScheduled && j.ScheduledFor != nil && !j.ScheduledFor.After(now)
	}, limit), nil
}

func stale(j *domainMassMessage.MassMessageJob, staleBefore time.Time) bool {
	return j.Status == domainMassMessage.StatusProcessing && (j.HeartbeatAt == nil || j.HeartbeatAt.Before(staleBefore))
}

func (s *JobStore) ListStaleProcessing(staleBefore time.Time, limit int) (*[]domainMassMessage.MassMessageJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(j *domainMassMessage.MassMessageJob) bool { return stale(j, staleBefore) }, limit), nil
}

func (s *JobStore) ClaimLease(id int, claimant string, staleBefore, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || !stale(job, staleBefore) {
		return false, nil
	}
	job.ClaimedBy = claimant
	job.HeartbeatAt = &now
	return true, nil
}

func (s *JobStore) Heartbeat(id int, claimant string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != domainMassMessage.StatusProcessing || job.ClaimedBy != claimant {
		return false, nil
	}
	job.HeartbeatAt = &now
	return true, nil
}

func (s *JobStore) ListByCompany(companyID, page, limit int) (*domainMassMessage.SearchResultJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.list(func(j *domainMassMessage.MassMessageJob) bool { return j.CompanyID == companyID }, 0)
	jobs := *all
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID > jobs[j].ID })
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start > len(jobs) {
		start = len(jobs)
	}
	end := start + limit
	if end > len(jobs) {
		end = len(jobs)
	}
	pageJobs := append([]domainMassMessage.MassMessageJob(nil), jobs[start:end]...)
	return &domainMassMessage.SearchResultJob{
		Data:       &pageJobs,
		Total:      int64(len(jobs)),
		Page:       page,
		PageSize:   limit,
		TotalPages: int(math.Ceil(float64(len(jobs)) / float64(limit))),
	}, nil
}

func (s *JobStore) ListByJob(jobID int) (*[]domainMassMessage.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domainMassMessage.DeliveryRecord, len(s.records[jobID]))
	for i, r := range s.records[jobID] {
		out[i] = *r
	}
	return &out, nil
}

func (s *JobStore) RecordOutcome(jobID, recordID int, state domainMassMessage.DeliveryState, errMsg string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records[jobID] {
		if r.ID != recordID {
			continue
		}
		if r.State != domainMassMessage.DeliveryPending {
			return false, nil
		}
		r.State = state
		r.Error = errMsg
		attempted := at
		r.AttemptedAt = &attempted
		if job, ok := s.jobs[jobID]; ok {
			if job.SentCount < job.TotalRecipients {
				job.SentCount++
			}
			job.HeartbeatAt = &attempted
		}
		return true, nil
	}
	return false, nil
}

func (s *JobStore) Counts(jobID int) (domainMassMessage.DeliveryCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts domainMassMessage.DeliveryCounts
	for _, r := range s.records[jobID] {
		switch r.State {
		case domainMassMessage.DeliveryPending:
			counts.Pending++
		case domainMassMessage.DeliverySent:
			counts.Sent++
		case domainMassMessage.DeliveryFailed:
			counts.Errored++
		}
	}
	return counts, nil
}

func (s *JobStore) Errors(jobID int) ([]domainMassMessage.DeliveryError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domainMassMessage.DeliveryError
	for _, r := range s.records[jobID] {
		if r.State == domainMassMessage.DeliveryFailed {
			entry := domainMassMessage.DeliveryError{Phone: r.Phone, Error: r.Error}
			if r.AttemptedAt != nil {
				entry.At = *r.AttemptedAt
			}
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// SetStatus forces a job into a status, bypassing the state machine. Used to
// stage fixtures.
func (s *JobStore) SetStatus(id int, status domainMassMessage.Status, scheduledFor, heartbeatAt *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = status
		job.ScheduledFor = scheduledFor
		job.HeartbeatAt = heartbeatAt
	}
}
