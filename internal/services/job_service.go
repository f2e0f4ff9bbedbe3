package services

import (
	"github.com/estatedesk/ledger-api/internal/jobs"
)

// JobService exposes background worker state to the API
type JobService struct {
	worker *jobs.Worker
}

func NewJobService(worker *jobs.Worker) *JobService {
	return &JobService{worker: worker}
}

// Stats returns current worker statistics
func (s *JobService) Stats() jobs.WorkerStats {
	return s.worker.GetStats()
}
