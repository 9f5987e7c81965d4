package progress

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/crm-import/internal/model"
)

type mockJobStore struct {
	mock.Mock
}

func (m *mockJobStore) CreateJob(ctx context.Context, companyID, name string, total int) (*model.ImportJob, error) {
	args := m.Called(ctx, companyID, name, total)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ImportJob), args.Error(1)
}

func (m *mockJobStore) GetJob(ctx context.Context, companyID, jobID string) (*model.ImportJob, error) {
	args := m.Called(ctx, companyID, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ImportJob), args.Error(1)
}

func (m *mockJobStore) StartJob(ctx context.Context, companyID, jobID string, total int) error {
	return m.Called(ctx, companyID, jobID, total).Error(0)
}

func (m *mockJobStore) UpdateJobProgress(ctx context.Context, companyID, jobID string, p model.JobProgress) error {
	return m.Called(ctx, companyID, jobID, p).Error(0)
}

func (m *mockJobStore) FinishJob(ctx context.Context, companyID, jobID string, p model.JobProgress) error {
	return m.Called(ctx, companyID, jobID, p).Error(0)
}

func (m *mockJobStore) AbortStaleJobs(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}
