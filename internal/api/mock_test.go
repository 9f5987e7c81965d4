package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/crm-import/internal/auth"
	"github.com/sells-group/crm-import/internal/importer"
	"github.com/sells-group/crm-import/internal/model"
)

type mockImporter struct {
	mock.Mock
}

func (m *mockImporter) Run(ctx context.Context, job importer.Job) (*model.Summary, error) {
	args := m.Called(ctx, job)
	if v := args.Get(0); v != nil {
		return v.(*model.Summary), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockJobs struct {
	mock.Mock
}

func (m *mockJobs) GetJob(ctx context.Context, companyID, jobID string) (*model.ImportJob, error) {
	args := m.Called(ctx, companyID, jobID)
	if v := args.Get(0); v != nil {
		return v.(*model.ImportJob), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPinger struct {
	mock.Mock
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var _ TokenValidator = (*auth.Manager)(nil)
