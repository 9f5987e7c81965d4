package directory

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/crm-import/pkg/waha"
)

type mockWahaClient struct {
	mock.Mock
}

func (m *mockWahaClient) CheckExists(ctx context.Context, phone, session string) (*waha.CheckExistsResponse, error) {
	args := m.Called(ctx, phone, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*waha.CheckExistsResponse), args.Error(1)
}

func (m *mockWahaClient) ProfilePicture(ctx context.Context, contactID, session string) (*waha.ProfilePictureResponse, error) {
	args := m.Called(ctx, contactID, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*waha.ProfilePictureResponse), args.Error(1)
}

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) Check(ctx context.Context, variant, session string) Check {
	args := m.Called(ctx, variant, session)
	return args.Get(0).(Check)
}
