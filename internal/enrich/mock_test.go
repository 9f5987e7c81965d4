package enrich

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/crm-import/pkg/waha"
)

type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) SyncProfile(ctx context.Context, req ProfileRequest) (*ProfileResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProfileResult), args.Error(1)
}

type mockPhotos struct {
	mock.Mock
}

func (m *mockPhotos) CheckExists(ctx context.Context, phone, session string) (*waha.CheckExistsResponse, error) {
	args := m.Called(ctx, phone, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*waha.CheckExistsResponse), args.Error(1)
}

func (m *mockPhotos) ProfilePicture(ctx context.Context, contactID, session string) (*waha.ProfilePictureResponse, error) {
	args := m.Called(ctx, contactID, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*waha.ProfilePictureResponse), args.Error(1)
}
