package conn

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Sbillxx/telegrabber/tgclient"
)

// mockClient is a testify mock of the session client; the keeper only
// exercises the connection-lifecycle subset.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockClient) Disconnect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockClient) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *mockClient) CheckAuthorization(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockClient) ResolveEntity(ctx context.Context, identifier string) (*tgclient.Peer, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tgclient.Peer), args.Error(1)
}

func (m *mockClient) ListRecentConversations(ctx context.Context, limit int) ([]*tgclient.Peer, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*tgclient.Peer), args.Error(1)
}

func (m *mockClient) GetMessageByID(ctx context.Context, peer *tgclient.Peer, messageID int64) (*tgclient.Message, error) {
	args := m.Called(ctx, peer, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tgclient.Message), args.Error(1)
}

func (m *mockClient) GetRecentMessages(ctx context.Context, peer *tgclient.Peer, limit int) ([]*tgclient.Message, error) {
	args := m.Called(ctx, peer, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*tgclient.Message), args.Error(1)
}

func (m *mockClient) DownloadMedia(ctx context.Context, msg *tgclient.Message, opts tgclient.DownloadOptions) error {
	args := m.Called(ctx, msg, opts)
	return args.Error(0)
}
