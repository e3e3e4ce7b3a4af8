package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Sbillxx/telegrabber/errs"
	"github.com/Sbillxx/telegrabber/link"
	"github.com/Sbillxx/telegrabber/tgclient"
)

func privateRef(id string) *link.Reference {
	return &link.Reference{Kind: link.PrivateByID, ChannelIdentifier: id, MessageID: 1}
}

func publicRef(identifier string) *link.Reference {
	return &link.Reference{Kind: link.Public, ChannelIdentifier: identifier, MessageID: 1}
}

func TestResolveFailsWhenDisconnected(t *testing.T) {
	c := &mockClient{}
	c.On("IsConnected").Return(false)

	r := NewResolver(c)
	_, err := r.Resolve(context.Background(), privateRef("1234567890"))
	require.Error(t, err)
	assert.Equal(t, errs.ClientNotConnected, errs.KindOf(err))
	c.AssertNotCalled(t, "ListRecentConversations")
	c.AssertNotCalled(t, "ResolveEntity")
}

func TestResolvePrivateViaDialogScan(t *testing.T) {
	c := &mockClient{}
	c.On("IsConnected").Return(true)
	// The channel appears in the conversation list under its negated id.
	c.On("ListRecentConversations", mock.Anything, DialogScanLimit).Return([]*tgclient.Peer{
		{ID: 42, Title: "unrelated"},
		{ID: -1234567890, Title: "target channel"},
	}, nil)

	r := NewResolver(c)
	peer, err := r.Resolve(context.Background(), privateRef("1234567890"))
	require.NoError(t, err)
	assert.Equal(t, int64(-1234567890), peer.ID)

	// Strategy (a) succeeded, so no direct-resolve call was made.
	c.AssertNotCalled(t, "ResolveEntity")
}

func TestResolvePrivateViaMarkerPrefix(t *testing.T) {
	c := &mockClient{}
	c.On("IsConnected").Return(true)
	c.On("ListRecentConversations", mock.Anything, DialogScanLimit).Return([]*tgclient.Peer{}, nil)
	c.On("ResolveEntity", mock.Anything, "-1001234567890").Return(&tgclient.Peer{ID: -1001234567890, Title: "t"}, nil)

	r := NewResolver(c)
	peer, err := r.Resolve(context.Background(), privateRef("1234567890"))
	require.NoError(t, err)
	assert.Equal(t, int64(-1001234567890), peer.ID)
	c.AssertNumberOfCalls(t, "ResolveEntity", 1)
}

func TestResolvePrivateCascadeOrder(t *testing.T) {
	c := &mockClient{}
	c.On("IsConnected").Return(true)
	c.On("ListRecentConversations", mock.Anything, DialogScanLimit).Return(nil, errors.New("FLOOD_WAIT_5"))
	c.On("ResolveEntity", mock.Anything, "-1001234567890").Return(nil, errors.New("CHANNEL_INVALID")).Once()
	c.On("ResolveEntity", mock.Anything, "-1234567890").Return(nil, errors.New("PEER_ID_INVALID")).Once()
	c.On("ResolveEntity", mock.Anything, "1234567890").Return(&tgclient.Peer{ID: 1234567890}, nil).Once()

	r := NewResolver(c)
	peer, err := r.Resolve(context.Background(), privateRef("1234567890"))
	require.NoError(t, err)
	assert.Equal(t, int64(1234567890), peer.ID)
	c.AssertExpectations(t)
}

func TestResolvePrivateExhaustion(t *testing.T) {
	c := &mockClient{}
	c.On("IsConnected").Return(true)
	c.On("ListRecentConversations", mock.Anything, DialogScanLimit).Return([]*tgclient.Peer{{ID: 7}}, nil)
	c.On("ResolveEntity", mock.Anything, mock.Anything).Return(nil, errors.New("CHANNEL_INVALID"))

	r := NewResolver(c)
	_, err := r.Resolve(context.Background(), privateRef("1234567890"))
	require.Error(t, err)
	assert.Equal(t, errs.PeerUnreachable, errs.KindOf(err))
	// The diagnostic lists the membership preconditions.
	assert.Contains(t, err.Error(), "member")
	c.AssertNumberOfCalls(t, "ResolveEntity", 3)
}

func TestResolvePublicUsername(t *testing.T) {
	c := &mockClient{}
	c.On("IsConnected").Return(true)
	c.On("ResolveEntity", mock.Anything, "news").Return(&tgclient.Peer{ID: -100500, Username: "news"}, nil)

	r := NewResolver(c)
	peer, err := r.Resolve(context.Background(), publicRef("news"))
	require.NoError(t, err)
	assert.Equal(t, "news", peer.Username)
}

func TestResolvePublicUsernameNoRetry(t *testing.T) {
	c := &mockClient{}
	c.On("IsConnected").Return(true)
	c.On("ResolveEntity", mock.Anything, "ghost").Return(nil, errors.New("USERNAME_NOT_OCCUPIED"))

	r := NewResolver(c)
	_, err := r.Resolve(context.Background(), publicRef("ghost"))
	require.Error(t, err)
	assert.Equal(t, errs.PeerUnreachable, errs.KindOf(err))
	c.AssertNumberOfCalls(t, "ResolveEntity", 1)
}

func TestResolvePublicNumericRetriesWithMarker(t *testing.T) {
	c := &mockClient{}
	c.On("IsConnected").Return(true)
	c.On("ResolveEntity", mock.Anything, "1234567890").Return(nil, errors.New("CHAT_NOT_FOUND")).Once()
	c.On("ResolveEntity", mock.Anything, "-1001234567890").Return(&tgclient.Peer{ID: -1001234567890}, nil).Once()

	r := NewResolver(c)
	peer, err := r.Resolve(context.Background(), publicRef("1234567890"))
	require.NoError(t, err)
	assert.Equal(t, int64(-1001234567890), peer.ID)
	c.AssertExpectations(t)
}
