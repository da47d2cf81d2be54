package authz_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/authz"
	"github.com/stretchr/testify/require"
)

type fakeMemberships struct {
	members map[string]bool // "<kind>:<rid>:<uid>"
	err     error
}

func (f *fakeMemberships) ResourceMembership(_ context.Context, kind, resourceID, userID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.members[kind+":"+resourceID+":"+userID], nil
}

func newAuthorizer(lookup *fakeMemberships) *authz.Authorizer {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	return authz.New(lookup, logger)
}

func TestCanJoinUserRoom(t *testing.T) {
	a := newAuthorizer(&fakeMemberships{})
	ctx := context.Background()

	require.True(t, a.CanJoinRoom(ctx, "alice", "user:alice").Allow)

	d := a.CanJoinRoom(ctx, "alice", "user:bob")
	require.False(t, d.Allow)
	require.Equal(t, "not your user room", d.Reason)
}

func TestCanJoinResourceRooms(t *testing.T) {
	lookup := &fakeMemberships{members: map[string]bool{
		"club:c1:alice":   true,
		"event:e1:alice":  true,
		"crisis:x1:alice": true,
	}}
	a := newAuthorizer(lookup)
	ctx := context.Background()

	require.True(t, a.CanJoinRoom(ctx, "alice", "club:c1").Allow)
	require.True(t, a.CanJoinRoom(ctx, "alice", "event:e1").Allow)
	require.True(t, a.CanJoinRoom(ctx, "alice", "crisis:x1").Allow)

	d := a.CanJoinRoom(ctx, "bob", "club:c1")
	require.False(t, d.Allow)
	require.Equal(t, "not a member", d.Reason)
}

func TestLookupFailureDenies(t *testing.T) {
	a := newAuthorizer(&fakeMemberships{err: errors.New("store down")})

	d := a.CanJoinRoom(context.Background(), "alice", "club:c1")
	require.False(t, d.Allow)
	require.Equal(t, "membership check unavailable", d.Reason)
}

func TestMalformedAndUnknownRooms(t *testing.T) {
	a := newAuthorizer(&fakeMemberships{})
	ctx := context.Background()

	require.False(t, a.CanJoinRoom(ctx, "alice", "noseparator").Allow)
	require.False(t, a.CanJoinRoom(ctx, "alice", "club:").Allow)
	require.False(t, a.CanJoinRoom(ctx, "alice", "shard:s1").Allow)
}

func TestCanSignal(t *testing.T) {
	a := newAuthorizer(&fakeMemberships{})

	require.True(t, a.CanSignal("alice", "bob", "alice").Allow)
	require.True(t, a.CanSignal("alice", "bob", "bob").Allow)
	require.False(t, a.CanSignal("alice", "bob", "mallory").Allow)
}
