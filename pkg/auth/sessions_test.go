package auth_test

import (
	"testing"
	"time"

	"github.com/lattice-run/agentgw/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_MintAndValidate(t *testing.T) {
	s := auth.NewSessionStore(time.Hour, 7*24*time.Hour)

	sess, err := s.Mint("alice", auth.KindAccess)
	require.NoError(t, err)

	got, err := s.Validate(sess.Token, auth.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.User)
}

func TestSessionStore_WrongKindRejected(t *testing.T) {
	s := auth.NewSessionStore(time.Hour, time.Hour)
	sess, _ := s.Mint("alice", auth.KindRefresh)

	_, err := s.Validate(sess.Token, auth.KindAccess)
	assert.ErrorIs(t, err, auth.ErrWrongKind)
}

func TestSessionStore_UnknownTokenRejected(t *testing.T) {
	s := auth.NewSessionStore(time.Hour, time.Hour)
	_, err := s.Validate("not-a-real-token", auth.KindAccess)
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func TestSessionStore_RevokeInvalidatesImmediately(t *testing.T) {
	s := auth.NewSessionStore(time.Hour, time.Hour)
	sess, _ := s.Mint("alice", auth.KindAccess)

	require.NoError(t, s.Revoke(sess.Token))

	_, err := s.Validate(sess.Token, auth.KindAccess)
	assert.ErrorIs(t, err, auth.ErrSessionRevoked)
}

func TestSessionStore_RevokeAllForUser(t *testing.T) {
	s := auth.NewSessionStore(time.Hour, time.Hour)
	a1, _ := s.Mint("alice", auth.KindAccess)
	a2, _ := s.Mint("alice", auth.KindRefresh)
	b1, _ := s.Mint("bob", auth.KindAccess)

	s.RevokeAllForUser("alice")

	_, err := s.Validate(a1.Token, auth.KindAccess)
	assert.ErrorIs(t, err, auth.ErrSessionRevoked)
	_, err = s.Validate(a2.Token, auth.KindRefresh)
	assert.ErrorIs(t, err, auth.ErrSessionRevoked)

	_, err = s.Validate(b1.Token, auth.KindAccess)
	assert.NoError(t, err)
}

func TestSessionStore_ExpiredTokenRejected(t *testing.T) {
	s := auth.NewSessionStore(time.Millisecond, time.Hour)
	sess, _ := s.Mint("alice", auth.KindAccess)

	time.Sleep(10 * time.Millisecond)
	_, err := s.Validate(sess.Token, auth.KindAccess)
	assert.ErrorIs(t, err, auth.ErrSessionExpired)
}
