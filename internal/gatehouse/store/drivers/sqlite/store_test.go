package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tokablelabs/gatehouse/internal/gatehouse/domain"
	"github.com/tokablelabs/gatehouse/internal/gatehouse/store"
	"github.com/tokablelabs/gatehouse/pkg/idx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func newUser(username, email string) domain.User {
	return domain.User{
		ID:           idx.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: "$argon2id$stand-in",
		Enabled:      true,
		DisplayName:  username,
		LastSeen:     time.Now().UTC(),
	}
}

func TestUsersCRUD(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	alice := newUser("alice", "alice@example.test")
	require.NoError(t, st.Users().CreateUser(ctx, alice))

	t.Run("get by id", func(t *testing.T) {
		got, err := st.Users().GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, "alice", got.Username)
		require.True(t, got.Enabled)
		require.False(t, got.CreatedAt.IsZero())
	})

	t.Run("get by username", func(t *testing.T) {
		got, err := st.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, alice.ID, got.ID)
	})

	t.Run("get by email", func(t *testing.T) {
		got, err := st.Users().GetUserByEmail(ctx, "alice@example.test")
		require.NoError(t, err)
		require.Equal(t, alice.ID, got.ID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := st.Users().GetUserByUsername(ctx, "nobody")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		dup := newUser("alice", "other@example.test")
		require.Error(t, st.Users().CreateUser(ctx, dup))
	})

	t.Run("update password hash", func(t *testing.T) {
		require.NoError(t, st.Users().UpdatePasswordHash(ctx, alice.ID, "$argon2id$rotated"))
		got, err := st.Users().GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, "$argon2id$rotated", got.PasswordHash)
	})

	t.Run("set enabled", func(t *testing.T) {
		require.NoError(t, st.Users().SetEnabled(ctx, alice.ID, false))
		got, err := st.Users().GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.False(t, got.Enabled)
	})
}

func TestUsersLoginState(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	alice := newUser("alice", "alice@example.test")
	require.NoError(t, st.Users().CreateUser(ctx, alice))

	until := time.Now().UTC().Add(9 * time.Second)
	require.NoError(t, st.Users().UpdateLoginState(ctx, alice.ID, 7, &until))

	got, err := st.Users().GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 7, got.FailedLogins)
	require.NotNil(t, got.ThrottledUntil)
	require.True(t, got.ThrottledUntil.Equal(until))

	require.NoError(t, st.Users().UpdateLoginState(ctx, alice.ID, 0, nil))
	got, err = st.Users().GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	require.Zero(t, got.FailedLogins)
	require.Nil(t, got.ThrottledUntil)
}

func TestUsersShadowCredentials(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	alice := newUser("alice", "alice@example.test")
	require.NoError(t, st.Users().CreateUser(ctx, alice))

	now := time.Now().UTC()
	validUntil := now.Add(2 * time.Hour)

	require.NoError(t, st.Users().SetShadowCredentials(ctx, alice.ID,
		"$argon2id$shadow", "reset-token-127.0.0.1", validUntil))

	t.Run("lookup by token within window", func(t *testing.T) {
		got, err := st.Users().GetUserByShadowToken(ctx, "reset-token-127.0.0.1", now)
		require.NoError(t, err)
		require.Equal(t, alice.ID, got.ID)
		require.True(t, got.HasPendingReset())
	})

	t.Run("lookup past the window misses", func(t *testing.T) {
		_, err := st.Users().GetUserByShadowToken(ctx, "reset-token-127.0.0.1", validUntil.Add(time.Second))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("redeem promotes and clears", func(t *testing.T) {
		require.NoError(t, st.Users().RedeemShadowCredentials(ctx, alice.ID))

		got, err := st.Users().GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, "$argon2id$shadow", got.PasswordHash)
		require.Nil(t, got.ShadowPasswordHash)
		require.Nil(t, got.ShadowToken)
		require.Nil(t, got.ShadowValidUntil)

		// A second redeem is a no-op, not a corruption.
		require.NoError(t, st.Users().RedeemShadowCredentials(ctx, alice.ID))
		again, err := st.Users().GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, "$argon2id$shadow", again.PasswordHash)
	})
}

func TestClearExpiredShadowCredentials(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	alice := newUser("alice", "alice@example.test")
	bob := newUser("bob", "bob@example.test")
	require.NoError(t, st.Users().CreateUser(ctx, alice))
	require.NoError(t, st.Users().CreateUser(ctx, bob))

	now := time.Now().UTC()
	require.NoError(t, st.Users().SetShadowCredentials(ctx, alice.ID, "h", "stale", now.Add(-time.Minute)))
	require.NoError(t, st.Users().SetShadowCredentials(ctx, bob.ID, "h", "live", now.Add(time.Hour)))

	cleared, err := st.Users().ClearExpiredShadowCredentials(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, cleared)

	got, err := st.Users().GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	require.False(t, got.HasPendingReset())

	got, err = st.Users().GetUserByID(ctx, bob.ID)
	require.NoError(t, err)
	require.True(t, got.HasPendingReset())
}

func resumeTokenFor(username, ip, ua, token string, validUntil time.Time) domain.ResumeToken {
	return domain.ResumeToken{
		ID:         idx.New().String(),
		Username:   username,
		Token:      token,
		Salt:       "salt",
		ValidUntil: validUntil,
		IP:         ip,
		UserAgent:  ua,
		LastSeen:   time.Now().UTC(),
	}
}

func TestResumeTokensUpsert(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	alice := newUser("alice", "alice@example.test")
	require.NoError(t, st.Users().CreateUser(ctx, alice))

	now := time.Now().UTC()
	future := now.Add(time.Hour)

	first := resumeTokenFor("alice", "10.0.0.1", "firefox", "token-one", future)
	require.NoError(t, st.ResumeTokens().UpsertResumeToken(ctx, first))

	// Same triple: row is replaced, not duplicated.
	second := resumeTokenFor("alice", "10.0.0.1", "firefox", "token-two", future)
	require.NoError(t, st.ResumeTokens().UpsertResumeToken(ctx, second))

	// Different device: separate row.
	other := resumeTokenFor("alice", "10.0.0.2", "firefox", "token-three", future)
	require.NoError(t, st.ResumeTokens().UpsertResumeToken(ctx, other))

	rows, err := st.ResumeTokens().ListResumeTokens(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	got, err := st.ResumeTokens().GetResumeToken(ctx, "token-two", "10.0.0.1", "firefox", now)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)

	_, err = st.ResumeTokens().GetResumeToken(ctx, "token-one", "10.0.0.1", "firefox", now)
	require.ErrorIs(t, err, store.ErrNotFound, "replaced token must not resolve")
}

func TestResumeTokensLookupFilters(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	alice := newUser("alice", "alice@example.test")
	require.NoError(t, st.Users().CreateUser(ctx, alice))

	now := time.Now().UTC()
	row := resumeTokenFor("alice", "10.0.0.1", "firefox", "token-one", now.Add(time.Hour))
	require.NoError(t, st.ResumeTokens().UpsertResumeToken(ctx, row))

	cases := []struct {
		name          string
		token, ip, ua string
		at            time.Time
	}{
		{"wrong token", "nope", "10.0.0.1", "firefox", now},
		{"wrong ip", "token-one", "10.9.9.9", "firefox", now},
		{"wrong user agent", "token-one", "10.0.0.1", "chrome", now},
		{"expired", "token-one", "10.0.0.1", "firefox", now.Add(2 * time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := st.ResumeTokens().GetResumeToken(ctx, tc.token, tc.ip, tc.ua, tc.at)
			require.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestResumeTokensDelete(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	alice := newUser("alice", "alice@example.test")
	bob := newUser("bob", "bob@example.test")
	require.NoError(t, st.Users().CreateUser(ctx, alice))
	require.NoError(t, st.Users().CreateUser(ctx, bob))

	now := time.Now().UTC()
	require.NoError(t, st.ResumeTokens().UpsertResumeToken(ctx,
		resumeTokenFor("alice", "10.0.0.1", "firefox", "a1", now.Add(time.Hour))))
	require.NoError(t, st.ResumeTokens().UpsertResumeToken(ctx,
		resumeTokenFor("alice", "10.0.0.2", "firefox", "a2", now.Add(-time.Hour))))
	require.NoError(t, st.ResumeTokens().UpsertResumeToken(ctx,
		resumeTokenFor("bob", "10.0.0.3", "firefox", "b1", now.Add(time.Hour))))

	t.Run("expired", func(t *testing.T) {
		deleted, err := st.ResumeTokens().DeleteExpiredResumeTokens(ctx, now)
		require.NoError(t, err)
		require.EqualValues(t, 1, deleted)
	})

	t.Run("per user", func(t *testing.T) {
		require.NoError(t, st.ResumeTokens().DeleteUserResumeTokens(ctx, "alice"))

		rows, err := st.ResumeTokens().ListResumeTokens(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, "bob", rows[0].Username)
	})
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	t.Run("commit", func(t *testing.T) {
		err := st.WithTx(ctx, func(tx store.Tx) error {
			return tx.Users().CreateUser(ctx, newUser("alice", "alice@example.test"))
		})
		require.NoError(t, err)

		_, err = st.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
	})

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := st.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Users().CreateUser(ctx, newUser("bob", "bob@example.test")); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = st.Users().GetUserByUsername(ctx, "bob")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestTouchResumeToken(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	alice := newUser("alice", "alice@example.test")
	require.NoError(t, st.Users().CreateUser(ctx, alice))

	now := time.Now().UTC().Truncate(time.Second)
	row := resumeTokenFor("alice", "10.0.0.1", "firefox", "token-one", now.Add(time.Hour))
	require.NoError(t, st.ResumeTokens().UpsertResumeToken(ctx, row))

	seen := now.Add(10 * time.Minute)
	require.NoError(t, st.ResumeTokens().TouchResumeToken(ctx, row.ID, seen))

	got, err := st.ResumeTokens().GetResumeToken(ctx, "token-one", "10.0.0.1", "firefox", now)
	require.NoError(t, err)
	require.True(t, got.LastSeen.Equal(seen))
}
