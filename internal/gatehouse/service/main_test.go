package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tokablelabs/gatehouse/internal/gatehouse/domain"
	"github.com/tokablelabs/gatehouse/internal/gatehouse/store"
	"github.com/tokablelabs/gatehouse/internal/gatehouse/store/drivers/sqlite"
	"github.com/tokablelabs/gatehouse/pkg/cryptox"
	"github.com/tokablelabs/gatehouse/pkg/idx"
)

func TestMain(m *testing.M) {
	pepperPath := filepath.Join(os.TempDir(), "gatehouse-service-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

// seedUser inserts an enabled user with the given password and returns the
// stored record.
func seedUser(t *testing.T, st store.Store, username, email, password string) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	u := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Enabled:      true,
		DisplayName:  username,
		LastSeen:     time.Now().UTC(),
	}
	require.NoError(t, st.Users().CreateUser(context.Background(), u))

	stored, err := st.Users().GetUserByUsername(context.Background(), username)
	require.NoError(t, err)
	return stored
}

var testRequest = RequestInfo{
	RemoteAddr: "203.0.113.7",
	UserAgent:  "Mozilla/5.0 (X11; Linux x86_64)",
	Host:       "example.test",
}

var testFingerprint = FingerprintOptions{
	UseRemoteAddr: true,
	UseUserAgent:  true,
}

// fixedClock returns a Now func pinned to a mutable instant.
func fixedClock(at time.Time) (func() time.Time, func(time.Time)) {
	current := at
	return func() time.Time { return current },
		func(next time.Time) { current = next }
}
