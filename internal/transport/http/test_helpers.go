package http

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtran/chatchit-server/internal/auth"
	"github.com/quangtran/chatchit-server/internal/config"
	"github.com/quangtran/chatchit-server/internal/core"
	"github.com/quangtran/chatchit-server/internal/feed"
	"github.com/quangtran/chatchit-server/internal/store"
	"github.com/quangtran/chatchit-server/internal/store/sqlite"
)

// createTestStore creates an in-memory SQLite store seeded with two rooms.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		now := time.Now().UnixMilli()
		_, err := db.Exec(`
			INSERT INTO rooms (id, name, is_private, created_at) VALUES
				('general', 'General', 0, ?),
				('random', 'Random', 0, ?);
			INSERT INTO room_members (room_id, user_id, role, joined_at) VALUES
				('general', 'alice', 'owner', ?),
				('general', 'bob', 'member', ?);
		`, now, now, now, now)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return st
}

// testJWTConfig returns the JWT configuration used across transport tests.
func testJWTConfig() *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
}

// testToken mints a token for the given user.
func testToken(t *testing.T, cfg *auth.JWTConfig, userID string) string {
	t.Helper()

	token, err := auth.GenerateToken(cfg, userID, userID)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

// testServer bundles a running HTTP server with the stack behind it.
type testServer struct {
	srv      *httptest.Server
	store    store.Store
	feed     *feed.Memory
	registry *core.Registry
	jwt      *auth.JWTConfig
}

// newTestServer wires a full in-memory stack behind an httptest server.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st := createTestStore(t)
	logger := zerolog.Nop()
	mem := feed.NewMemory()
	registry := core.NewRegistry()
	messageLog := core.NewMessageLog(st, mem, &logger)
	tracker := core.NewReadTracker(st, registry, &logger)
	jwtCfg := testJWTConfig()

	notifier := core.NewNotifier(mem, registry, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	go notifier.Run(ctx)
	t.Cleanup(cancel)

	srv := NewServer(Deps{
		Store:    st,
		Log:      messageLog,
		Tracker:  tracker,
		Registry: registry,
		JWT:      jwtCfg,
		Logger:   &logger,
	}, config.Config{Addr: ":0", ReadHeaderTimeout: time.Second})

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	return &testServer{
		srv:      ts,
		store:    st,
		feed:     mem,
		registry: registry,
		jwt:      jwtCfg,
	}
}
