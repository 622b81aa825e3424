package sqlstore_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-appstate/core"
	appmigrations "github.com/goliatone/go-appstate/migrations"
	sqlstore "github.com/goliatone/go-appstate/store/sql"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-appstate-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:appstate-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = appmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != appmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, appmigrations.WithValidationTargets(appmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"appstate_kv",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "appstate_kv" {
		t.Fatalf("expected appstate_kv table, got %q", tableName)
	}
}

func TestKVStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewKVStoreFrom(client)
	if err != nil {
		t.Fatalf("new kv store: %v", err)
	}

	if _, err := store.Get(ctx, "appstate::session"); !errors.Is(err, core.ErrKeyNotFound) {
		t.Fatalf("missing key: got %v, want ErrKeyNotFound", err)
	}

	payload := []byte(`{"schema_version":2}`)
	if err := store.Set(ctx, "appstate::session", payload); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, "appstate::session")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("value = %q, want %q", got, payload)
	}

	// Set replaces the whole value in one statement.
	replaced := []byte(`{"schema_version":2,"identity":{"user_id":"usr_1"}}`)
	if err := store.Set(ctx, "appstate::session", replaced); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err = store.Get(ctx, "appstate::session")
	if err != nil {
		t.Fatalf("get after replace: %v", err)
	}
	if !bytes.Equal(got, replaced) {
		t.Fatalf("value = %q, want %q", got, replaced)
	}

	if err := store.Delete(ctx, "appstate::session"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "appstate::session"); !errors.Is(err, core.ErrKeyNotFound) {
		t.Fatalf("deleted key: got %v, want ErrKeyNotFound", err)
	}
}

func TestKVStorePartitionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewKVStoreFrom(client)
	if err != nil {
		t.Fatalf("new kv store: %v", err)
	}

	if err := store.Set(ctx, "appstate::session", []byte("session")); err != nil {
		t.Fatalf("set session: %v", err)
	}
	if err := store.Set(ctx, "appstate::ratelimit::auth::a@example.com", []byte("window")); err != nil {
		t.Fatalf("set rate limit: %v", err)
	}

	if err := store.Delete(ctx, "appstate::session"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	got, err := store.Get(ctx, "appstate::ratelimit::auth::a@example.com")
	if err != nil {
		t.Fatalf("get rate limit: %v", err)
	}
	if !bytes.Equal(got, []byte("window")) {
		t.Fatalf("rate limit value = %q", got)
	}
}

func TestKVStoreRejectsEmptyKey(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewKVStoreFrom(client)
	if err != nil {
		t.Fatalf("new kv store: %v", err)
	}
	if err := store.Set(ctx, "   ", []byte("x")); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := store.Get(ctx, ""); err == nil {
		t.Fatal("expected error for empty key")
	}
}
