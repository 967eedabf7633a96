package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"ridehail/internal/config"
	"ridehail/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestConfigurePool(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)

	require.NoError(t, configurePool(db, &config.Config{}))
	assert.Equal(t, 25, sqlDB.Stats().MaxOpenConnections)
}

func TestDSN(t *testing.T) {
	dsn := DSN(&config.Config{DBHost: "db", DBPort: "5433", DBUser: "inbox", DBPassword: "pw", DBName: "rides"})
	assert.Equal(t, "host=db port=5433 user=inbox password=pw dbname=rides sslmode=disable", dsn)
}

func TestPersistentModels_AutoMigrate(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	for _, table := range []string{"users", "inbox_conversations", "conversation_participants", "chat_messages", "message_status"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex(&models.ConversationParticipant{}, "idx_participant_pair"))
	assert.True(t, db.Migrator().HasIndex(&models.MessageStatus{}, "idx_message_status_pair"))
}

func TestEmbeddedMigrations(t *testing.T) {
	all := GetMigrations()
	require.NotEmpty(t, all)
	for i, m := range all {
		assert.NotEmpty(t, m.UpScript, m.String())
		assert.NotEmpty(t, m.DownScript, m.String())
		if i > 0 {
			assert.Greater(t, m.Version, all[i-1].Version)
		}
	}
	assert.Equal(t, "000001_inbox_core", all[0].String())
	assert.Contains(t, all[0].UpScript, "CREATE TABLE IF NOT EXISTS inbox_conversations")
	assert.NotNil(t, GetMigrationByVersion(1))
	assert.Nil(t, GetMigrationByVersion(999))
}

func TestLoadMigrations(t *testing.T) {
	tests := []struct {
		name    string
		files   fstest.MapFS
		want    []string
		wantErr string
	}{
		{
			name: "sorted by version",
			files: fstest.MapFS{
				"m/000002_b.up.sql":   {Data: []byte("B")},
				"m/000002_b.down.sql": {Data: []byte("-B")},
				"m/000001_a.up.sql":   {Data: []byte("A")},
				"m/000001_a.down.sql": {Data: []byte("-A")},
				"m/README.md":         {Data: []byte("ignored")},
			},
			want: []string{"000001_a", "000002_b"},
		},
		{
			name:    "missing down script",
			files:   fstest.MapFS{"m/000001_a.up.sql": {Data: []byte("A")}},
			wantErr: "down migration",
		},
		{
			name: "bad version",
			files: fstest.MapFS{
				"m/abc_a.up.sql":   {Data: []byte("A")},
				"m/abc_a.down.sql": {Data: []byte("-A")},
			},
			wantErr: "invalid version",
		},
		{
			name: "duplicate version",
			files: fstest.MapFS{
				"m/000001_a.up.sql":   {Data: []byte("A")},
				"m/000001_a.down.sql": {Data: []byte("-A")},
				"m/000001_b.up.sql":   {Data: []byte("B")},
				"m/000001_b.down.sql": {Data: []byte("-B")},
			},
			wantErr: "share version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadMigrations(tt.files, "m")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			names := make([]string, 0, len(got))
			for _, m := range got {
				names = append(names, m.String())
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		mode, env       string
		runSQL, runAuto bool
		wantErr         bool
	}{
		{"", "development", true, true, false},
		{"hybrid", "production", true, false, false},
		{"sql", "development", true, false, false},
		{"auto", "development", false, true, false},
		{"auto", "staging", false, false, true},
		{"weird", "development", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.mode+"/"+tt.env, func(t *testing.T) {
			runSQL, runAuto, err := schemaPolicy(&config.Config{DBSchemaMode: tt.mode, Env: tt.env})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.runSQL, runSQL)
			assert.Equal(t, tt.runAuto, runAuto)
		})
	}
}

type fakeMigrationStore struct {
	applied  []int
	ran      []int
	reverted []int
	failOn   int
}

func (f *fakeMigrationStore) GetAppliedMigrations(context.Context) ([]int, error) {
	return f.applied, nil
}

func (f *fakeMigrationStore) ApplyMigration(_ context.Context, m Migration) error {
	if m.Version == f.failOn {
		return errors.New("syntax error")
	}
	f.ran = append(f.ran, m.Version)
	f.applied = append(f.applied, m.Version)
	return nil
}

func (f *fakeMigrationStore) RevertMigration(_ context.Context, m Migration) error {
	f.reverted = append(f.reverted, m.Version)
	return nil
}

func TestApplyPending(t *testing.T) {
	registered := []Migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}

	t.Run("applies only missing versions in order", func(t *testing.T) {
		store := &fakeMigrationStore{applied: []int{1}}
		require.NoError(t, applyPending(context.Background(), store, registered))
		assert.Equal(t, []int{2, 3}, store.ran)
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		store := &fakeMigrationStore{failOn: 2}
		err := applyPending(context.Background(), store, registered)
		require.Error(t, err)
		assert.Equal(t, []int{1}, store.ran)
	})

	t.Run("rejects unknown applied versions", func(t *testing.T) {
		store := &fakeMigrationStore{applied: []int{1, 7}}
		err := applyPending(context.Background(), store, registered)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "000007")
		assert.Empty(t, store.ran)
	})

	t.Run("pending list", func(t *testing.T) {
		pending := pendingMigrations([]int{1, 3}, registered)
		require.Len(t, pending, 1)
		assert.Equal(t, 2, pending[0].Version)
	})
}

func TestRollback(t *testing.T) {
	store := &fakeMigrationStore{applied: []int{1}}
	require.NoError(t, rollback(context.Background(), store, 1))
	assert.Equal(t, []int{1}, store.reverted)

	assert.Error(t, rollback(context.Background(), &fakeMigrationStore{}, 1), "not applied")
	assert.Error(t, rollback(context.Background(), store, 999), "unknown version")
}

func TestMissingTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	ctx := context.Background()

	missing, err := MissingTables(ctx, db)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"users", "inbox_conversations", "conversation_participants", "chat_messages", "message_status",
	}, missing)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.InboxConversation{}))
	missing, err = MissingTables(ctx, db)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"conversation_participants", "chat_messages", "message_status"}, missing)

	require.NoError(t, AutoMigrate(db))
	missing, err = MissingTables(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, missing)
}
