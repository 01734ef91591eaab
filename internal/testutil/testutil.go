// Package testutil holds database helpers shared by package tests.
package testutil

import (
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Windi-Fikriyansyah/geojoki/internal/db"
	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
	"github.com/Windi-Fikriyansyah/geojoki/internal/realtime"
	"github.com/Windi-Fikriyansyah/geojoki/internal/utils"
)

// MockDB wraps a postgres-dialect gorm handle backed by sqlmock.
type MockDB struct {
	DB    *gorm.DB
	Mock  sqlmock.Sqlmock
	SqlDB *sql.DB
}

func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create sqlmock")

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Failed to open GORM connection")

	t.Cleanup(func() { _ = mockDB.Close() })
	return &MockDB{DB: gormDB, Mock: mock, SqlDB: mockDB}
}

func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	require.NoError(t, m.Mock.ExpectationsWereMet(), "Unmet database expectations")
}

// NewSQLiteDB opens a private in-memory sqlite database with the full schema.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

// CreateUser inserts a verified user with role and an optional location.
func CreateUser(t *testing.T, gdb *gorm.DB, role models.Role, loc models.Point) *models.User {
	t.Helper()

	id := uuid.New()
	hash, err := utils.HashPassword("password123")
	require.NoError(t, err)

	u := &models.User{
		ID:         id,
		Name:       string(role) + "-" + id.String()[:8],
		Email:      id.String() + "@example.com",
		Password:   hash,
		Role:       role,
		IsActive:   true,
		IsVerified: true,
		Location:   loc,
	}
	require.NoError(t, gdb.Create(u).Error)

	switch role {
	case models.RoleFreelancer:
		p := &models.FreelancerProfile{UserID: u.ID, IsAvailable: true}
		require.NoError(t, gdb.Create(p).Error)
		u.FreelancerProfile = p
	case models.RoleClient:
		p := &models.ClientProfile{UserID: u.ID}
		require.NoError(t, gdb.Create(p).Error)
		u.ClientProfile = p
	}
	return u
}

func CreateSkills(t *testing.T, gdb *gorm.DB, category string, names ...string) []models.Skill {
	t.Helper()

	skills := make([]models.Skill, 0, len(names))
	for _, n := range names {
		skills = append(skills, models.Skill{Name: n, Category: category})
	}
	require.NoError(t, gdb.Create(&skills).Error)
	return skills
}

// RecordingNotifier captures hub events for assertions.
type RecordingNotifier struct {
	mu         sync.Mutex
	Events     []Sent
	Broadcasts []realtime.Event
}

type Sent struct {
	UserID uuid.UUID
	Event  realtime.Event
}

func (n *RecordingNotifier) SendToUser(userID uuid.UUID, data interface{}) {
	ev, _ := data.(realtime.Event)
	n.mu.Lock()
	n.Events = append(n.Events, Sent{UserID: userID, Event: ev})
	n.mu.Unlock()
}

func (n *RecordingNotifier) Broadcast(data interface{}) {
	ev, _ := data.(realtime.Event)
	n.mu.Lock()
	n.Broadcasts = append(n.Broadcasts, ev)
	n.mu.Unlock()
}

// BroadcastTypes returns the types of every broadcast event in order.
func (n *RecordingNotifier) BroadcastTypes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, ev := range n.Broadcasts {
		out = append(out, ev.Type)
	}
	return out
}

// Types returns the event types delivered to userID in order.
func (n *RecordingNotifier) Types(userID uuid.UUID) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.Events {
		if s.UserID == userID {
			out = append(out, s.Event.Type)
		}
	}
	return out
}
