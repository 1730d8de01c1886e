package automation

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"riseloop/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Shared cache keeps every pooled connection on the same in-memory
	// database; the test name keeps databases isolated between tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.AutomationEvent{},
		&models.AutomationRule{},
		&models.DripCampaign{},
		&models.DripEmail{},
		&models.DripEnrollment{},
		&models.Member{},
		&models.Entitlement{},
		&models.PointsEntry{},
	))
	return db
}

// recorder is a fake for every collaborator interface. It logs calls in
// order so tests can assert side-effect ordering, and can be told to fail
// specific calls.
type recorder struct {
	mu    sync.Mutex
	calls []string

	failSends  bool
	failPoints bool
}

func (r *recorder) Send(to, subject, templateKey string, data map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSends {
		return fmt.Errorf("smtp unavailable")
	}
	r.calls = append(r.calls, "email:"+templateKey+":"+to)
	return nil
}

func (r *recorder) Grant(subjectID, entitlementType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "entitlement:"+entitlementType+":"+subjectID)
	return nil
}

func (r *recorder) Award(subjectID string, points int, reason string, eventID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPoints {
		return fmt.Errorf("points service unavailable")
	}
	r.calls = append(r.calls, fmt.Sprintf("points:%s:%d", reason, points))
	return nil
}

func (r *recorder) callLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func newTestEngine(t *testing.T) (*Engine, *recorder) {
	t.Helper()
	db := testDB(t)
	rec := &recorder{}
	drip := NewDripEngine(db, rec)
	return NewEngine(db, rec, rec, rec, drip), rec
}
