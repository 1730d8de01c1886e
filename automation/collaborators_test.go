package automation

import (
	"testing"

	"riseloop/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrantEntitlementIsIdempotent(t *testing.T) {
	db := testDB(t)
	store := NewGormEntitlementStore(db)

	require.NoError(t, store.Grant("user-1", "alumni_access"))
	require.NoError(t, store.Grant("user-1", "alumni_access"))
	require.NoError(t, store.Grant("user-1", "bonus_content"))
	require.NoError(t, store.Grant("user-2", "alumni_access"))

	var count int64
	require.NoError(t, db.Model(&models.Entitlement{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)
}

func TestAwardPointsDeduplicatesPerEvent(t *testing.T) {
	db := testDB(t)
	svc := NewGormPointsService(db)

	// Redelivery of the same event must not double-award.
	require.NoError(t, svc.Award("user-1", 50, "week_one_streak", 1))
	require.NoError(t, svc.Award("user-1", 50, "week_one_streak", 1))

	// The same reason from a different event is a separate award.
	require.NoError(t, svc.Award("user-1", 50, "week_one_streak", 2))

	var entries []models.PointsEntry
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 2)

	var total int64
	require.NoError(t, db.Model(&models.PointsEntry{}).
		Select("COALESCE(SUM(points), 0)").Scan(&total).Error)
	assert.EqualValues(t, 100, total)
}
