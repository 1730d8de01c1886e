package automation

import (
	"riseloop/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Database-backed collaborator implementations. Both lean on unique
// constraints so repeated execution of the same action is a no-op.

type GormEntitlementStore struct {
	DB *gorm.DB
}

func NewGormEntitlementStore(db *gorm.DB) *GormEntitlementStore {
	return &GormEntitlementStore{DB: db}
}

func (s *GormEntitlementStore) Grant(subjectID, entitlementType string) error {
	entitlement := models.Entitlement{SubjectID: subjectID, Type: entitlementType}
	return s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&entitlement).Error
}

type GormPointsService struct {
	DB *gorm.DB
}

func NewGormPointsService(db *gorm.DB) *GormPointsService {
	return &GormPointsService{DB: db}
}

func (s *GormPointsService) Award(subjectID string, points int, reason string, eventID uint) error {
	entry := models.PointsEntry{
		SubjectID: subjectID,
		Reason:    reason,
		EventID:   eventID,
		Points:    points,
	}
	return s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error
}
