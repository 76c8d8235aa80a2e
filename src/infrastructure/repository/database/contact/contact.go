package contact

import (
	domainContact "go-wa-campaign-api/src/domain/contact"
	domainErrors "go-wa-campaign-api/src/domain/errors"
	logger "go-wa-campaign-api/src/infrastructure/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Contact is the database model for the company address book
type Contact struct {
	ID        int    `gorm:"primaryKey"`
	CompanyID int    `gorm:"column:company_id;index"`
	Name      string `gorm:"column:name;size:255"`
	Phone     string `gorm:"column:phone;size:32"`
}

func (Contact) TableName() string {
	return "contacts"
}

type ContactRepositoryInterface interface {
	GetByIDs(companyID int, ids []int) (*[]domainContact.Contact, error)
}

type Repository struct {
	DB     *gorm.DB
	Logger *logger.Logger
}

func NewContactRepository(db *gorm.DB, loggerInstance *logger.Logger) ContactRepositoryInterface {
	return &Repository{DB: db, Logger: loggerInstance}
}

// GetByIDs returns the company's contacts among ids, in the order ids were given.
// Unknown and foreign ids are skipped.
func (r *Repository) GetByIDs(companyID int, ids []int) (*[]domainContact.Contact, error) {
	if len(ids) == 0 {
		return &[]domainContact.Contact{}, nil
	}
	var contacts []Contact
	if err := r.DB.Where("company_id = ? AND id IN ?", companyID, ids).Find(&contacts).Error; err != nil {
		r.Logger.Error("Error getting contacts", zap.Error(err), zap.Int("companyID", companyID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	byID := make(map[int]Contact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}
	out := make([]domainContact.Contact, 0, len(contacts))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, domainContact.Contact{ID: c.ID, CompanyID: c.CompanyID, Name: c.Name, Phone: c.Phone})
			delete(byID, id)
		}
	}
	return &out, nil
}
