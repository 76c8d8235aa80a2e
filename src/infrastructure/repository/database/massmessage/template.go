package massmessage

import (
	"errors"

	domainErrors "go-wa-campaign-api/src/domain/errors"
	logger "go-wa-campaign-api/src/infrastructure/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MessageTemplate is a company's saved message body. Templates are managed
// elsewhere and only read here.
type MessageTemplate struct {
	ID        int    `gorm:"primaryKey"`
	CompanyID int    `gorm:"column:company_id;index"`
	Name      string `gorm:"column:name;size:255"`
	Content   string `gorm:"column:content;type:text"`
}

func (MessageTemplate) TableName() string {
	return "message_templates"
}

type TemplateRepositoryInterface interface {
	GetContent(companyID, id int) (string, error)
}

type TemplateRepository struct {
	DB     *gorm.DB
	Logger *logger.Logger
}

func NewTemplateRepository(db *gorm.DB, loggerInstance *logger.Logger) TemplateRepositoryInterface {
	return &TemplateRepository{DB: db, Logger: loggerInstance}
}

// GetContent returns the body of a template owned by the company
func (r *TemplateRepository) GetContent(companyID, id int) (string, error) {
	var template MessageTemplate
	err := r.DB.Where("id = ? AND company_id = ?", id, companyID).First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domainErrors.NewAppError(errors.New("message template not found"), domainErrors.ValidationError)
		}
		r.Logger.Error("Error getting message template", zap.Error(err), zap.Int("templateID", id))
		return "", domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return template.Content, nil
}
