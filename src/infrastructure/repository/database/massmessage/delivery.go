package massmessage

import (
	"time"

	domainErrors "go-wa-campaign-api/src/domain/errors"
	domainMassMessage "go-wa-campaign-api/src/domain/massmessage"
	logger "go-wa-campaign-api/src/infrastructure/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DeliveryRecord is the database model for the per-recipient outcome of a job
type DeliveryRecord struct {
	ID          int        `gorm:"primaryKey"`
	JobID       int        `gorm:"column:job_id;uniqueIndex:idx_job_phone;index:idx_job_seq"`
	Seq         int        `gorm:"column:seq;index:idx_job_seq"`
	Phone       string     `gorm:"column:phone;size:20;uniqueIndex:idx_job_phone"`
	Name        string     `gorm:"column:name;size:255"`
	GroupID     *int       `gorm:"column:group_id"`
	State       string     `gorm:"column:state;size:10;index"`
	Error       string     `gorm:"column:error;type:text"`
	AttemptedAt *time.Time `gorm:"column:attempted_at"`
}

func (DeliveryRecord) TableName() string {
	return "delivery_records"
}

// DeliveryRepositoryInterface is the recipient half of the Job Store
type DeliveryRepositoryInterface interface {
	ListByJob(jobID int) (*[]domainMassMessage.DeliveryRecord, error)
	RecordOutcome(jobID, recordID int, state domainMassMessage.DeliveryState, errMsg string, at time.Time) (bool, error)
	Counts(jobID int) (domainMassMessage.DeliveryCounts, error)
	Errors(jobID int) ([]domainMassMessage.DeliveryError, error)
}

type DeliveryRepository struct {
	DB     *gorm.DB
	Logger *logger.Logger
}

func NewDeliveryRepository(db *gorm.DB, loggerInstance *logger.Logger) DeliveryRepositoryInterface {
	return &DeliveryRepository{DB: db, Logger: loggerInstance}
}

func (r *DeliveryRepository) ListByJob(jobID int) (*[]domainMassMessage.DeliveryRecord, error) {
	var records []DeliveryRecord
	if err := r.DB.Where("job_id = ?", jobID).Order("seq ASC").Find(&records).Error; err != nil {
		r.Logger.Error("Error listing delivery records", zap.Error(err), zap.Int("jobID", jobID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	out := make([]domainMassMessage.DeliveryRecord, len(records))
	for i := range records {
		out[i] = *records[i].toDomainMapper()
	}
	return &out, nil
}

// RecordOutcome settles a pending record and advances the job counter in one
// transaction. It reports false if the record was already settled.
func (r *DeliveryRepository) RecordOutcome(jobID, recordID int, state domainMassMessage.DeliveryState, errMsg string, at time.Time) (bool, error) {
	settled := false
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&DeliveryRecord{}).
			Where("id = ? AND job_id = ? AND state = ?", recordID, jobID, string(domainMassMessage.DeliveryPending)).
			Updates(map[string]interface{}{"state": string(state), "error": errMsg, "attempted_at": at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		settled = true
		return tx.Model(&MassMessageJob{}).
			Where("id = ? AND sent_count < total_recipients", jobID).
			UpdateColumns(map[string]interface{}{
				"sent_count":   gorm.Expr("sent_count + ?", 1),
				"heartbeat_at": at,
			}).Error
	})
	if err != nil {
		r.Logger.Error("Error recording delivery outcome", zap.Error(err), zap.Int("jobID", jobID), zap.Int("recordID", recordID))
		return false, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return settled, nil
}

type stateCount struct {
	State string
	Total int
}

func (r *DeliveryRepository) Counts(jobID int) (domainMassMessage.DeliveryCounts, error) {
	var rows []stateCount
	err := r.DB.Model(&DeliveryRecord{}).
		Select("state, COUNT(*) AS total").
		Where("job_id = ?", jobID).
		Group("state").
		Scan(&rows).Error
	if err != nil {
		r.Logger.Error("Error counting delivery records", zap.Error(err), zap.Int("jobID", jobID))
		return domainMassMessage.DeliveryCounts{}, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	var counts domainMassMessage.DeliveryCounts
	for _, row := range rows {
		switch domainMassMessage.DeliveryState(row.State) {
		case domainMassMessage.DeliveryPending:
			counts.Pending = row.Total
		case domainMassMessage.DeliverySent:
			counts.Sent = row.Total
		case domainMassMessage.DeliveryFailed:
			counts.Errored = row.Total
		}
	}
	return counts, nil
}

// Errors returns the failed deliveries of a job in the order they happened
func (r *DeliveryRepository) Errors(jobID int) ([]domainMassMessage.DeliveryError, error) {
	var records []DeliveryRecord
	err := r.DB.Where("job_id = ? AND state = ?", jobID, string(domainMassMessage.DeliveryFailed)).
		Order("attempted_at ASC, seq ASC").
		Find(&records).Error
	if err != nil {
		r.Logger.Error("Error listing delivery errors", zap.Error(err), zap.Int("jobID", jobID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	out := make([]domainMassMessage.DeliveryError, 0, len(records))
	for _, record := range records {
		entry := domainMassMessage.DeliveryError{Phone: record.Phone, Error: record.Error}
		if record.AttemptedAt != nil {
			entry.At = *record.AttemptedAt
		}
		out = append(out, entry)
	}
	return out, nil
}

func (d *DeliveryRecord) toDomainMapper() *domainMassMessage.DeliveryRecord {
	return &domainMassMessage.DeliveryRecord{
		ID:          d.ID,
		JobID:       d.JobID,
		Seq:         d.Seq,
		Phone:       d.Phone,
		Name:        d.Name,
		GroupID:     d.GroupID,
		State:       domainMassMessage.DeliveryState(d.State),
		Error:       d.Error,
		AttemptedAt: d.AttemptedAt,
	}
}
