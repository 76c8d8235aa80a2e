package massmessage

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	domainErrors "go-wa-campaign-api/src/domain/errors"
	domainMassMessage "go-wa-campaign-api/src/domain/massmessage"
	logger "go-wa-campaign-api/src/infrastructure/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const recipientBatchSize = 500

// MassMessageJob is the database model for mass-message jobs
type MassMessageJob struct {
	ID                          int        `gorm:"primaryKey"`
	CompanyID                   int        `gorm:"column:company_id;index"`
	MessageType                 string     `gorm:"column:message_type;size:20"`
	TemplateID                  *int       `gorm:"column:template_id"`
	Content                     string     `gorm:"column:rendered_content_snapshot;type:text"`
	Variables                   string     `gorm:"column:variables;type:text"`
	TargetType                  string     `gorm:"column:target_type;size:20"`
	TargetIDs                   string     `gorm:"column:target_ids;type:text"`
	TargetRaw                   string     `gorm:"column:target_raw;type:text"`
	InstanceID                  string     `gorm:"column:instance_id;size:100"`
	SchedulingType              string     `gorm:"column:scheduling_type;size:20"`
	ScheduledFor                *time.Time `gorm:"column:scheduled_for;index"`
	Timezone                    string     `gorm:"column:timezone;size:64"`
	DelayBetweenGroupsSeconds   int        `gorm:"column:delay_between_groups_seconds"`
	DelayBetweenMessagesSeconds int        `gorm:"column:delay_between_messages_seconds"`
	Status                      string     `gorm:"column:status;size:20;index"`
	TotalRecipients             int        `gorm:"column:total_recipients"`
	SentCount                   int        `gorm:"column:sent_count;default:0"`
	FailureReason               string     `gorm:"column:failure_reason;type:text"`
	ClaimedBy                   string     `gorm:"column:claimed_by;size:64"`
	HeartbeatAt                 *time.Time `gorm:"column:heartbeat_at"`
	CreatedAt                   time.Time  `gorm:"autoCreateTime"`
	StartedAt                   *time.Time `gorm:"column:started_at"`
	CompletedAt                 *time.Time `gorm:"column:completed_at"`
	UpdatedAt                   time.Time  `gorm:"autoUpdateTime"`
}

func (MassMessageJob) TableName() string {
	return "mass_message_jobs"
}

var ColumnsJobMapping = map[string]string{
	"id":              "id",
	"companyId":       "company_id",
	"status":          "status",
	"totalRecipients": "total_recipients",
	"sentCount":       "sent_count",
	"failureReason":   "failure_reason",
	"claimedBy":       "claimed_by",
	"heartbeatAt":     "heartbeat_at",
	"startedAt":       "started_at",
	"completedAt":     "completed_at",
	"createdAt":       "created_at",
	"updatedAt":       "updated_at",
}

// JobRepositoryInterface is the job half of the Job Store
type JobRepositoryInterface interface {
	CreateWithRecipients(job *domainMassMessage.MassMessageJob, recipients []domainMassMessage.Recipient) (*domainMassMessage.MassMessageJob, error)
	GetByID(id int) (*domainMassMessage.MassMessageJob, error)
	GetForCompany(companyID, id int) (*domainMassMessage.MassMessageJob, error)
	Transition(id int, from, to domainMassMessage.Status, fields map[string]interface{}) (bool, error)
	ListDueScheduled(now time.Time, limit int) (*[]domainMassMessage.MassMessageJob, error)
	ListStaleProcessing(staleBefore time.Time, limit int) (*[]domainMassMessage.MassMessageJob, error)
	ClaimLease(id int, claimant string, staleBefore, now time.Time) (bool, error)
	Heartbeat(id int, claimant string, now time.Time) (bool, error)
	ListByCompany(companyID, page, limit int) (*domainMassMessage.SearchResultJob, error)
}

type JobRepository struct {
	DB     *gorm.DB
	Logger *logger.Logger
}

func NewJobRepository(db *gorm.DB, loggerInstance *logger.Logger) JobRepositoryInterface {
	return &JobRepository{DB: db, Logger: loggerInstance}
}

// CreateWithRecipients stores the job and one pending delivery record per recipient
// in a single transaction.
func (r *JobRepository) CreateWithRecipients(job *domainMassMessage.MassMessageJob, recipients []domainMassMessage.Recipient) (*domainMassMessage.MassMessageJob, error) {
	model := jobFromDomainMapper(job)
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		records := make([]DeliveryRecord, len(recipients))
		for i, recipient := range recipients {
			records[i] = DeliveryRecord{
				JobID:   model.ID,
				Seq:     i + 1,
				Phone:   recipient.Phone,
				Name:    recipient.Name,
				GroupID: recipient.GroupID,
				State:   string(domainMassMessage.DeliveryPending),
			}
		}
		if len(records) == 0 {
			return nil
		}
		return tx.CreateInBatches(&records, recipientBatchSize).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			r.Logger.Error("Duplicate recipient in job", zap.Error(err), zap.Int("companyID", job.CompanyID))
			return nil, domainErrors.NewAppError(errors.New("duplicate recipient"), domainErrors.ValidationError)
		}
		r.Logger.Error("Error creating mass message job", zap.Error(err), zap.Int("companyID", job.CompanyID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	r.Logger.Info("Mass message job created", zap.Int("jobID", model.ID), zap.Int("companyID", model.CompanyID), zap.Int("recipients", len(recipients)))
	return model.toDomainMapper(r.Logger), nil
}

func (r *JobRepository) first(query string, args ...interface{}) (*domainMassMessage.MassMessageJob, error) {
	var job MassMessageJob
	if err := r.DB.Where(query, args...).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewAppErrorWithType(domainErrors.NotFound)
		}
		r.Logger.Error("Error getting mass message job", zap.Error(err))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return job.toDomainMapper(r.Logger), nil
}

func (r *JobRepository) GetByID(id int) (*domainMassMessage.MassMessageJob, error) {
	return r.first("id = ?", id)
}

func (r *JobRepository) GetForCompany(companyID, id int) (*domainMassMessage.MassMessageJob, error) {
	return r.first("id = ? AND company_id = ?", id, companyID)
}

// Transition applies a status change only if the job is still in status from.
// It reports false when another actor moved the job first.
func (r *JobRepository) Transition(id int, from, to domainMassMessage.Status, fields map[string]interface{}) (bool, error) {
	if !domainMassMessage.CanTransition(from, to) {
		return false, domainErrors.NewAppErrorWithType(domainErrors.InvalidTransition)
	}
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		if column, ok := ColumnsJobMapping[k]; ok {
			updates[column] = v
		} else {
			updates[k] = v
		}
	}
	res := r.DB.Model(&MassMessageJob{}).Where("id = ? AND status = ?", id, string(from)).Updates(updates)
	if res.Error != nil {
		r.Logger.Error("Error transitioning job", zap.Error(res.Error), zap.Int("jobID", id), zap.String("to", string(to)))
		return false, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	if res.RowsAffected == 0 {
		r.Logger.Info("Job transition lost", zap.Int("jobID", id), zap.String("from", string(from)), zap.String("to", string(to)))
		return false, nil
	}
	r.Logger.Info("Job transitioned", zap.Int("jobID", id), zap.String("from", string(from)), zap.String("to", string(to)))
	return true, nil
}

func (r *JobRepository) find(query *gorm.DB) (*[]domainMassMessage.MassMessageJob, error) {
	var jobs []MassMessageJob
	if err := query.Find(&jobs).Error; err != nil {
		r.Logger.Error("Error listing mass message jobs", zap.Error(err))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return arrayToDomainMapper(&jobs, r.Logger), nil
}

func (r *JobRepository) ListDueScheduled(now time.Time, limit int) (*[]domainMassMessage.MassMessageJob, error) {
	return r.find(r.DB.Where("status = ? AND scheduled_for <= ?", string(domainMassMessage.StatusScheduled), now).
		Order("scheduled_for ASC, id ASC").Limit(limit))
}

func (r *JobRepository) ListStaleProcessing(staleBefore time.Time, limit int) (*[]domainMassMessage.MassMessageJob, error) {
	return r.find(r.DB.Where("status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)", string(domainMassMessage.StatusProcessing), staleBefore).
		Order("id ASC").Limit(limit))
}

// ClaimLease takes over a processing job whose heartbeat is older than staleBefore
func (r *JobRepository) ClaimLease(id int, claimant string, staleBefore, now time.Time) (bool, error) {
	res := r.DB.Model(&MassMessageJob{}).
		Where("id = ? AND status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)", id, string(domainMassMessage.StatusProcessing), staleBefore).
		Updates(map[string]interface{}{"claimed_by": claimant, "heartbeat_at": now})
	if res.Error != nil {
		r.Logger.Error("Error claiming job lease", zap.Error(res.Error), zap.Int("jobID", id))
		return false, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return res.RowsAffected == 1, nil
}

// Heartbeat extends the lease of a processing job held by claimant. It reports
// false once the job left processing or another node took the lease over.
func (r *JobRepository) Heartbeat(id int, claimant string, now time.Time) (bool, error) {
	res := r.DB.Model(&MassMessageJob{}).
		Where("id = ? AND status = ? AND claimed_by = ?", id, string(domainMassMessage.StatusProcessing), claimant).
		UpdateColumn("heartbeat_at", now)
	if res.Error != nil {
		r.Logger.Error("Error refreshing job heartbeat", zap.Error(res.Error), zap.Int("jobID", id))
		return false, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	return res.RowsAffected == 1, nil
}

func (r *JobRepository) ListByCompany(companyID, page, limit int) (*domainMassMessage.SearchResultJob, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	var total int64
	if err := r.DB.Model(&MassMessageJob{}).Where("company_id = ?", companyID).Count(&total).Error; err != nil {
		r.Logger.Error("Error counting mass message jobs", zap.Error(err), zap.Int("companyID", companyID))
		return nil, domainErrors.NewAppErrorWithType(domainErrors.RepositoryError)
	}
	jobs, err := r.find(r.DB.Where("company_id = ?", companyID).
		Order("created_at DESC, id DESC").Offset((page - 1) * limit).Limit(limit))
	if err != nil {
		return nil, err
	}
	return &domainMassMessage.SearchResultJob{
		Data:       jobs,
		Total:      total,
		Page:       page,
		PageSize:   limit,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

// toDomainMapper decodes the JSON columns; a column that fails to decode is
// logged and mapped empty.
func (j *MassMessageJob) toDomainMapper(log *logger.Logger) *domainMassMessage.MassMessageJob {
	variables := map[string]string{}
	if j.Variables != "" {
		if err := json.Unmarshal([]byte(j.Variables), &variables); err != nil {
			log.Error("Error decoding job variables", zap.Error(err), zap.Int("jobID", j.ID))
			variables = map[string]string{}
		}
	}
	var ids []int
	if j.TargetIDs != "" {
		if err := json.Unmarshal([]byte(j.TargetIDs), &ids); err != nil {
			log.Error("Error decoding job target ids", zap.Error(err), zap.Int("jobID", j.ID))
			ids = nil
		}
	}
	return &domainMassMessage.MassMessageJob{
		ID:        j.ID,
		CompanyID: j.CompanyID,
		Message: domainMassMessage.Message{
			Type:       domainMassMessage.MessageType(j.MessageType),
			TemplateID: j.TemplateID,
			Content:    j.Content,
		},
		Variables:                   variables,
		TargetType:                  domainMassMessage.TargetType(j.TargetType),
		TargetRefs:                  domainMassMessage.TargetRefs{IDs: ids, Raw: j.TargetRaw},
		InstanceID:                  j.InstanceID,
		SchedulingType:              domainMassMessage.SchedulingType(j.SchedulingType),
		ScheduledFor:                j.ScheduledFor,
		Timezone:                    j.Timezone,
		DelayBetweenGroupsSeconds:   j.DelayBetweenGroupsSeconds,
		DelayBetweenMessagesSeconds: j.DelayBetweenMessagesSeconds,
		Status:                      domainMassMessage.Status(j.Status),
		TotalRecipients:             j.TotalRecipients,
		SentCount:                   j.SentCount,
		FailureReason:               j.FailureReason,
		ClaimedBy:                   j.ClaimedBy,
		HeartbeatAt:                 j.HeartbeatAt,
		CreatedAt:                   j.CreatedAt,
		StartedAt:                   j.StartedAt,
		CompletedAt:                 j.CompletedAt,
		UpdatedAt:                   j.UpdatedAt,
	}
}

func jobFromDomainMapper(j *domainMassMessage.MassMessageJob) *MassMessageJob {
	var variables, ids string
	if len(j.Variables) > 0 {
		raw, _ := json.Marshal(j.Variables)
		variables = string(raw)
	}
	if len(j.TargetRefs.IDs) > 0 {
		raw, _ := json.Marshal(j.TargetRefs.IDs)
		ids = string(raw)
	}
	return &MassMessageJob{
		ID:                          j.ID,
		CompanyID:                   j.CompanyID,
		MessageType:                 string(j.Message.Type),
		TemplateID:                  j.Message.TemplateID,
		Content:                     j.Message.Content,
		Variables:                   variables,
		TargetType:                  string(j.TargetType),
		TargetIDs:                   ids,
		TargetRaw:                   j.TargetRefs.Raw,
		InstanceID:                  j.InstanceID,
		SchedulingType:              string(j.SchedulingType),
		ScheduledFor:                j.ScheduledFor,
		Timezone:                    j.Timezone,
		DelayBetweenGroupsSeconds:   j.DelayBetweenGroupsSeconds,
		DelayBetweenMessagesSeconds: j.DelayBetweenMessagesSeconds,
		Status:                      string(j.Status),
		TotalRecipients:             j.TotalRecipients,
		SentCount:                   j.SentCount,
		FailureReason:               j.FailureReason,
		ClaimedBy:                   j.ClaimedBy,
		HeartbeatAt:                 j.HeartbeatAt,
		StartedAt:                   j.StartedAt,
		CompletedAt:                 j.CompletedAt,
	}
}

func arrayToDomainMapper(jobs *[]MassMessageJob, log *logger.Logger) *[]domainMassMessage.MassMessageJob {
	out := make([]domainMassMessage.MassMessageJob, len(*jobs))
	for i := range *jobs {
		out[i] = *(*jobs)[i].toDomainMapper(log)
	}
	return &out
}
