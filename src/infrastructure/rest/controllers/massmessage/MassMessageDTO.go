package massmessage

import (
	"encoding/json"
	"time"

	domainMassMessage "go-wa-campaign-api/src/domain/massmessage"
)

// CreateRequest is the submission body. TargetRefs is an id array for
// contacts/campaigns and a raw phone list string for manual input.
type CreateRequest struct {
	MessageType          string            `json:"messageType" binding:"required,oneof=template custom"`
	TemplateID           *int              `json:"templateId" binding:"required_if=MessageType template"`
	CustomMessage        string            `json:"customMessage" binding:"required_if=MessageType custom"`
	Variables            map[string]string `json:"variables"`
	TargetType           string            `json:"targetType" binding:"required,oneof=contacts campaigns manual"`
	TargetRefs           json.RawMessage   `json:"targetRefs" binding:"required"`
	InstanceID           string            `json:"instanceId" binding:"required"`
	SchedulingType       string            `json:"schedulingType" binding:"required,oneof=immediate scheduled"`
	ScheduledFor         string            `json:"scheduledFor" binding:"required_if=SchedulingType scheduled"`
	Timezone             string            `json:"timezone"`
	DelayBetweenGroups   int               `json:"delayBetweenGroups" binding:"gte=0"`
	DelayBetweenMessages int               `json:"delayBetweenMessages" binding:"gte=0"`
}

type JobIDRequest struct {
	ID int `uri:"id" binding:"required"`
}

type HistoryRequest struct {
	Page  int `form:"page,default=1" binding:"gte=1"`
	Limit int `form:"limit,default=20" binding:"gte=1,lte=100"`
}

type JobResponse struct {
	ID                   int     `json:"id"`
	Status               string  `json:"status"`
	MessageType          string  `json:"message_type"`
	TemplateID           *int    `json:"template_id,omitempty"`
	Content              string  `json:"content"`
	TargetType           string  `json:"target_type"`
	InstanceID           string  `json:"instance_id"`
	SchedulingType       string  `json:"scheduling_type"`
	ScheduledFor         *string `json:"scheduled_for,omitempty"`
	Timezone             string  `json:"timezone"`
	DelayBetweenGroups   int     `json:"delay_between_groups"`
	DelayBetweenMessages int     `json:"delay_between_messages"`
	TotalRecipients      int     `json:"total_recipients"`
	SentCount            int     `json:"sent_count"`
	FailureReason        string  `json:"failure_reason,omitempty"`
	CreatedAt            string  `json:"created_at"`
	StartedAt            *string `json:"started_at,omitempty"`
	CompletedAt          *string `json:"completed_at,omitempty"`
}

type DeliveryErrorResponse struct {
	Phone string `json:"phone"`
	Error string `json:"error"`
	At    string `json:"at"`
}

type ProgressResponse struct {
	JobID              int                     `json:"job_id"`
	Status             string                  `json:"status"`
	ProcessedCount     int                     `json:"processed_count"`
	TotalCount         int                     `json:"total_count"`
	ProgressPercentage int                     `json:"progress_percentage"`
	Errors             []DeliveryErrorResponse `json:"errors"`
}

type HistoryResponse struct {
	Data       []JobResponse `json:"data"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func domainToResponseMapper(job *domainMassMessage.MassMessageJob) *JobResponse {
	return &JobResponse{
		ID:                   job.ID,
		Status:               string(job.Status),
		MessageType:          string(job.Message.Type),
		TemplateID:           job.Message.TemplateID,
		Content:              job.Message.Content,
		TargetType:           string(job.TargetType),
		InstanceID:           job.InstanceID,
		SchedulingType:       string(job.SchedulingType),
		ScheduledFor:         formatTime(job.ScheduledFor),
		Timezone:             job.Timezone,
		DelayBetweenGroups:   job.DelayBetweenGroupsSeconds,
		DelayBetweenMessages: job.DelayBetweenMessagesSeconds,
		TotalRecipients:      job.TotalRecipients,
		SentCount:            job.SentCount,
		FailureReason:        job.FailureReason,
		CreatedAt:            job.CreatedAt.UTC().Format(time.RFC3339),
		StartedAt:            formatTime(job.StartedAt),
		CompletedAt:          formatTime(job.CompletedAt),
	}
}

func progressToResponseMapper(progress *domainMassMessage.Progress) *ProgressResponse {
	errors := make([]DeliveryErrorResponse, len(progress.Errors))
	for i, e := range progress.Errors {
		errors[i] = DeliveryErrorResponse{Phone: e.Phone, Error: e.Error, At: e.At.UTC().Format(time.RFC3339)}
	}
	return &ProgressResponse{
		JobID:              progress.JobID,
		Status:             string(progress.Status),
		ProcessedCount:     progress.ProcessedCount,
		TotalCount:         progress.TotalCount,
		ProgressPercentage: progress.ProgressPercentage,
		Errors:             errors,
	}
}

func historyToResponseMapper(result *domainMassMessage.SearchResultJob) *HistoryResponse {
	data := []JobResponse{}
	if result.Data != nil {
		for i := range *result.Data {
			data = append(data, *domainToResponseMapper(&(*result.Data)[i]))
		}
	}
	return &HistoryResponse{
		Data:       data,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	}
}
