package massmessage

import (
	"math"
	"regexp"
	"time"
)

type MessageType string

const (
	MessageTemplate MessageType = "template"
	MessageCustom   MessageType = "custom"
)

type TargetType string

const (
	TargetContacts  TargetType = "contacts"
	TargetCampaigns TargetType = "campaigns"
	TargetManual    TargetType = "manual"
)

type SchedulingType string

const (
	ScheduleImmediate SchedulingType = "immediate"
	ScheduleScheduled SchedulingType = "scheduled"
)

// Status is the state of a mass-message job. Jobs only move forward.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusScheduled  Status = "scheduled"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

type DeliveryState string

const (
	DeliveryPending DeliveryState = "pending"
	DeliverySent    DeliveryState = "sent"
	DeliveryFailed  DeliveryState = "error"
)

var jobTransitions = map[Status][]Status{
	StatusDraft:      {StatusScheduled, StatusProcessing},
	StatusScheduled:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// Message is the tagged variant consumed by Render
type Message struct {
	Type       MessageType
	TemplateID *int
	// Content is the template body snapshot for template messages, or the literal text for custom ones
	Content string
}

// TargetRefs selects recipients: ids for contacts/campaigns, raw text for manual input
type TargetRefs struct {
	IDs []int
	Raw string
}

// Recipient is one resolved destination
type Recipient struct {
	Phone   string
	Name    string
	GroupID *int
}

// MassMessageJob is one request to deliver a single message to a resolved recipient set
type MassMessageJob struct {
	ID                          int
	CompanyID                   int
	Message                     Message
	Variables                   map[string]string
	TargetType                  TargetType
	TargetRefs                  TargetRefs
	InstanceID                  string
	SchedulingType              SchedulingType
	ScheduledFor                *time.Time
	Timezone                    string
	DelayBetweenGroupsSeconds   int
	DelayBetweenMessagesSeconds int
	Status                      Status
	TotalRecipients             int
	SentCount                   int
	FailureReason               string
	ClaimedBy                   string
	HeartbeatAt                 *time.Time
	CreatedAt                   time.Time
	StartedAt                   *time.Time
	CompletedAt                 *time.Time
	UpdatedAt                   time.Time
}

// DeliveryRecord tracks one recipient of a job so a restarted dispatcher never re-sends
type DeliveryRecord struct {
	ID          int
	JobID       int
	Seq         int
	Phone       string
	Name        string
	GroupID     *int
	State       DeliveryState
	Error       string
	AttemptedAt *time.Time
}

// DeliveryError is one entry of a job's error list
type DeliveryError struct {
	Phone string
	Error string
	At    time.Time
}

// DeliveryCounts aggregates delivery records of a job
type DeliveryCounts struct {
	Pending int
	Sent    int
	Errored int
}

// Progress is the polling view of a job
type Progress struct {
	JobID              int
	Status             Status
	ProcessedCount     int
	TotalCount         int
	ProgressPercentage int
	Errors             []DeliveryError
}

// SearchResultJob is a page of job history
type SearchResultJob struct {
	Data       *[]MassMessageJob
	Total      int64
	Page       int
	PageSize   int
	TotalPages int
}

var variableToken = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Render produces the text sent to one recipient. Template content has its {variable}
// tokens substituted; unknown tokens are left untouched. Custom text is sent verbatim.
func Render(msg Message, values map[string]string) string {
	switch msg.Type {
	case MessageTemplate:
		return variableToken.ReplaceAllStringFunc(msg.Content, func(token string) string {
			if value, ok := values[token[1:len(token)-1]]; ok {
				return value
			}
			return token
		})
	default:
		return msg.Content
	}
}

// RecipientValues merges job variables with the per-recipient builtins
func RecipientValues(variables map[string]string, record DeliveryRecord) map[string]string {
	values := make(map[string]string, len(variables)+2)
	for k, v := range variables {
		values[k] = v
	}
	values["phone"] = record.Phone
	if record.Name != "" {
		values["name"] = record.Name
	} else if _, ok := values["name"]; !ok {
		values["name"] = ""
	}
	return values
}

// CanTransition reports whether a job may move between two statuses
func CanTransition(from, to Status) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Percentage rounds processed/total to a whole percent clamped to [0,100]
func Percentage(processed, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(processed) / float64(total) * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// NewProgress builds the progress view of a job from its delivery counts
func NewProgress(job *MassMessageJob, counts DeliveryCounts, errors []DeliveryError) *Progress {
	processed := counts.Sent + counts.Errored
	if processed > job.TotalRecipients {
		processed = job.TotalRecipients
	}
	if errors == nil {
		errors = []DeliveryError{}
	}
	return &Progress{
		JobID:              job.ID,
		Status:             job.Status,
		ProcessedCount:     processed,
		TotalCount:         job.TotalRecipients,
		ProgressPercentage: Percentage(processed, job.TotalRecipients),
		Errors:             errors,
	}
}

// Bucket is a run of delivery records sharing a campaign group
type Bucket struct {
	GroupID *int
	Records []DeliveryRecord
}

// BucketByGroup groups records by GroupID in order of first appearance.
// Records without a group all land in one implicit bucket.
func BucketByGroup(records []DeliveryRecord) []Bucket {
	var buckets []Bucket
	index := map[int]int{}
	ungrouped := -1
	for _, r := range records {
		if r.GroupID == nil {
			if ungrouped < 0 {
				ungrouped = len(buckets)
				buckets = append(buckets, Bucket{})
			}
			buckets[ungrouped].Records = append(buckets[ungrouped].Records, r)
			continue
		}
		i, ok := index[*r.GroupID]
		if !ok {
			i = len(buckets)
			index[*r.GroupID] = i
			groupID := *r.GroupID
			buckets = append(buckets, Bucket{GroupID: &groupID})
		}
		buckets[i].Records = append(buckets[i].Records, r)
	}
	return buckets
}
