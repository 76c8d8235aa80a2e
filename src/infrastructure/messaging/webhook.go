package messaging

import (
	"bytes"
	"context"
	"net/http"
	"time"

	domainMassMessage "go-wa-campaign-api/src/domain/massmessage"
	logger "go-wa-campaign-api/src/infrastructure/logger"

	"github.com/gofrs/uuid"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// Completion is the payload announced when a job reaches a terminal status
type Completion struct {
	JobID      int
	CompanyID  int
	Status     domainMassMessage.Status
	SentCount  int
	ErrorCount int
}

type CompletionNotifier interface {
	Notify(ctx context.Context, completion Completion)
}

// WebhookNotifier POSTs completions to a fixed URL. Delivery is best effort.
type WebhookNotifier struct {
	URL    string
	client *http.Client
	Logger *logger.Logger
}

func NewWebhookNotifier(url string, loggerInstance *logger.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		Logger: loggerInstance,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, completion Completion) {
	if n == nil || n.URL == "" {
		return
	}

	payload := `{}`
	payload, _ = sjson.Set(payload, "job_id", completion.JobID)
	payload, _ = sjson.Set(payload, "company_id", completion.CompanyID)
	payload, _ = sjson.Set(payload, "status", string(completion.Status))
	payload, _ = sjson.Set(payload, "sent_count", completion.SentCount)
	payload, _ = sjson.Set(payload, "error_count", completion.ErrorCount)
	payload, _ = sjson.Set(payload, "timestamp", time.Now().Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewBufferString(payload))
	if err != nil {
		n.Logger.Error("Error creating webhook request", zap.Error(err), zap.String("webhookURL", n.URL))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "go-wa-campaign-api-Webhook")
	if id, err := uuid.NewV4(); err == nil {
		req.Header.Set("X-Request-Id", id.String())
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.Logger.Error("Error sending webhook request", zap.Error(err), zap.String("webhookURL", n.URL), zap.Int("jobID", completion.JobID))
		return
	}
	defer resp.Body.Close()

	n.Logger.Info("Webhook notification sent",
		zap.String("webhookURL", n.URL),
		zap.Int("jobID", completion.JobID),
		zap.Int("statusCode", resp.StatusCode))
}
