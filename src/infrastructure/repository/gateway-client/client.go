package gateway_client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainGateway "go-wa-campaign-api/src/domain/gateway"
	logger "go-wa-campaign-api/src/infrastructure/logger"

	uuid "github.com/gofrs/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// GatewayError is a non-2xx answer or a transport failure of the gateway
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.StatusCode == 0 {
		return "gateway unreachable: " + e.Message
	}
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// Client implements domainGateway.IMessagingGateway over the gateway HTTP API
type Client struct {
	baseURL  string
	http     *http.Client
	registry *InstanceRegistry
	timeout  time.Duration
	Logger   *logger.Logger
}

func NewGatewayClient(baseURL string, registry *InstanceRegistry, timeout time.Duration, loggerInstance *logger.Logger) domainGateway.IMessagingGateway {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{},
		registry: registry,
		timeout:  timeout,
		Logger:   loggerInstance,
	}
}

func (c *Client) instanceURL(instanceID string, parts ...string) string {
	base := c.baseURL
	if override := c.registry.Lookup(instanceID).BaseURL; override != "" {
		base = strings.TrimRight(override, "/")
	}
	escaped := make([]string, 0, len(parts)+2)
	escaped = append(escaped, "instances", url.PathEscape(instanceID))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return base + "/" + strings.Join(escaped, "/")
}

func (c *Client) do(ctx context.Context, method, instanceID, endpoint string, body []byte) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	requestID, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Request-Id", requestID.String())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := c.registry.Lookup(instanceID).APIKey; key != "" {
		req.Header.Set("apikey", key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.Logger.Warn("Gateway request failed", zap.Error(err), zap.String("instanceID", instanceID), zap.String("requestID", requestID.String()))
		return nil, &GatewayError{Message: err.Error()}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gwErr := &GatewayError{StatusCode: resp.StatusCode, Message: errorMessage(payload)}
		c.Logger.Warn("Gateway returned an error",
			zap.Int("status", resp.StatusCode),
			zap.String("error", gwErr.Message),
			zap.String("instanceID", instanceID),
			zap.String("requestID", requestID.String()))
		return nil, gwErr
	}
	return payload, nil
}

func errorMessage(payload []byte) string {
	for _, path := range []string{"error.message", "message", "error"} {
		if v := gjson.GetBytes(payload, path); v.Exists() && v.Type == gjson.String {
			return v.String()
		}
	}
	if len(payload) > 0 && len(payload) < 512 {
		return string(payload)
	}
	return "unknown error"
}

func (c *Client) CreateGroup(ctx context.Context, instanceID string, spec domainGateway.GroupSpec) (*domainGateway.CreatedGroup, error) {
	body, _ := sjson.SetBytes([]byte(`{}`), "subject", spec.Name)
	if spec.Description != "" {
		body, _ = sjson.SetBytes(body, "description", spec.Description)
	}
	if spec.ImageURL != "" {
		body, _ = sjson.SetBytes(body, "image", spec.ImageURL)
	}
	body, _ = sjson.SetBytes(body, "onlyAdminsSend", spec.OnlyAdminsSend)

	payload, err := c.do(ctx, http.MethodPost, instanceID, c.instanceURL(instanceID, "groups"), body)
	if err != nil {
		return nil, err
	}
	groupID := gjson.GetBytes(payload, "id").String()
	if groupID == "" {
		return nil, &GatewayError{StatusCode: http.StatusOK, Message: "group id missing from response"}
	}
	c.Logger.Info("Gateway group created", zap.String("instanceID", instanceID), zap.String("externalGroupID", groupID))
	return &domainGateway.CreatedGroup{
		ExternalGroupID: groupID,
		InviteLink:      gjson.GetBytes(payload, "inviteLink").String(),
	}, nil
}

func (c *Client) AddMember(ctx context.Context, instanceID string, externalGroupID string, phone string) error {
	body, _ := sjson.SetBytes([]byte(`{}`), "participants", []string{phone})
	_, err := c.do(ctx, http.MethodPost, instanceID, c.instanceURL(instanceID, "groups", externalGroupID, "participants"), body)
	return err
}

func (c *Client) UpdateGroupSettings(ctx context.Context, instanceID string, externalGroupID string, settings domainGateway.GroupSettings) error {
	body := []byte(`{}`)
	if settings.OnlyAdminsSend != nil {
		body, _ = sjson.SetBytes(body, "onlyAdminsSend", *settings.OnlyAdminsSend)
	}
	if settings.Description != nil {
		body, _ = sjson.SetBytes(body, "description", *settings.Description)
	}
	if settings.ImageURL != nil {
		body, _ = sjson.SetBytes(body, "image", *settings.ImageURL)
	}
	_, err := c.do(ctx, http.MethodPut, instanceID, c.instanceURL(instanceID, "groups", externalGroupID, "settings"), body)
	return err
}

func (c *Client) SendMessage(ctx context.Context, instanceID string, phone string, text string) error {
	body, _ := sjson.SetBytes([]byte(`{}`), "number", phone)
	body, _ = sjson.SetBytes(body, "text", text)
	_, err := c.do(ctx, http.MethodPost, instanceID, c.instanceURL(instanceID, "messages", "text"), body)
	return err
}

func (c *Client) IsConnected(ctx context.Context, instanceID string) (bool, error) {
	payload, err := c.do(ctx, http.MethodGet, instanceID, c.instanceURL(instanceID, "status"), nil)
	if err != nil {
		return false, err
	}
	return gjson.GetBytes(payload, "connected").Bool(), nil
}
