package campaign

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	domainCampaign "go-wa-campaign-api/src/domain/campaign"
	"go-wa-campaign-api/src/domain/common"
	domainErrors "go-wa-campaign-api/src/domain/errors"
	"go-wa-campaign-api/src/infrastructure/helper"
	logger "go-wa-campaign-api/src/infrastructure/logger"
	"go-wa-campaign-api/src/infrastructure/rest/middlewares"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type MockCampaignUseCase struct {
	updateStatusFn     func(companyID, id int, status domainCampaign.Status) (*domainCampaign.Campaign, error)
	listGroupsFn       func(companyID, id int) (*[]domainCampaign.CampaignGroup, error)
	publicSummaryFn    func(slug string) (*domainCampaign.Summary, error)
	registerBySlugFn   func(slug, phone, name string) (*domainCampaign.Registration, error)
	syncSettingsFn     func(companyID, id int) error
	settingsProgressFn func(companyID, id int) (*domainCampaign.SettingsProgress, error)
	qrCodeFn           func(companyID, id int) ([]byte, error)
	setGroupImageFn    func(companyID, id int, data []byte) (*domainCampaign.Campaign, error)
}

func (m *MockCampaignUseCase) UpdateStatus(_ context.Context, companyID, id int, status domainCampaign.Status) (*domainCampaign.Campaign, error) {
	return m.updateStatusFn(companyID, id, status)
}

func (m *MockCampaignUseCase) ListGroups(_ context.Context, companyID, id int) (*[]domainCampaign.CampaignGroup, error) {
	return m.listGroupsFn(companyID, id)
}

func (m *MockCampaignUseCase) PublicSummary(_ context.Context, slug string) (*domainCampaign.Summary, error) {
	return m.publicSummaryFn(slug)
}

func (m *MockCampaignUseCase) RegisterBySlug(_ context.Context, slug, phone, name string) (*domainCampaign.Registration, error) {
	return m.registerBySlugFn(slug, phone, name)
}

func (m *MockCampaignUseCase) SyncSettings(_ context.Context, companyID, id int) error {
	return m.syncSettingsFn(companyID, id)
}

func (m *MockCampaignUseCase) SettingsProgress(_ context.Context, companyID, id int) (*domainCampaign.SettingsProgress, error) {
	return m.settingsProgressFn(companyID, id)
}

func (m *MockCampaignUseCase) DistributorQRCode(_ context.Context, companyID, id int) ([]byte, error) {
	return m.qrCodeFn(companyID, id)
}

func (m *MockCampaignUseCase) SetGroupImage(_ context.Context, companyID, id int, data []byte) (*domainCampaign.Campaign, error) {
	return m.setGroupImageFn(companyID, id, data)
}

func setupRouter(t *testing.T, useCase *MockCampaignUseCase) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, helper.RegisterValidations())
	nop := logger.NewNopLogger()
	controller := NewCampaignController(common.NewCommonService(helper.NewValidator(nop)), useCase, 1<<20, nop)

	router := gin.New()
	router.Use(middlewares.ErrorHandler())
	router.GET("/campaigns/public/:slug", controller.PublicSummary)
	router.POST("/campaigns/public/:slug/register", controller.Register)
	private := router.Group("/campaigns", func(c *gin.Context) {
		c.Set(middlewares.CompanyIDKey, 7)
		c.Next()
	})
	private.PATCH("/:id/status", controller.UpdateStatus)
	private.GET("/:id/groups", controller.ListGroups)
	private.POST("/:id/groups/sync-settings", controller.SyncSettings)
	private.GET("/:id/update-progress", controller.UpdateProgress)
	private.GET("/:id/distributor-qrcode", controller.DistributorQRCode)
	private.PUT("/:id/group-image", controller.UploadGroupImage)
	return router
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

func TestRegister(t *testing.T) {
	useCase := &MockCampaignUseCase{registerBySlugFn: func(slug, phone, name string) (*domainCampaign.Registration, error) {
		assert.Equal(t, "launch-vip", slug)
		if phone == "5511999990009" {
			return &domainCampaign.Registration{GroupID: 3, GroupNumber: 1, InviteLink: "https://chat.whatsapp.com/a", AlreadyRegistered: true}, nil
		}
		return &domainCampaign.Registration{GroupID: 4, GroupNumber: 2, InviteLink: "https://chat.whatsapp.com/b"}, nil
	}}
	router := setupRouter(t, useCase)

	w := do(router, http.MethodPost, "/campaigns/public/launch-vip/register", `{"name":"Ana","phone":"+55 11 99999-0001"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"group_id":4,"group_number":2,"invite_link":"https://chat.whatsapp.com/b","already_registered":false}`, w.Body.String())

	w = do(router, http.MethodPost, "/campaigns/public/launch-vip/register", `{"phone":"5511999990009"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gjson.Get(w.Body.String(), "already_registered").Bool())
}

func TestRegister_InvalidPhone(t *testing.T) {
	router := setupRouter(t, &MockCampaignUseCase{})

	w := do(router, http.MethodPost, "/campaigns/public/launch-vip/register", `{"phone":"call me"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "phone", gjson.Get(w.Body.String(), "errors.0.field").String())
	assert.Equal(t, "Should be a valid phone number", gjson.Get(w.Body.String(), "errors.0.message").String())
}

func TestRegister_ErrorMapping(t *testing.T) {
	tests := map[string]int{
		domainErrors.CapacityExceeded:           http.StatusUnprocessableEntity,
		domainErrors.ExternalGroupCreationError: http.StatusBadGateway,
		domainErrors.ConcurrencyConflict:        http.StatusServiceUnavailable,
		domainErrors.NotFound:                   http.StatusNotFound,
	}
	for errType, status := range tests {
		errType := errType
		router := setupRouter(t, &MockCampaignUseCase{registerBySlugFn: func(string, string, string) (*domainCampaign.Registration, error) {
			return nil, domainErrors.NewAppErrorWithType(errType)
		}})
		w := do(router, http.MethodPost, "/campaigns/public/launch-vip/register", `{"phone":"5511999990001"}`)
		assert.Equal(t, status, w.Code, errType)
	}
}

func TestPublicSummary(t *testing.T) {
	router := setupRouter(t, &MockCampaignUseCase{publicSummaryFn: func(slug string) (*domainCampaign.Summary, error) {
		return &domainCampaign.Summary{Name: "Launch", Status: domainCampaign.StatusActive, GroupCount: 2, TotalCapacity: 10, TotalMembers: 7, AvailableSlots: 3, AcceptingMembers: true}, nil
	}})

	w := do(router, http.MethodGet, "/campaigns/public/launch-vip", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(3), gjson.Get(w.Body.String(), "available_slots").Int())
	assert.True(t, gjson.Get(w.Body.String(), "accepting_members").Bool())
}

func TestUpdateStatus(t *testing.T) {
	router := setupRouter(t, &MockCampaignUseCase{updateStatusFn: func(companyID, id int, status domainCampaign.Status) (*domainCampaign.Campaign, error) {
		assert.Equal(t, 7, companyID)
		if status == domainCampaign.StatusDraft {
			return nil, domainErrors.NewAppErrorWithType(domainErrors.InvalidTransition)
		}
		return &domainCampaign.Campaign{ID: id, Status: status}, nil
	}})

	w := do(router, http.MethodPatch, "/campaigns/9/status", `{"status":"paused"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paused", gjson.Get(w.Body.String(), "status").String())

	assert.Equal(t, http.StatusConflict, do(router, http.MethodPatch, "/campaigns/9/status", `{"status":"draft"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPatch, "/campaigns/9/status", `{"status":"running"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPatch, "/campaigns/x/status", `{"status":"paused"}`).Code)
}

func TestGroupsAndSettingsSync(t *testing.T) {
	router := setupRouter(t, &MockCampaignUseCase{
		listGroupsFn: func(companyID, id int) (*[]domainCampaign.CampaignGroup, error) {
			return &[]domainCampaign.CampaignGroup{{ID: 1, GroupNumber: 1, MemberCount: 4, Capacity: 5}}, nil
		},
		syncSettingsFn: func(companyID, id int) error {
			if id == 2 {
				return domainErrors.NewAppErrorWithType(domainErrors.InvalidTransition)
			}
			return nil
		},
		settingsProgressFn: func(companyID, id int) (*domainCampaign.SettingsProgress, error) {
			return &domainCampaign.SettingsProgress{Status: domainCampaign.SyncRunning, ProcessedCount: 1, TotalCount: 4, ProgressPercentage: 25}, nil
		},
	})

	w := do(router, http.MethodGet, "/campaigns/9/groups", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "data.0.available_slots").Int())

	assert.Equal(t, http.StatusAccepted, do(router, http.MethodPost, "/campaigns/9/groups/sync-settings", "").Code)
	assert.Equal(t, http.StatusConflict, do(router, http.MethodPost, "/campaigns/2/groups/sync-settings", "").Code)

	w = do(router, http.MethodGet, "/campaigns/9/update-progress", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"running","processed_count":1,"total_count":4,"failed_count":0,"progress_percentage":25}`, w.Body.String())
}

func TestDistributorQRCode(t *testing.T) {
	router := setupRouter(t, &MockCampaignUseCase{qrCodeFn: func(companyID, id int) ([]byte, error) {
		return []byte("\x89PNG"), nil
	}})

	w := do(router, http.MethodGet, "/campaigns/9/distributor-qrcode", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

func TestUploadGroupImage(t *testing.T) {
	var received []byte
	router := setupRouter(t, &MockCampaignUseCase{setGroupImageFn: func(companyID, id int, data []byte) (*domainCampaign.Campaign, error) {
		received = data
		return &domainCampaign.Campaign{ID: id, GroupImageURL: "https://wa.example.com/v1/media/campaigns/9/group-image.png"}, nil
	}})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "logo.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\n"))
	require.NoError(t, writer.Close())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/campaigns/9/group-image", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), received)
	assert.Contains(t, gjson.Get(w.Body.String(), "group_image_url").String(), "group-image.png")

	w = do(router, http.MethodPut, "/campaigns/9/group-image", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
