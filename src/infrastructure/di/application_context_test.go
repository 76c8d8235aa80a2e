package di

import (
	"context"
	"strings"
	"testing"

	domainGateway "go-wa-campaign-api/src/domain/gateway"
	"go-wa-campaign-api/src/infrastructure/config"
	logger "go-wa-campaign-api/src/infrastructure/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stubGateway struct{}

func (stubGateway) CreateGroup(context.Context, string, domainGateway.GroupSpec) (*domainGateway.CreatedGroup, error) {
	return &domainGateway.CreatedGroup{}, nil
}

func (stubGateway) AddMember(context.Context, string, string, string) error { return nil }

func (stubGateway) UpdateGroupSettings(context.Context, string, string, domainGateway.GroupSettings) error {
	return nil
}

func (stubGateway) SendMessage(context.Context, string, string, string) error { return nil }

func (stubGateway) IsConnected(context.Context, string) (bool, error) { return true, nil }

func newMockDB(t *testing.T) *gorm.DB {
	t.Helper()
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{PublicBaseURL: "https://wa.example.com"},
		Dispatch: config.DispatchConfig{
			Workers:          2,
			QueueSize:        10,
			PromoterSchedule: "@every 5s",
		},
		Media: config.MediaConfig{Dir: "./media", MaxUploadBytes: 1 << 20},
	}
}

func TestNewTestApplicationContext_WithoutRedis(t *testing.T) {
	loggerInstance := logger.NewNopLogger()
	appContext, err := NewTestApplicationContext(testConfig(), newMockDB(t), nil, stubGateway{}, loggerInstance)
	require.NoError(t, err)

	assert.Same(t, loggerInstance, appContext.Logger)
	assert.Same(t, loggerInstance, appContext.Dispatcher.Logger)
	assert.Nil(t, appContext.Redis)
	assert.NotNil(t, appContext.CampaignController)
	assert.NotNil(t, appContext.MassMessageController)
	assert.NotNil(t, appContext.MediaController)
	assert.NotNil(t, appContext.Dispatcher)
	assert.NotNil(t, appContext.Promoter)
	assert.NotNil(t, appContext.SettingsSyncer)
}

func TestNewTestApplicationContext_WithRedis(t *testing.T) {
	client, _ := redismock.NewClientMock()

	appContext, err := NewTestApplicationContext(testConfig(), newMockDB(t), client, stubGateway{}, logger.NewNopLogger())
	require.NoError(t, err)

	assert.Same(t, client, appContext.Redis)
	assert.NotNil(t, appContext.CampaignUseCase)
	assert.NotNil(t, appContext.AllocationUseCase)
}

func TestNewTestApplicationContext_InvalidSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Dispatch.PromoterSchedule = "every now and then"

	_, err := NewTestApplicationContext(cfg, newMockDB(t), nil, stubGateway{}, logger.NewNopLogger())
	assert.Error(t, err)
}

func TestStartAndShutdown(t *testing.T) {
	appContext, err := NewTestApplicationContext(testConfig(), newMockDB(t), nil, stubGateway{}, logger.NewNopLogger())
	require.NoError(t, err)

	appContext.Start()
	appContext.Shutdown()
}

func TestNodeID(t *testing.T) {
	first, second := NodeID(), NodeID()

	assert.NotEqual(t, first, second)
	assert.True(t, strings.Contains(first, "-"))
}
