package database

import (
	"fmt"
	"time"

	"go-wa-campaign-api/src/infrastructure/config"
	logger "go-wa-campaign-api/src/infrastructure/logger"
	"go-wa-campaign-api/src/infrastructure/repository/database/campaign"
	"go-wa-campaign-api/src/infrastructure/repository/database/contact"
	"go-wa-campaign-api/src/infrastructure/repository/database/massmessage"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Repository struct {
	DB     *gorm.DB
	Logger *logger.Logger
	Config config.DatabaseConfig
}

func NewRepository(cfg config.DatabaseConfig, loggerInstance *logger.Logger) *Repository {
	return &Repository{
		Config: cfg,
		Logger: loggerInstance,
	}
}

// GetDSN builds the connection string for the configured driver
func (r *Repository) GetDSN() string {
	c := r.Config
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

func (r *Repository) dialector() gorm.Dialector {
	if r.Config.Driver == "postgres" {
		return postgres.Open(r.GetDSN())
	}
	return mysql.Open(r.GetDSN())
}

// GormConfig is shared by the server and the repository tests so that both see
// translated driver errors such as gorm.ErrDuplicatedKey.
func GormConfig(loggerInstance *logger.Logger) *gorm.Config {
	return &gorm.Config{
		Logger:                 logger.NewGormLogger(loggerInstance.Log).LogMode(gormlogger.Warn),
		TranslateError:         true,
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (r *Repository) InitDatabase() error {
	var err error
	r.DB, err = gorm.Open(r.dialector(), GormConfig(r.Logger))
	if err != nil {
		r.Logger.Error("Error connecting to the database", zap.Error(err), zap.String("driver", r.Config.Driver))
		return err
	}

	sqlDB, err := r.DB.DB()
	if err != nil {
		r.Logger.Error("Error getting the database handle", zap.Error(err))
		return err
	}
	sqlDB.SetMaxOpenConns(r.Config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(r.Config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err = r.MigrateEntitiesGORM(); err != nil {
		r.Logger.Error("Error migrating the database", zap.Error(err))
		return err
	}

	r.Logger.Info("Database connection and migrations successful", zap.String("driver", r.Config.Driver))
	return nil
}

func (r *Repository) MigrateEntitiesGORM() error {
	err := r.DB.AutoMigrate(
		&campaign.Campaign{},
		&campaign.CampaignGroup{},
		&campaign.GroupMembership{},
		&campaign.GroupCreationMarker{},
		&contact.Contact{},
		&massmessage.MessageTemplate{},
		&massmessage.MassMessageJob{},
		&massmessage.DeliveryRecord{},
	)
	if err != nil {
		r.Logger.Error("Error migrating database entities", zap.Error(err))
		return err
	}
	r.Logger.Info("Database entities migration completed successfully")
	return nil
}

// InitDB opens the configured database and migrates every entity
func InitDB(cfg config.DatabaseConfig, loggerInstance *logger.Logger) (*gorm.DB, error) {
	repo := NewRepository(cfg, loggerInstance)
	if err := repo.InitDatabase(); err != nil {
		return nil, err
	}
	return repo.DB, nil
}
