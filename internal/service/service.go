package service

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-alarm-rules/internal/cache"
	"wisefido-alarm-rules/internal/config"
	"wisefido-alarm-rules/internal/events"
	"wisefido-alarm-rules/internal/repository"
	"wisefido-alarm-rules/internal/validation"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

// Service 报警定义服务（整合各层）
type Service struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	publisher   events.Publisher
	logger      *zap.Logger

	// 各层组件
	Definitions *DefinitionService
}

// NewService 创建报警定义服务
func NewService(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxConns)
	}
	if cfg.Database.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdle)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newServiceWith(cfg, db, logger)
}

// newServiceWith 在已打开的数据库连接上装配其余组件
// 任何失败分支都负责关闭已打开的资源，不留泄漏
func newServiceWith(cfg *config.Config, db *sql.DB, logger *zap.Logger) (*Service, error) {
	// 2. 连接 Redis（缓存启用时）
	var redisClient *redis.Client
	var defCache *cache.DefinitionCache
	if cfg.Rules.CacheEnabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			redisClient.Close()
			db.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		defCache = cache.NewDefinitionCache(redisClient, cfg.Rules.CacheKeyPrefix, cfg.Rules.CacheTTL, logger)
	}

	// 3. 事件发布器
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			if redisClient != nil {
				redisClient.Close()
			}
			db.Close()
			return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		publisher = kafkaPublisher
	}

	// 4. Repository 层
	defsRepo := repository.NewPostgresAlarmDefinitionsRepo(db, logger)

	// 5. 校验器（严格模式下启用动作注册表）
	opts := validation.Options{
		RejectDuplicateActions: cfg.Rules.RejectDuplicateActions,
	}
	if cfg.Rules.StrictActions {
		opts.Registry = repository.NewPostgresActionsRepo(db, logger)
	}
	validator := validation.NewValidator(opts)

	// 6. 生命周期服务
	definitions := NewDefinitionService(defsRepo, validator, defCache, publisher, nil, nil, logger)

	return &Service{
		config:      cfg,
		db:          db,
		redisClient: redisClient,
		publisher:   publisher,
		logger:      logger,
		Definitions: definitions,
	}, nil
}

// Stop 停止服务
func (s *Service) Stop() error {
	s.logger.Info("Stopping alarm rules service")

	if err := s.publisher.Close(); err != nil {
		s.logger.Error("Failed to close event publisher",
			zap.Error(err),
		)
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis",
				zap.Error(err),
			)
		}
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}
	return nil
}
