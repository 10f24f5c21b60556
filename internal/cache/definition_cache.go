// Package cache Redis 旁路缓存：读路径命中渲染好的定义，所有变更操作失效对应键
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-alarm-rules/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefinitionCache 报警定义缓存管理器
type DefinitionCache struct {
	redisClient *redis.Client
	keyPrefix   string
	ttl         time.Duration
	logger      *zap.Logger
}

// NewDefinitionCache 创建缓存管理器
func NewDefinitionCache(redisClient *redis.Client, keyPrefix string, ttlSeconds int, logger *zap.Logger) *DefinitionCache {
	if keyPrefix == "" {
		keyPrefix = "alarm-rules:def:"
	}
	if ttlSeconds <= 0 {
		ttlSeconds = 300
	}
	return &DefinitionCache{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
		ttl:         time.Duration(ttlSeconds) * time.Second,
		logger:      logger,
	}
}

func (c *DefinitionCache) key(tenantID, id string) string {
	return fmt.Sprintf("%s%s:%s", c.keyPrefix, tenantID, id)
}

// Get 读取缓存的定义；未命中返回 (nil, nil)
func (c *DefinitionCache) Get(ctx context.Context, tenantID, id string) (*models.AlarmDefinition, error) {
	val, err := c.redisClient.Get(ctx, c.key(tenantID, id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}

	var def models.AlarmDefinition
	if err := json.Unmarshal([]byte(val), &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached definition: %w", err)
	}
	return &def, nil
}

// Set 写入缓存（设置 TTL）
func (c *DefinitionCache) Set(ctx context.Context, def *models.AlarmDefinition) error {
	jsonData, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	key := c.key(def.TenantID, def.ID)
	if err := c.redisClient.Set(ctx, key, jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set definition cache: %w", err)
	}

	c.logger.Debug("Updated definition cache",
		zap.String("tenant_id", def.TenantID),
		zap.String("id", def.ID),
		zap.String("key", key),
	)
	return nil
}

// Invalidate 删除缓存键（任何变更操作之后调用）
func (c *DefinitionCache) Invalidate(ctx context.Context, tenantID, id string) error {
	if err := c.redisClient.Del(ctx, c.key(tenantID, id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate definition cache: %w", err)
	}
	return nil
}
