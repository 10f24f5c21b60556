package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wisefido-alarm-rules/internal/config"
	"wisefido-alarm-rules/internal/logger"
	"wisefido-alarm-rules/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.New(cfg.Log, "wisefido-alarm-rules")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 创建服务
	svc, err := service.NewService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create alarm rules service",
			zap.Error(err),
		)
	}
	defer svc.Stop()

	log.Info("Alarm rules service started",
		zap.Bool("cache_enabled", cfg.Rules.CacheEnabled),
		zap.Bool("kafka_enabled", cfg.Kafka.Enabled),
		zap.Bool("strict_actions", cfg.Rules.StrictActions),
	)

	// 4. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received signal, shutting down",
		zap.String("signal", sig.String()),
	)
}
