package pkg

import (
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger *zap.Logger

// InitLogger initializes the global Logger for the named service based on the gin mode.
// APP_LOG_LEVEL overrides the default level (debug in development, info in release).
func InitLogger(service string) {
	ginMode := gin.Mode()
	var config zap.Config

	if gin.ReleaseMode == ginMode { // pre. prod, or default
		config = zap.NewProductionConfig()
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if lvl := os.Getenv("APP_LOG_LEVEL"); lvl != "" {
		level, err := zapcore.ParseLevel(lvl)
		if err == nil {
			config.Level = zap.NewAtomicLevelAt(level)
		}
	}
	logger, err := config.Build(
		zap.AddStacktrace(zap.DPanicLevel),
		zap.Fields(zap.String("service", service)),
	)
	if err != nil {
		panic(err)
	}

	Logger = logger
}
