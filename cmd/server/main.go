package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/farmlink/farmlink/internal/config"
	"github.com/farmlink/farmlink/internal/handlers"
	"github.com/farmlink/farmlink/internal/middleware"
	"github.com/farmlink/farmlink/internal/repository"
	"github.com/farmlink/farmlink/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.RequireJWT(); err != nil {
		logger.WithError(err).Fatal("Invalid JWT configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	dynamoClient, err := initDynamoDB(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize DynamoDB")
	}

	redisClient, err := initRedis(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	userRepo := repository.NewUserRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	productRepo := repository.NewProductRepository(dynamoClient, cfg.DynamoDB.TableName, logger)

	var otpStore service.OTPStore
	var refreshTokenStore service.RefreshTokenStore
	switch cfg.StateBackend {
	case config.StateBackendRedis:
		otpStore = repository.NewRedisOTPRepository(redisClient, logger)
		refreshTokenStore = repository.NewRedisRefreshTokenRepository(redisClient, logger)
	default:
		otpStore = repository.NewOTPRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
		refreshTokenStore = repository.NewRefreshTokenRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	}
	logger.WithField("backend", cfg.StateBackend).Info("Session state backend selected")

	smsSender, emailSender := initNotifiers(cfg, logger)

	jwtService, err := service.NewJWTService(&cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize JWT service")
	}

	otpService := service.NewOTPService(otpStore, smsSender, &cfg.OTP, logger)
	refreshTokenService := service.NewRefreshTokenService(refreshTokenStore, logger)
	authService := service.NewAuthService(
		userRepo,
		otpService,
		jwtService,
		refreshTokenService,
		emailSender,
		&cfg.EmailVerification,
		logger,
	)
	productService := service.NewProductService(productRepo, logger)

	uploadService := service.NewUploadService(&cfg.Upload, logger)
	if err := uploadService.EnsureDirs(); err != nil {
		logger.WithError(err).Fatal("Failed to create upload directories")
	}
	media := service.NewMediaResolver(cfg.Media.BaseURL, cfg.Media.DefaultImage)

	var rateLimiter *middleware.RateLimiter
	if redisClient != nil {
		rateLimiter = middleware.NewRateLimiter(redisClient, cfg.RateLimit.Max, cfg.RateLimit.Window, logger)
	} else {
		logger.Warn("Redis not configured, API rate limiting disabled")
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Config:         cfg,
		Auth:           handlers.NewAuthHandlers(authService, cfg.Server.MaxBodyBytes, logger),
		Products:       handlers.NewProductHandlers(productService, media, cfg.Server.MaxBodyBytes, logger),
		Uploads:        handlers.NewUploadHandlers(uploadService, media, cfg.Upload.MaxFiles, cfg.Upload.MaxFileSize, cfg.Media.CacheMaxAge, logger),
		AuthMiddleware: middleware.NewAuthMiddleware(jwtService, logger),
		RateLimiter:    rateLimiter,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port": cfg.Server.Port,
			"env":  cfg.Server.Env,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}

// initRedis returns nil when no endpoint is configured and Redis is not the
// state backend.
func initRedis(cfg *config.Config, logger *logrus.Logger) (*redis.Client, error) {
	if cfg.Redis.Endpoint == "" {
		if cfg.StateBackend == config.StateBackendRedis {
			return nil, fmt.Errorf("REDIS_ENDPOINT is required when STATE_BACKEND=%s", config.StateBackendRedis)
		}
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithField("endpoint", cfg.Redis.Endpoint).Info("Redis client initialized")
	return client, nil
}

// initNotifiers picks Twilio and SendGrid when credentials are present and
// falls back to logging messages otherwise.
func initNotifiers(cfg *config.Config, logger *logrus.Logger) (service.SMSSender, service.EmailSender) {
	fallback := service.NewLogNotifier(logger)

	var sms service.SMSSender = fallback
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != "" && cfg.Twilio.FromPhone != "" {
		sms = service.NewTwilioSMSSender(&cfg.Twilio)
		logger.Info("Twilio SMS delivery enabled")
	} else if cfg.IsProduction() {
		logger.Warn("Twilio not configured, OTP codes will only be logged")
	}

	var email service.EmailSender = fallback
	if cfg.SendGrid.APIKey != "" && cfg.SendGrid.FromEmail != "" {
		email = service.NewSendGridEmailSender(&cfg.SendGrid)
		logger.Info("SendGrid e-mail delivery enabled")
	} else if cfg.IsProduction() {
		logger.Warn("SendGrid not configured, verification codes will only be logged")
	}

	return sms, email
}
