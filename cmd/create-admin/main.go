// Command create-admin creates an admin account, or promotes an existing
// account with the same e-mail to admin.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/farmlink/farmlink/internal/config"
	"github.com/farmlink/farmlink/internal/repository"
	"github.com/farmlink/farmlink/internal/service"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	email := flag.String("email", os.Getenv("ADMIN_EMAIL"), "admin e-mail address")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password, used only when creating the account")
	name := flag.String("name", envOr("ADMIN_NAME", "Farmlink Admin"), "admin display name")
	flag.Parse()

	if *email == "" {
		logger.Fatal("An e-mail address is required (-email or ADMIN_EMAIL)")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.DynamoDB.Region)}
	if cfg.DynamoDB.Endpoint != "" {
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{URL: cfg.DynamoDB.Endpoint, SigningRegion: cfg.DynamoDB.Region}, nil
			})))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load AWS config")
	}

	users := repository.NewUserRepository(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDB.TableName, logger)
	existing, err := users.GetByEmail(ctx, *email)
	if err != nil {
		logger.WithError(err).Fatal("Failed to look up user")
	}
	if existing == nil && len(*password) < 8 {
		logger.Fatal("A password of at least 8 characters is required to create a new admin")
	}

	authService := service.NewAuthService(users, nil, nil, nil, service.NewLogNotifier(logger), &cfg.EmailVerification, logger)
	created, err := authService.EnsureAdmin(ctx, *email, *password, *name)
	if err != nil {
		logger.WithError(err).Fatal("Failed to ensure admin user")
	}

	if created {
		logger.WithField("email", *email).Info("Admin user created")
		return
	}
	logger.WithField("email", *email).Info("Existing user promoted to admin")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
