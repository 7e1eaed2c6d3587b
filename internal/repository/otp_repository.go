package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/farmlink/farmlink/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// OTPRepository keeps phone login codes in DynamoDB. Items carry a TTL
// attribute, but DynamoDB deletes expired items lazily so readers must still
// check ExpiresAt.
type OTPRepository struct {
	client    DynamoDBAPI
	tableName string
	logger    *logrus.Logger
}

func NewOTPRepository(client DynamoDBAPI, tableName string, logger *logrus.Logger) *OTPRepository {
	return &OTPRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func otpPK(phone string) string {
	return "OTP#" + phone
}

// Save stores OTP data, replacing any previous code for the phone.
func (r *OTPRepository) Save(ctx context.Context, otpData models.OTPData) error {
	item, err := attributevalue.MarshalMap(otpData)
	if err != nil {
		return fmt.Errorf("failed to marshal OTP data: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: otpPK(otpData.Phone)}
	item["SK"] = &types.AttributeValueMemberS{Value: metadataSK}
	item["TTL"] = ttlAttribute(otpData.ExpiresAt)

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in DynamoDB")
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	return nil
}

func (r *OTPRepository) Get(ctx context.Context, phone string) (*models.OTPData, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(otpPK(phone)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	if result.Item == nil {
		return nil, ErrNotFound
	}

	var otpData models.OTPData
	if err := attributevalue.UnmarshalMap(result.Item, &otpData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP data: %w", err)
	}

	return &otpData, nil
}

// IncrementAttempts adds one to the stored attempt counter in a single
// conditional update and returns the new value.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, phone string) (int, error) {
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Add(expression.Name("attempts"), expression.Value(1))).
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return 0, fmt.Errorf("failed to build attempts update: %w", err)
	}

	result, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       itemKey(otpPK(phone)),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to record OTP attempt: %w", err)
	}

	var updated struct {
		Attempts int `dynamodbav:"attempts"`
	}
	if err := attributevalue.UnmarshalMap(result.Attributes, &updated); err != nil {
		return 0, fmt.Errorf("failed to unmarshal OTP attempts: %w", err)
	}

	return updated.Attempts, nil
}

func (r *OTPRepository) Delete(ctx context.Context, phone string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(otpPK(phone)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete OTP: %w", err)
	}

	return nil
}

// RedisOTPRepository keeps phone login codes in Redis with a key TTL equal
// to the remaining lifetime of the code. The attempt counter lives in its
// own key so it can be bumped with INCR.
type RedisOTPRepository struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisOTPRepository(client *redis.Client, logger *logrus.Logger) *RedisOTPRepository {
	return &RedisOTPRepository{
		client: client,
		logger: logger,
	}
}

func otpKey(phone string) string {
	return fmt.Sprintf("otp:%s", phone)
}

func otpAttemptsKey(phone string) string {
	return fmt.Sprintf("otp_attempts:%s", phone)
}

// KEYS[1] is the code, KEYS[2] its counter. Returns -1 when no code is
// pending.
var incrOTPAttempts = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
return redis.call("INCR", KEYS[2])
`)

func (r *RedisOTPRepository) Save(ctx context.Context, otpData models.OTPData) error {
	ttl := time.Until(otpData.ExpiresAt)
	if ttl <= 0 {
		return r.Delete(ctx, otpData.Phone)
	}

	dataJSON, err := json.Marshal(otpData)
	if err != nil {
		return fmt.Errorf("failed to marshal OTP data: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, otpKey(otpData.Phone), dataJSON, ttl)
	pipe.Set(ctx, otpAttemptsKey(otpData.Phone), otpData.Attempts, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.WithError(err).Error("Failed to store OTP in Redis")
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	return nil
}

func (r *RedisOTPRepository) Get(ctx context.Context, phone string) (*models.OTPData, error) {
	pipe := r.client.Pipeline()
	dataCmd := pipe.Get(ctx, otpKey(phone))
	attemptsCmd := pipe.Get(ctx, otpAttemptsKey(phone))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		r.logger.WithError(err).Error("Failed to get OTP from Redis")
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	dataJSON, err := dataCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	var otpData models.OTPData
	if err := json.Unmarshal([]byte(dataJSON), &otpData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP data: %w", err)
	}
	if attempts, err := attemptsCmd.Int(); err == nil {
		otpData.Attempts = attempts
	}

	return &otpData, nil
}

func (r *RedisOTPRepository) IncrementAttempts(ctx context.Context, phone string) (int, error) {
	attempts, err := incrOTPAttempts.Run(ctx, r.client, []string{otpKey(phone), otpAttemptsKey(phone)}).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to record OTP attempt: %w", err)
	}
	if attempts < 0 {
		return 0, ErrNotFound
	}
	return attempts, nil
}

func (r *RedisOTPRepository) Delete(ctx context.Context, phone string) error {
	if err := r.client.Del(ctx, otpKey(phone), otpAttemptsKey(phone)).Err(); err != nil {
		return fmt.Errorf("failed to delete OTP: %w", err)
	}
	return nil
}
