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

type RefreshTokenRepository struct {
	client    DynamoDBAPI
	tableName string
	logger    *logrus.Logger
}

func NewRefreshTokenRepository(client DynamoDBAPI, tableName string, logger *logrus.Logger) *RefreshTokenRepository {
	return &RefreshTokenRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func refreshTokenPK(jti string) string {
	return "REFRESH_TOKEN#" + jti
}

func revokedTokenPK(jti string) string {
	return "REVOKED_TOKEN#" + jti
}

// Store stores refresh token in DynamoDB with TTL
func (r *RefreshTokenRepository) Store(ctx context.Context, tokenData models.RefreshTokenData) error {
	item, err := attributevalue.MarshalMap(tokenData)
	if err != nil {
		return fmt.Errorf("failed to marshal token data: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: refreshTokenPK(tokenData.JTI)}
	item["SK"] = &types.AttributeValueMemberS{Value: metadataSK}
	item["TTL"] = ttlAttribute(tokenData.ExpiresAt)

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to store refresh token in DynamoDB")
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	return nil
}

func (r *RefreshTokenRepository) Get(ctx context.Context, jti string) (*models.RefreshTokenData, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(refreshTokenPK(jti)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	if result.Item == nil {
		return nil, ErrNotFound
	}

	var tokenData models.RefreshTokenData
	if err := attributevalue.UnmarshalMap(result.Item, &tokenData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token data: %w", err)
	}

	return &tokenData, nil
}

func revokedMarker(jti string, expiresAt time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: revokedTokenPK(jti)},
		"SK":        &types.AttributeValueMemberS{Value: metadataSK},
		"RevokedAt": &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339)},
		"TTL":       ttlAttribute(expiresAt),
	}
}

// Revoke flags the token and writes a revocation marker. Both expire with
// the token.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, jti string) error {
	tokenData, err := r.Get(ctx, jti)
	if err != nil {
		return err
	}

	tokenData.Revoked = true
	if err := r.Store(ctx, *tokenData); err != nil {
		return err
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      revokedMarker(jti, tokenData.ExpiresAt),
	})
	if err != nil {
		return fmt.Errorf("failed to mark token as revoked: %w", err)
	}

	return nil
}

// RevokeOnce writes the revocation marker only if it is absent. It reports
// false when the token was already revoked.
func (r *RefreshTokenRepository) RevokeOnce(ctx context.Context, jti string) (bool, error) {
	tokenData, err := r.Get(ctx, jti)
	if err != nil {
		return false, err
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                revokedMarker(jti, tokenData.ExpiresAt),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to mark token as revoked: %w", err)
	}

	tokenData.Revoked = true
	if err := r.Store(ctx, *tokenData); err != nil {
		return true, err
	}

	return true, nil
}

// RevokeFamily revokes every stored token sharing familyID.
func (r *RefreshTokenRepository) RevokeFamily(ctx context.Context, familyID string) error {
	tokens, err := r.getByFamilyID(ctx, familyID)
	if err != nil {
		return err
	}

	for _, token := range tokens {
		if token.Revoked {
			continue
		}
		if err := r.Revoke(ctx, token.JTI); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	return nil
}

func (r *RefreshTokenRepository) getByFamilyID(ctx context.Context, familyID string) ([]models.RefreshTokenData, error) {
	filter := expression.Name("PK").BeginsWith("REFRESH_TOKEN#").
		And(expression.Name("family_id").Equal(expression.Value(familyID)))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build family filter: %w", err)
	}

	var tokens []models.RefreshTokenData
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query tokens by family ID: %w", err)
		}

		var batch []models.RefreshTokenData
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tokens: %w", err)
		}
		tokens = append(tokens, batch...)
	}

	return tokens, nil
}

// RedisRefreshTokenRepository keeps refresh tokens in Redis. A per-family set
// lets a whole rotation chain be revoked without scanning the keyspace.
type RedisRefreshTokenRepository struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisRefreshTokenRepository(client *redis.Client, logger *logrus.Logger) *RedisRefreshTokenRepository {
	return &RedisRefreshTokenRepository{
		client: client,
		logger: logger,
	}
}

func refreshTokenKey(jti string) string {
	return fmt.Sprintf("refresh_token:%s", jti)
}

func revokedTokenKey(jti string) string {
	return fmt.Sprintf("revoked_token:%s", jti)
}

func refreshFamilyKey(familyID string) string {
	return fmt.Sprintf("refresh_family:%s", familyID)
}

func (r *RedisRefreshTokenRepository) Store(ctx context.Context, tokenData models.RefreshTokenData) error {
	dataJSON, err := json.Marshal(tokenData)
	if err != nil {
		return fmt.Errorf("failed to marshal token data: %w", err)
	}

	ttl := time.Until(tokenData.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("refresh token %s already expired", tokenData.JTI)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, refreshTokenKey(tokenData.JTI), dataJSON, ttl)
	familyKey := refreshFamilyKey(tokenData.FamilyID)
	pipe.SAdd(ctx, familyKey, tokenData.JTI)
	pipe.Expire(ctx, familyKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.WithError(err).Error("Failed to store refresh token")
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	return nil
}

func (r *RedisRefreshTokenRepository) Get(ctx context.Context, jti string) (*models.RefreshTokenData, error) {
	dataJSON, err := r.client.Get(ctx, refreshTokenKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	var tokenData models.RefreshTokenData
	if err := json.Unmarshal([]byte(dataJSON), &tokenData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token data: %w", err)
	}

	return &tokenData, nil
}

func (r *RedisRefreshTokenRepository) Revoke(ctx context.Context, jti string) error {
	tokenData, err := r.Get(ctx, jti)
	if err != nil {
		return err
	}

	tokenData.Revoked = true
	dataJSON, err := json.Marshal(tokenData)
	if err != nil {
		return fmt.Errorf("failed to marshal token data: %w", err)
	}

	ttl := time.Until(tokenData.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, refreshTokenKey(jti), dataJSON, ttl)
	pipe.Set(ctx, revokedTokenKey(jti), "1", ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	return nil
}

// RevokeOnce claims the revocation marker with SETNX. It reports false when
// the token was already revoked.
func (r *RedisRefreshTokenRepository) RevokeOnce(ctx context.Context, jti string) (bool, error) {
	tokenData, err := r.Get(ctx, jti)
	if err != nil {
		return false, err
	}

	ttl := time.Until(tokenData.ExpiresAt)
	if ttl <= 0 {
		return false, ErrNotFound
	}

	claimed, err := r.client.SetNX(ctx, revokedTokenKey(jti), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if !claimed {
		return false, nil
	}

	tokenData.Revoked = true
	dataJSON, err := json.Marshal(tokenData)
	if err != nil {
		return true, fmt.Errorf("failed to marshal token data: %w", err)
	}
	if err := r.client.Set(ctx, refreshTokenKey(jti), dataJSON, ttl).Err(); err != nil {
		return true, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	return true, nil
}

func (r *RedisRefreshTokenRepository) RevokeFamily(ctx context.Context, familyID string) error {
	jtis, err := r.client.SMembers(ctx, refreshFamilyKey(familyID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list token family: %w", err)
	}

	for _, jti := range jtis {
		if err := r.Revoke(ctx, jti); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	return nil
}
