package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/farmlink/farmlink/internal/models"
	"github.com/sirupsen/logrus"
)

type ProductRepository struct {
	client    DynamoDBAPI
	tableName string
	logger    *logrus.Logger
}

func NewProductRepository(client DynamoDBAPI, tableName string, logger *logrus.Logger) *ProductRepository {
	return &ProductRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	now := time.Now()
	product.CreatedAt = now
	product.UpdatedAt = now

	return r.put(ctx, product, "attribute_not_exists(PK)", ErrAlreadyExists)
}

func (r *ProductRepository) Update(ctx context.Context, product *models.Product) error {
	product.UpdatedAt = time.Now()

	return r.put(ctx, product, "attribute_exists(PK)", ErrNotFound)
}

func (r *ProductRepository) put(ctx context.Context, product *models.Product, condition string, conditionErr error) error {
	item, err := attributevalue.MarshalMap(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: product.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: product.GetSK()}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String(condition),
	})
	if err != nil {
		if isConditionFailed(err) {
			return conditionErr
		}
		r.logger.WithError(err).WithField("product_id", product.ID).Error("Failed to write product to DynamoDB")
		return fmt.Errorf("failed to write product: %w", err)
	}

	return nil
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*models.Product, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey((&models.Product{ID: id}).GetPK()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var product models.Product
	if err := attributevalue.UnmarshalMap(result.Item, &product); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product: %w", err)
	}

	return &product, nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 itemKey((&models.Product{ID: id}).GetPK()),
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete product: %w", err)
	}

	return nil
}

// List scans all products matching filter, newest first.
func (r *ProductRepository) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	cond := expression.Name("PK").BeginsWith("PRODUCT#")
	if filter.Category != "" {
		cond = cond.And(expression.Name("category").Equal(expression.Value(filter.Category)))
	}
	if filter.FarmerID != "" {
		cond = cond.And(expression.Name("farmer_id").Equal(expression.Value(filter.FarmerID)))
	}

	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build product filter: %w", err)
	}

	products := []models.Product{}
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			r.logger.WithError(err).Error("Failed to scan products")
			return nil, fmt.Errorf("failed to list products: %w", err)
		}

		var batch []models.Product
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal products: %w", err)
		}
		products = append(products, batch...)
	}

	sort.Slice(products, func(i, j int) bool {
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})

	return products, nil
}
