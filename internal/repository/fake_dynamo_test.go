package repository

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// fakeDynamo is an in-memory table keyed by PK. It understands only the
// attribute_exists(PK) / attribute_not_exists(PK) conditions the
// repositories issue, UpdateItem handles only "ADD <name> <number>", and Scan
// returns every item regardless of filter.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func pkOf(item map[string]types.AttributeValue) string {
	if v, ok := item["PK"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) conditionHolds(pk string, condition *string) bool {
	if condition == nil {
		return true
	}
	_, exists := f.items[pk]
	switch {
	case strings.HasPrefix(*condition, "attribute_not_exists"):
		return !exists
	case strings.HasPrefix(*condition, "attribute_exists"):
		return exists
	}
	return true
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[pkOf(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := pkOf(in.Item)
	if !f.conditionHolds(pk, in.ConditionExpression) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	f.items[pk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := pkOf(in.Key)
	if !f.conditionHolds(pk, in.ConditionExpression) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}

	fields := strings.Fields(aws.ToString(in.UpdateExpression))
	if len(fields) != 3 || fields[0] != "ADD" {
		return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "unsupported update expression"}
	}
	name := in.ExpressionAttributeNames[fields[1]]
	delta, _ := strconv.Atoi(in.ExpressionAttributeValues[fields[2]].(*types.AttributeValueMemberN).Value)

	item := map[string]types.AttributeValue{}
	for k, v := range f.items[pk] {
		item[k] = v
	}
	if len(item) == 0 {
		for k, v := range in.Key {
			item[k] = v
		}
	}
	current := 0
	if n, ok := item[name].(*types.AttributeValueMemberN); ok {
		current, _ = strconv.Atoi(n.Value)
	}
	updated := &types.AttributeValueMemberN{Value: strconv.Itoa(current + delta)}
	item[name] = updated
	f.items[pk] = item

	return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{name: updated}}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := pkOf(in.Key)
	if !f.conditionHolds(pk, in.ConditionExpression) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	delete(f.items, pk)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &dynamodb.ScanOutput{}
	for _, item := range f.items {
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range in.TransactItems {
		if w.Put != nil && !f.conditionHolds(pkOf(w.Put.Item), w.Put.ConditionExpression) {
			return nil, &types.TransactionCanceledException{Message: aws.String("transaction cancelled")}
		}
	}
	for _, w := range in.TransactItems {
		if w.Put != nil {
			f.items[pkOf(w.Put.Item)] = w.Put.Item
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}
