// Package dynamo implements the repositories on DynamoDB tables.
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"dbkompare-functions/internal/app"
	"dbkompare-functions/internal/domain"
)

// API is the subset of the DynamoDB client the repositories use.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Tables names the table behind each record kind.
type Tables struct {
	Users              string
	Quizzes            string
	Submissions        string
	Certificates       string
	Groups             string
	CertificationPlans string
	UserAchievements   string
}

// byUserIndex is the userId-keyed GSI on submissions and certificates.
const byUserIndex = "byUser"

const (
	batchGetLimit   = 100
	batchWriteLimit = 25
	// unprocessed items are retried this many times before giving up
	batchRetries = 5
)

// Store implements every app repository on DynamoDB.
type Store struct {
	api    API
	tables Tables
	log    logrus.FieldLogger
}

func NewStore(api API, tables Tables, log logrus.FieldLogger) *Store {
	return &Store{api: api, tables: tables, log: log}
}

var (
	_ app.QuizRepository        = (*Store)(nil)
	_ app.UserRepository        = (*Store)(nil)
	_ app.SubmissionRepository  = (*Store)(nil)
	_ app.CertificateRepository = (*Store)(nil)
	_ app.GroupRepository       = (*Store)(nil)
	_ app.PlanRepository        = (*Store)(nil)
	_ app.AchievementRepository = (*Store)(nil)
	_ app.QuizSource            = (*Store)(nil)
)

// Records use their json tags as attribute names so API payloads and items agree.
func marshalItem(v any) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMapWithOptions(v, func(o *attributevalue.EncoderOptions) {
		o.TagKey = "json"
	})
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}
	return item, nil
}

func unmarshalItem(item map[string]types.AttributeValue, out any) error {
	err := attributevalue.UnmarshalMapWithOptions(item, out, func(o *attributevalue.DecoderOptions) {
		o.TagKey = "json"
	})
	if err != nil {
		return fmt.Errorf("unmarshal item: %w", err)
	}
	return nil
}

func unmarshalItems[T any](items []map[string]types.AttributeValue) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := unmarshalItem(item, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func achievementKey(userID, sortKey string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"userId":  &types.AttributeValueMemberS{Value: userID},
		"sortKey": &types.AttributeValueMemberS{Value: sortKey},
	}
}

// conditionError maps a rejected condition, alone or inside a transaction, to
// domain.ErrConditionFailed.
func conditionError(err error) error {
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return domain.ErrConditionFailed
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if aws.ToString(r.Code) == "ConditionalCheckFailed" {
				return domain.ErrConditionFailed
			}
		}
	}
	return err
}

// getItem loads one record into out and reports whether it existed.
func (s *Store) getItem(ctx context.Context, table string, key map[string]types.AttributeValue, out any) (bool, error) {
	res, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       key,
	})
	if err != nil {
		return false, err
	}
	if len(res.Item) == 0 {
		return false, nil
	}
	return true, unmarshalItem(res.Item, out)
}

// putNew writes item only if no record has the same id.
func (s *Store) putNew(ctx context.Context, table string, v any) error {
	item, err := marshalItem(v)
	if err != nil {
		return err
	}
	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("id"))).
		Build()
	if err != nil {
		return err
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(table),
		Item:                      item,
		ConditionExpression:       cond.Condition(),
		ExpressionAttributeNames:  cond.Names(),
		ExpressionAttributeValues: cond.Values(),
	})
	return conditionError(err)
}

// update applies an update guarded by cond and decodes the new item into out.
func (s *Store) update(ctx context.Context, table string, key map[string]types.AttributeValue, upd expression.UpdateBuilder, cond expression.ConditionBuilder, out any) error {
	expr, err := expression.NewBuilder().WithUpdate(upd).WithCondition(cond).Build()
	if err != nil {
		return err
	}
	res, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return conditionError(err)
	}
	if out == nil {
		return nil
	}
	return unmarshalItem(res.Attributes, out)
}

// queryByUser reads every item of table's byUser index for userID.
func (s *Store) queryByUser(ctx context.Context, table, userID string) ([]map[string]types.AttributeValue, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("userId").Equal(expression.Value(userID))).
		Build()
	if err != nil {
		return nil, err
	}
	p := dynamodb.NewQueryPaginator(s.api, &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		IndexName:                 aws.String(byUserIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var items []map[string]types.AttributeValue
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// scan reads a whole table, optionally filtered.
func (s *Store) scan(ctx context.Context, table string, filter *expression.ConditionBuilder) ([]map[string]types.AttributeValue, error) {
	in := &dynamodb.ScanInput{TableName: aws.String(table)}
	if filter != nil {
		expr, err := expression.NewBuilder().WithFilter(*filter).Build()
		if err != nil {
			return nil, err
		}
		in.FilterExpression = expr.Filter()
		in.ExpressionAttributeNames = expr.Names()
		in.ExpressionAttributeValues = expr.Values()
	}
	p := dynamodb.NewScanPaginator(s.api, in)
	var items []map[string]types.AttributeValue
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// batchWrite puts items in chunks of 25, retrying unprocessed entries.
func (s *Store) batchWrite(ctx context.Context, table string, items []map[string]types.AttributeValue) error {
	for start := 0; start < len(items); start += batchWriteLimit {
		end := min(start+batchWriteLimit, len(items))
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, item := range items[start:end] {
			reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}
		pending := map[string][]types.WriteRequest{table: reqs}
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt == batchRetries {
				return fmt.Errorf("batch write to %s: %d items left unprocessed", table, len(pending[table]))
			}
			if attempt > 0 {
				s.log.WithFields(logrus.Fields{"table": table, "attempt": attempt}).Debug("retrying unprocessed writes")
			}
			res, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return err
			}
			pending = res.UnprocessedItems
		}
	}
	return nil
}

// batchGet reads keys in chunks of 100, retrying unprocessed keys.
func (s *Store) batchGet(ctx context.Context, table string, keys []map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for start := 0; start < len(keys); start += batchGetLimit {
		end := min(start+batchGetLimit, len(keys))
		pending := map[string]types.KeysAndAttributes{table: {Keys: keys[start:end]}}
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt == batchRetries {
				return nil, fmt.Errorf("batch get from %s: keys left unprocessed", table)
			}
			if attempt > 0 {
				s.log.WithFields(logrus.Fields{"table": table, "attempt": attempt}).Debug("retrying unprocessed keys")
			}
			res, err := s.api.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: pending})
			if err != nil {
				return nil, err
			}
			items = append(items, res.Responses[table]...)
			pending = res.UnprocessedKeys
		}
	}
	return items, nil
}
