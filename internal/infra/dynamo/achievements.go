package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"dbkompare-functions/internal/domain"
)

// AppendEvent adds to the immutable per-user event log.
func (s *Store) AppendEvent(ctx context.Context, event domain.AchievementEvent) error {
	item, err := marshalItem(event)
	if err != nil {
		return err
	}
	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("sortKey"))).
		Build()
	if err != nil {
		return err
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tables.UserAchievements),
		Item:                      item,
		ConditionExpression:       cond.Condition(),
		ExpressionAttributeNames:  cond.Names(),
		ExpressionAttributeValues: cond.Values(),
	})
	return conditionError(err)
}

func (s *Store) GetCounter(ctx context.Context, userID, sortKey string) (domain.AchievementCounter, bool, error) {
	c := domain.AchievementCounter{UserID: userID, SortKey: sortKey}
	ok, err := s.getItem(ctx, s.tables.UserAchievements, achievementKey(userID, sortKey), &c)
	if err != nil {
		return domain.AchievementCounter{}, false, err
	}
	return c, ok, nil
}

func (s *Store) SetCounter(ctx context.Context, counter domain.AchievementCounter) error {
	return s.put(ctx, s.tables.UserAchievements, counter)
}

// AddToCounter uses ADD so concurrent events never lose an increment.
func (s *Store) AddToCounter(ctx context.Context, userID, sortKey string, delta int, ts string) (int, error) {
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Add(expression.Name("value"), expression.Value(delta)).
			Set(expression.Name("lastUpdate"), expression.Value(ts))).
		Build()
	if err != nil {
		return 0, err
	}
	res, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tables.UserAchievements),
		Key:                       achievementKey(userID, sortKey),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, err
	}
	var updated struct {
		Value int `json:"value"`
	}
	if err := unmarshalItem(res.Attributes, &updated); err != nil {
		return 0, fmt.Errorf("decode counter %s: %w", sortKey, err)
	}
	return updated.Value, nil
}

func (s *Store) PutNotification(ctx context.Context, marker domain.NotificationMarker) error {
	return s.put(ctx, s.tables.UserAchievements, marker)
}

func (s *Store) ListCounters(ctx context.Context, sortKey string) ([]domain.AchievementCounter, error) {
	filter := expression.Name("sortKey").Equal(expression.Value(sortKey))
	items, err := s.scan(ctx, s.tables.UserAchievements, &filter)
	if err != nil {
		return nil, err
	}
	return unmarshalItems[domain.AchievementCounter](items)
}

func (s *Store) put(ctx context.Context, table string, v any) error {
	item, err := marshalItem(v)
	if err != nil {
		return err
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	return err
}
