package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"dbkompare-functions/internal/domain"
)

func (s *Store) GetPlan(ctx context.Context, planID string) (domain.CertificationPlan, error) {
	var p domain.CertificationPlan
	ok, err := s.getItem(ctx, s.tables.CertificationPlans, idKey(planID), &p)
	if err != nil {
		return domain.CertificationPlan{}, err
	}
	if !ok {
		return domain.CertificationPlan{}, domain.NotFound("Certification plan not found")
	}
	return p, nil
}

func (s *Store) ListPlans(ctx context.Context, status string) ([]domain.CertificationPlan, error) {
	var filter *expression.ConditionBuilder
	if status != "" {
		f := expression.Name("status").Equal(expression.Value(status))
		filter = &f
	}
	items, err := s.scan(ctx, s.tables.CertificationPlans, filter)
	if err != nil {
		return nil, err
	}
	return unmarshalItems[domain.CertificationPlan](items)
}

func (s *Store) PutPlans(ctx context.Context, plans []domain.CertificationPlan) error {
	items := make([]map[string]types.AttributeValue, 0, len(plans))
	for _, p := range plans {
		item, err := marshalItem(p)
		if err != nil {
			return err
		}
		items = append(items, item)
	}
	return s.batchWrite(ctx, s.tables.CertificationPlans, items)
}

func (s *Store) UpdatePlanStatus(ctx context.Context, planID, status string, now int64) (domain.CertificationPlan, error) {
	upd := expression.Set(expression.Name("status"), expression.Value(status)).
		Set(expression.Name("updatedAt"), expression.Value(now))

	var p domain.CertificationPlan
	err := s.update(ctx, s.tables.CertificationPlans, idKey(planID), upd, expression.AttributeExists(expression.Name("id")), &p)
	if errors.Is(err, domain.ErrConditionFailed) {
		return domain.CertificationPlan{}, domain.NotFound("Certification plan not found")
	}
	return p, err
}
