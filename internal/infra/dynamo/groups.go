package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"

	"dbkompare-functions/internal/domain"
)

func (s *Store) GetGroup(ctx context.Context, groupID string) (domain.Group, error) {
	var g domain.Group
	ok, err := s.getItem(ctx, s.tables.Groups, idKey(groupID), &g)
	if err != nil {
		return domain.Group{}, err
	}
	if !ok {
		return domain.Group{}, domain.NotFound("Group not found")
	}
	return g, nil
}

func (s *Store) AddCertificateTaker(ctx context.Context, groupID, userID string) error {
	upd := expression.Set(expression.Name("certificateTakenBy"), appendToList("certificateTakenBy", userID))
	err := s.update(ctx, s.tables.Groups, idKey(groupID), upd, expression.AttributeExists(expression.Name("id")), nil)
	if errors.Is(err, domain.ErrConditionFailed) {
		return domain.NotFound("Group not found")
	}
	return err
}
