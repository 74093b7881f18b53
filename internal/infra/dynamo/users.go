package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"dbkompare-functions/internal/app"
	"dbkompare-functions/internal/domain"
)

var userExists = expression.AttributeExists(expression.Name("id"))

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var u domain.User
	ok, err := s.getItem(ctx, s.tables.Users, idKey(userID), &u)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, domain.NotFound("User not found")
	}
	return u, nil
}

func (s *Store) BatchGetUsers(ctx context.Context, userIDs []string) (map[string]domain.User, error) {
	seen := make(map[string]struct{}, len(userIDs))
	keys := make([]map[string]types.AttributeValue, 0, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, idKey(id))
	}
	items, err := s.batchGet(ctx, s.tables.Users, keys)
	if err != nil {
		return nil, err
	}
	users, err := unmarshalItems[domain.User](items)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	if user.UnlockedQuizIDs == nil {
		user.UnlockedQuizIDs = []string{}
	}
	return s.putNew(ctx, s.tables.Users, user)
}

func (s *Store) SetFreeQuizCredits(ctx context.Context, userID string, expected *int, balance int, unlockQuizID string, now int64) (domain.User, error) {
	upd := expression.Set(expression.Name("freeQuizCredits"), expression.Value(balance)).
		Set(expression.Name("updatedAt"), expression.Value(now))
	if unlockQuizID != "" {
		upd = upd.Set(expression.Name("unlockedQuizIds"), appendToList("unlockedQuizIds", unlockQuizID))
	}

	balanceCond := expression.AttributeNotExists(expression.Name("freeQuizCredits"))
	if expected != nil {
		balanceCond = expression.Name("freeQuizCredits").Equal(expression.Value(*expected))
	}

	var u domain.User
	err := s.update(ctx, s.tables.Users, idKey(userID), upd, userExists.And(balanceCond), &u)
	return u, err
}

func (s *Store) ClaimFreePlan(ctx context.Context, userID string, credits int, now int64) (domain.User, error) {
	upd := expression.Set(expression.Name("freeQuizCredits"), addTo("freeQuizCredits", domain.DefaultFreeQuizCredits, credits)).
		Set(expression.Name("hasClaimedFreePlan"), expression.Value(true)).
		Set(expression.Name("updatedAt"), expression.Value(now))
	notClaimed := expression.Or(
		expression.AttributeNotExists(expression.Name("hasClaimedFreePlan")),
		expression.Name("hasClaimedFreePlan").Equal(expression.Value(false)),
	)

	var u domain.User
	err := s.update(ctx, s.tables.Users, idKey(userID), upd, userExists.And(notClaimed), &u)
	return u, err
}

func (s *Store) SetStripeCustomerID(ctx context.Context, userID, customerID string, now int64) error {
	upd := expression.Set(expression.Name("stripeCustomerId"), expression.Value(customerID)).
		Set(expression.Name("updatedAt"), expression.Value(now))
	err := s.update(ctx, s.tables.Users, idKey(userID), upd, userExists, nil)
	if errors.Is(err, domain.ErrConditionFailed) {
		return domain.NotFound("User not found")
	}
	return err
}

// GrantCredits records grant.TransactionID in transactionIds in the same write that
// adds the credits; a repeated id fails the condition.
func (s *Store) GrantCredits(ctx context.Context, grant app.CreditGrant) (domain.User, error) {
	upd := expression.Set(expression.Name("certificateCredits"), addTo("certificateCredits", 0, grant.CertificateCredits)).
		Set(expression.Name("updatedAt"), expression.Value(grant.Now))
	if grant.FreeQuizCredits != 0 {
		upd = upd.Set(expression.Name("freeQuizCredits"), addTo("freeQuizCredits", domain.DefaultFreeQuizCredits, grant.FreeQuizCredits))
	}
	cond := userExists
	if grant.TransactionID != "" {
		upd = upd.Set(expression.Name("transactionIds"), appendToList("transactionIds", grant.TransactionID))
		cond = cond.And(expression.Not(expression.Contains(expression.Name("transactionIds"), grant.TransactionID)))
	}

	var u domain.User
	err := s.update(ctx, s.tables.Users, idKey(grant.UserID), upd, cond, &u)
	return u, err
}

// addTo builds name = if_not_exists(name, fallback) + delta.
func addTo(name string, fallback, delta int) expression.SetValueBuilder {
	return expression.Plus(
		expression.IfNotExists(expression.Name(name), expression.Value(fallback)),
		expression.Value(delta),
	)
}

// appendToList builds name = list_append(if_not_exists(name, []), [value]).
func appendToList(name, value string) expression.SetValueBuilder {
	return expression.ListAppend(
		expression.IfNotExists(expression.Name(name), expression.Value([]string{})),
		expression.Value([]string{value}),
	)
}

// incrementCertificateCredits is the user half of the submission transaction.
func (s *Store) incrementCertificateCredits(userID string) (*types.Update, error) {
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Set(expression.Name("certificateCredits"), addTo("certificateCredits", 0, 1))).
		WithCondition(userExists).
		Build()
	if err != nil {
		return nil, err
	}
	return &types.Update{
		TableName:                 aws.String(s.tables.Users),
		Key:                       idKey(userID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}
