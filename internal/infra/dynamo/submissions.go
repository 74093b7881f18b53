package dynamo

import (
	"context"
	"errors"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"dbkompare-functions/internal/domain"
)

// RecordSubmission writes the submission, and for a pass the certificate and the
// owner's credit increment, in one transaction.
func (s *Store) RecordSubmission(ctx context.Context, submission domain.Submission, cert *domain.Certificate) error {
	subPut, err := s.newItemPut(s.tables.Submissions, submission)
	if err != nil {
		return err
	}
	items := []types.TransactWriteItem{{Put: subPut}}

	if cert != nil {
		certPut, err := s.newItemPut(s.tables.Certificates, *cert)
		if err != nil {
			return err
		}
		credit, err := s.incrementCertificateCredits(cert.UserID)
		if err != nil {
			return err
		}
		items = append(items, types.TransactWriteItem{Put: certPut}, types.TransactWriteItem{Update: credit})
	}

	_, err = s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	return conditionError(err)
}

// newItemPut is a transactional put guarded by attribute_not_exists(id).
func (s *Store) newItemPut(table string, v any) (*types.Put, error) {
	item, err := marshalItem(v)
	if err != nil {
		return nil, err
	}
	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("id"))).
		Build()
	if err != nil {
		return nil, err
	}
	return &types.Put{
		TableName:                 aws.String(table),
		Item:                      item,
		ConditionExpression:       cond.Condition(),
		ExpressionAttributeNames:  cond.Names(),
		ExpressionAttributeValues: cond.Values(),
	}, nil
}

func (s *Store) GetSubmission(ctx context.Context, submissionID string) (domain.Submission, error) {
	var sub domain.Submission
	ok, err := s.getItem(ctx, s.tables.Submissions, idKey(submissionID), &sub)
	if err != nil {
		return domain.Submission{}, err
	}
	if !ok {
		return domain.Submission{}, domain.NotFound("Submission not found")
	}
	return sub, nil
}

func (s *Store) ListSubmissionsByUser(ctx context.Context, userID string) ([]domain.Submission, error) {
	items, err := s.queryByUser(ctx, s.tables.Submissions, userID)
	if err != nil {
		return nil, err
	}
	subs, err := unmarshalItems[domain.Submission](items)
	if err != nil {
		return nil, err
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt < subs[j].CreatedAt })
	return subs, nil
}

func (s *Store) CreateCertificate(ctx context.Context, cert domain.Certificate) error {
	return s.putNew(ctx, s.tables.Certificates, cert)
}

func (s *Store) GetCertificate(ctx context.Context, certificateID string) (domain.Certificate, error) {
	var c domain.Certificate
	ok, err := s.getItem(ctx, s.tables.Certificates, idKey(certificateID), &c)
	if err != nil {
		return domain.Certificate{}, err
	}
	if !ok {
		return domain.Certificate{}, domain.NotFound("Certificate not found")
	}
	return c, nil
}

func (s *Store) ListCertificatesByUser(ctx context.Context, userID string) ([]domain.Certificate, error) {
	items, err := s.queryByUser(ctx, s.tables.Certificates, userID)
	if err != nil {
		return nil, err
	}
	certs, err := unmarshalItems[domain.Certificate](items)
	if err != nil {
		return nil, err
	}
	sort.Slice(certs, func(i, j int) bool { return certs[i].IssueDate < certs[j].IssueDate })
	return certs, nil
}

// UpdateCertificate sets each patched attribute on an existing certificate.
func (s *Store) UpdateCertificate(ctx context.Context, certificateID string, patch domain.Patch) (domain.Certificate, error) {
	fields := patch.Fields()
	if len(fields) == 0 {
		return domain.Certificate{}, domain.Validation("No update data provided")
	}
	upd := expression.Set(expression.Name(fields[0]), expression.Value(patch[fields[0]]))
	for _, f := range fields[1:] {
		upd = upd.Set(expression.Name(f), expression.Value(patch[f]))
	}

	var c domain.Certificate
	err := s.update(ctx, s.tables.Certificates, idKey(certificateID), upd, expression.AttributeExists(expression.Name("id")), &c)
	if errors.Is(err, domain.ErrConditionFailed) {
		return domain.Certificate{}, domain.NotFound("Certificate not found")
	}
	return c, err
}
