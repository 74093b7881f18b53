// Package cognito manages user pool groups and attributes.
package cognito

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

type API interface {
	AdminAddUserToGroup(ctx context.Context, in *cip.AdminAddUserToGroupInput, optFns ...func(*cip.Options)) (*cip.AdminAddUserToGroupOutput, error)
	AdminUpdateUserAttributes(ctx context.Context, in *cip.AdminUpdateUserAttributesInput, optFns ...func(*cip.Options)) (*cip.AdminUpdateUserAttributesOutput, error)
}

type Identity struct {
	api        API
	userPoolID string
}

func New(api API, userPoolID string) *Identity {
	return &Identity{api: api, userPoolID: userPoolID}
}

func (i *Identity) AssignGroup(ctx context.Context, username, group string) error {
	_, err := i.api.AdminAddUserToGroup(ctx, &cip.AdminAddUserToGroupInput{
		UserPoolId: aws.String(i.userPoolID),
		Username:   aws.String(username),
		GroupName:  aws.String(group),
	})
	if err != nil {
		return fmt.Errorf("add %s to %s: %w", username, group, err)
	}
	return nil
}

func (i *Identity) UpdateAttributes(ctx context.Context, username string, attrs map[string]string) error {
	names := make([]string, 0, len(attrs))
	for k := range attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	list := make([]types.AttributeType, 0, len(names))
	for _, k := range names {
		list = append(list, types.AttributeType{Name: aws.String(k), Value: aws.String(attrs[k])})
	}
	_, err := i.api.AdminUpdateUserAttributes(ctx, &cip.AdminUpdateUserAttributesInput{
		UserPoolId:     aws.String(i.userPoolID),
		Username:       aws.String(username),
		UserAttributes: list,
	})
	if err != nil {
		return fmt.Errorf("update attributes of %s: %w", username, err)
	}
	return nil
}
