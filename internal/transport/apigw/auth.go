package apigw

import (
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"

	"dbkompare-functions/internal/domain"
)

const groupsClaim = "cognito:groups"

// requireGroup checks the first group claim of the bearer token against allowed.
// The token signature is verified by the API Gateway authorizer before the
// function runs, so only the claims are decoded here.
func requireGroup(req events.APIGatewayProxyRequest, allowed ...string) error {
	token := strings.TrimSpace(header(req, "Authorization"))
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return domain.Unauthorized("Unauthorized")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return domain.Unauthorized("Unauthorized")
	}
	groups, _ := claims[groupsClaim].([]any)
	if len(groups) == 0 {
		return domain.Unauthorized("Unauthorized")
	}
	role, _ := groups[0].(string)
	for _, g := range allowed {
		if role == g {
			return nil
		}
	}
	return domain.Unauthorized("Unauthorized")
}

func header(req events.APIGatewayProxyRequest, name string) string {
	if v, ok := req.Headers[name]; ok {
		return v
	}
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
