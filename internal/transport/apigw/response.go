// Package apigw adapts the app services to API Gateway proxy events.
package apigw

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"dbkompare-functions/internal/domain"
)

type envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

var corsHeaders = map[string]string{
	"Content-Type":                 "application/json",
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "*",
	"Access-Control-Allow-Methods": "*",
}

// respond builds the {message, data} envelope every function returns.
func respond(status int, message string, data any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(envelope{Message: message, Data: data})
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(envelope{Message: "Failed to encode response"})
	}
	headers := make(map[string]string, len(corsHeaders))
	for k, v := range corsHeaders {
		headers[k] = v
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(body),
	}
}

// statusFor picks the status code for an error returned by a service.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConditionFailed):
		return http.StatusConflict
	case strings.Contains(strings.ToLower(err.Error()), "not found"):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func errorResponse(err error) events.APIGatewayProxyResponse {
	var data any
	var de *domain.Error
	if errors.As(err, &de) {
		data = de.Data
	}
	return respond(statusFor(err), err.Error(), data)
}
