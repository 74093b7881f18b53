// Package http serves the API Gateway functions from a local fiber app.
package http

import (
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"dbkompare-functions/internal/transport/apigw"
)

// NewApp mounts every route on a fiber app, translating requests into proxy events.
func NewApp(routes []apigw.Route, accessLog bool) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(cors.New())
	if accessLog {
		app.Use(logger.New())
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	for _, r := range routes {
		app.Add(r.Method, r.Path, proxy(r))
	}
	return app
}

func proxy(route apigw.Route) fiber.Handler {
	return func(c *fiber.Ctx) error {
		resp, err := route.Handler(c.UserContext(), toProxyRequest(c, route))
		if err != nil {
			return err
		}
		for k, v := range resp.Headers {
			c.Set(k, v)
		}
		return c.Status(resp.StatusCode).SendString(resp.Body)
	}
}

// toProxyRequest copies everything out of fiber's pooled buffers.
func toProxyRequest(c *fiber.Ctx, route apigw.Route) events.APIGatewayProxyRequest {
	headers := map[string]string{}
	c.Request().Header.VisitAll(func(k, v []byte) {
		headers[string(k)] = string(v)
	})
	query := map[string]string{}
	for k, v := range c.Queries() {
		query[strings.Clone(k)] = strings.Clone(v)
	}
	params := map[string]string{}
	for k, v := range c.AllParams() {
		params[strings.Clone(k)] = strings.Clone(v)
	}
	return events.APIGatewayProxyRequest{
		Resource:              route.Path,
		Path:                  strings.Clone(c.Path()),
		HTTPMethod:            route.Method,
		Headers:               headers,
		QueryStringParameters: query,
		PathParameters:        params,
		Body:                  string(c.Body()),
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID: uuid.NewString(),
			Stage:     "local",
		},
	}
}
