package apigw

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"

	"dbkompare-functions/internal/app"
	"dbkompare-functions/internal/domain"
)

// HandlerFunc is the signature every proxy-integrated function has.
type HandlerFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// Services bundles the use cases exposed as functions.
type Services struct {
	Submissions  *app.SubmissionService
	Certificates *app.CertificateService
	Credits      *app.CreditService
	Achievements *app.AchievementService
	Leaderboard  *app.LeaderboardService
	Plans        *app.PlanService
	Users        *app.UserService
	Enrichment   *app.EnrichmentService
}

// Route binds a function name to the local HTTP method and path that serve it.
type Route struct {
	Function string
	Method   string
	Path     string
	Handler  HandlerFunc
}

type Handlers struct {
	svc Services
	log logrus.FieldLogger
}

func NewHandlers(svc Services, log logrus.FieldLogger) *Handlers {
	return &Handlers{svc: svc, log: log}
}

// action returns the success message and payload, or an error to be translated.
type action func(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error)

// wrap turns an action into a HandlerFunc. Errors never escape: they become envelopes.
func (h *Handlers) wrap(function string, fn action) HandlerFunc {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		start := time.Now()
		log := h.log.WithFields(logrus.Fields{"function": function, "requestId": req.RequestContext.RequestID})
		message, data, err := run(ctx, req, fn)
		if err != nil {
			resp := errorResponse(err)
			entry := log.WithError(err).WithField("status", resp.StatusCode)
			if resp.StatusCode >= http.StatusInternalServerError {
				entry.Error("request failed")
			} else {
				entry.Info("request rejected")
			}
			return resp, nil
		}
		log.WithField("duration", time.Since(start)).Debug("request handled")
		return respond(http.StatusOK, message, data), nil
	}
}

// run calls fn and reports a panic as an upstream failure.
func run(ctx context.Context, req events.APIGatewayProxyRequest, fn action) (message string, data any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = domain.Upstream(fmt.Errorf("panic: %v", rec), "Internal server error")
		}
	}()
	return fn(ctx, req)
}

// Routes lists every function in a stable order.
func (h *Handlers) Routes() []Route {
	routes := []Route{
		{"createQuizSubmission", http.MethodPost, "/quizzes-submissions", h.wrap("createQuizSubmission", h.createQuizSubmission)},
		{"getSingleQuizSubmission", http.MethodGet, "/quizzes-submissions/:id", h.wrap("getSingleQuizSubmission", h.getSingleQuizSubmission)},
		{"getGroupCertificate", http.MethodGet, "/group-certificate", h.wrap("getGroupCertificate", h.getGroupCertificate)},
		{"getSingleCertificate", http.MethodGet, "/certificates/:id", h.wrap("getSingleCertificate", h.getSingleCertificate)},
		{"updateCertificate", http.MethodPut, "/certificates/:id", h.wrap("updateCertificate", h.updateCertificate)},
		{"adjustFreeQuizCredits", http.MethodPost, "/users/free-quiz-credits", h.wrap("adjustFreeQuizCredits", h.adjustFreeQuizCredits)},
		{"consumeFreePlan", http.MethodPost, "/users/free-plan", h.wrap("consumeFreePlan", h.consumeFreePlan)},
		{"awardXP", http.MethodPost, "/users/xp", h.wrap("awardXP", h.awardXP)},
		{"topRankers", http.MethodGet, "/users/top-rankers", h.wrap("topRankers", h.topRankers)},
		{"getLeaderboard", http.MethodGet, "/users/leaderboard", h.wrap("getLeaderboard", h.getLeaderboard)},
		{"getUserById", http.MethodGet, "/users", h.wrap("getUserById", h.getUserByID)},
		{"processAchievement", http.MethodPost, "/user-achievements", h.wrap("processAchievement", h.processAchievement)},
		{"createPaymentIntent", http.MethodPost, "/user-payments/intent", h.wrap("createPaymentIntent", h.createPaymentIntent)},
		{"createCertificationPlanPaymentIntent", http.MethodPost, "/user-payments/plan", h.wrap("createCertificationPlanPaymentIntent", h.purchasePlan)},
		{"stripeWebhook", http.MethodPost, "/user-payments/webhook", h.wrap("stripeWebhook", h.stripeWebhook)},
		{"updateUserCreditsFromInAppPurchase", http.MethodPost, "/user-payments/in-app", h.wrap("updateUserCreditsFromInAppPurchase", h.inAppPurchase)},
		{"getCertificationPlans", http.MethodGet, "/certification-plans", h.wrap("getCertificationPlans", h.listPlans)},
		{"getCertificationPlanById", http.MethodGet, "/certification-plans/:id", h.wrap("getCertificationPlanById", h.getPlan)},
		{"createCertificationPlans", http.MethodPost, "/certification-plans", h.wrap("createCertificationPlans", h.createPlans)},
		{"updateCertificationPlanStatus", http.MethodPut, "/certification-plans/status", h.wrap("updateCertificationPlanStatus", h.updatePlanStatus)},
		{"enrichDbToolFields", http.MethodPost, "/dbtools/enrich", h.wrap("enrichDbToolFields", h.enrichToolFields)},
	}
	return routes
}

// Handler looks up a function by name.
func (h *Handlers) Handler(function string) (HandlerFunc, error) {
	names := make([]string, 0)
	for _, r := range h.Routes() {
		if r.Function == function {
			return r.Handler, nil
		}
		names = append(names, r.Function)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("unknown function %q (known: %s)", function, strings.Join(names, ", "))
}

// decodeBody reads a JSON request body; an empty body decodes as {}.
func decodeBody(req events.APIGatewayProxyRequest, v any) error {
	raw, err := rawBody(req)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.Validation("Malformed JSON in request body")
	}
	return nil
}

func rawBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	raw, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, domain.Validation("Malformed request body")
	}
	return raw, nil
}

// Submissions and certificates

func (h *Handlers) createQuizSubmission(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	var in app.SubmitQuizRequest
	if err := decodeBody(req, &in); err != nil {
		return "", nil, err
	}
	res, err := h.svc.Submissions.SubmitQuiz(ctx, in)
	return "Quiz submitted successfully", res, err
}

func (h *Handlers) getSingleQuizSubmission(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	res, err := h.svc.Submissions.GetSubmission(ctx, req.PathParameters["id"])
	return "Submission fetched successfully", res, err
}

func (h *Handlers) getGroupCertificate(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	q := req.QueryStringParameters
	res, err := h.svc.Certificates.IssueGroupCertificate(ctx, q["groupId"], q["userId"])
	if err != nil {
		return "", nil, err
	}
	if res.AlreadyExists {
		return "Group certificate retrieved successfully", res, nil
	}
	return "Group certificate generated successfully", res, nil
}

func (h *Handlers) getSingleCertificate(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	res, err := h.svc.Certificates.GetCertificate(ctx, req.PathParameters["id"])
	return "Certificate fetched successfully", res, err
}

func (h *Handlers) updateCertificate(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	if err := requireGroup(req, app.GroupAdmins); err != nil {
		return "", nil, err
	}
	var fields map[string]any
	if err := decodeBody(req, &fields); err != nil {
		return "", nil, err
	}
	res, err := h.svc.Certificates.UpdateCertificate(ctx, req.PathParameters["id"], fields)
	return "Certificate updated successfully", res, err
}

// Credits and payments

func (h *Handlers) adjustFreeQuizCredits(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	var in app.AdjustCreditsRequest
	if err := decodeBody(req, &in); err != nil {
		return "", nil, err
	}
	res, err := h.svc.Credits.AdjustFreeQuizCredits(ctx, in)
	return "Free quiz credits updated", res, err
}

func (h *Handlers) consumeFreePlan(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	var in app.ConsumeFreePlanRequest
	if err := decodeBody(req, &in); err != nil {
		return "", nil, err
	}
	res, err := h.svc.Credits.ConsumeFreePlan(ctx, in)
	return "Free plan claimed successfully", res, err
}

func (h *Handlers) createPaymentIntent(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	var in app.CreateIntentRequest
	if err := decodeBody(req, &in); err != nil {
		return "", nil, err
	}
	res, err := h.svc.Credits.CreatePaymentIntent(ctx, in)
	return "Payment required", res, err
}

func (h *Handlers) purchasePlan(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	var in app.PurchasePlanRequest
	if err := decodeBody(req, &in); err != nil {
		return "", nil, err
	}
	res, err := h.svc.Credits.PurchasePlan(ctx, in)
	return res.Message, res, err
}

func (h *Handlers) stripeWebhook(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	payload, err := rawBody(req)
	if err != nil {
		return "", nil, err
	}
	if err := h.svc.Credits.HandlePaymentWebhook(ctx, payload, header(req, "Stripe-Signature")); err != nil {
		return "", nil, err
	}
	return "Webhook processed", map[string]bool{"received": true}, nil
}

func (h *Handlers) inAppPurchase(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	var in app.InAppPurchaseRequest
	if err := decodeBody(req, &in); err != nil {
		return "", nil, err
	}
	res, err := h.svc.Credits.GrantInAppPurchase(ctx, in)
	return res.Message, res, err
}

// Achievements and leaderboard

func (h *Handlers) processAchievement(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	var in app.AchievementEventRequest
	if err := decodeBody(req, &in); err != nil {
		return "", nil, err
	}
	res, err := h.svc.Achievements.ProcessEvent(ctx, in)
	return fmt.Sprintf("%s event processed successfully", in.EventType), res, err
}

func (h *Handlers) awardXP(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	var in app.AwardXPRequest
	if err := decodeBody(req, &in); err != nil {
		return "", nil, err
	}
	total, err := h.svc.Achievements.AwardXP(ctx, in)
	if err != nil {
		return "", nil, err
	}
	var reason *string
	if in.Reason != "" {
		reason = &in.Reason
	}
	return "XP awarded successfully", map[string]any{
		"userId":   in.UserID,
		"xpAmount": in.XPAmount,
		"reason":   reason,
		"totalXP":  total,
	}, nil
}

func (h *Handlers) topRankers(ctx context.Context, _ events.APIGatewayProxyRequest) (string, any, error) {
	entries, err := h.svc.Leaderboard.TopRankers(ctx)
	if err != nil {
		return "", nil, err
	}
	return "Leaderboard fetched successfully", map[string]any{"leaderboard": entries}, nil
}

func (h *Handlers) getLeaderboard(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	page := 1
	if raw, ok := req.QueryStringParameters["page"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", nil, domain.Validation("Invalid page number. Must be a positive integer.")
		}
		page = n
	}
	res, err := h.svc.Leaderboard.Leaderboard(ctx, page)
	return "Leaderboard fetched successfully", res, err
}

func (h *Handlers) getUserByID(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	res, err := h.svc.Users.GetUser(ctx, req.QueryStringParameters["id"])
	return "User fetched successfully", res, err
}

// Certification plans

func (h *Handlers) listPlans(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	res, err := h.svc.Plans.ListPlans(ctx, req.QueryStringParameters["status"])
	return "Certification plans fetched successfully", res, err
}

func (h *Handlers) getPlan(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	res, err := h.svc.Plans.GetPlan(ctx, req.PathParameters["id"])
	return "Certification plan fetched successfully", res, err
}

func (h *Handlers) createPlans(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	if err := requireGroup(req, app.GroupAdmins); err != nil {
		return "", nil, err
	}
	var in struct {
		Plans []app.PlanInput `json:"plans"`
	}
	if err := decodeBody(req, &in); err != nil {
		return "", nil, err
	}
	res, err := h.svc.Plans.CreatePlans(ctx, in.Plans)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%d certification plans created successfully", len(res)), res, nil
}

func (h *Handlers) updatePlanStatus(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	if err := requireGroup(req, app.GroupAdmins); err != nil {
		return "", nil, err
	}
	var in app.UpdatePlanStatusRequest
	if err := decodeBody(req, &in); err != nil {
		return "", nil, err
	}
	res, err := h.svc.Plans.UpdatePlanStatus(ctx, in)
	return "Certification plan status updated successfully", res, err
}

// Catalogue enrichment

func (h *Handlers) enrichToolFields(ctx context.Context, req events.APIGatewayProxyRequest) (string, any, error) {
	if err := requireGroup(req, app.GroupAdmins, app.GroupVendors); err != nil {
		return "", nil, err
	}
	var in struct {
		Tool   map[string]any `json:"tool"`
		Fields []string       `json:"fields"`
	}
	if err := decodeBody(req, &in); err != nil {
		return "", nil, err
	}
	res, err := h.svc.Enrichment.EnrichToolFields(ctx, in.Tool, in.Fields)
	return "Tool fields generated", res, err
}
