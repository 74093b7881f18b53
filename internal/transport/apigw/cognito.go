package apigw

import (
	"context"

	"github.com/aws/aws-lambda-go/events"

	"dbkompare-functions/internal/app"
)

const triggerConfirmSignUp = "PostConfirmation_ConfirmSignUp"

// PostConfirmation handles the user pool trigger fired after a sign-up is confirmed.
// Other trigger sources (forgot-password confirmations) pass through untouched.
func (h *Handlers) PostConfirmation(ctx context.Context, ev events.CognitoEventUserPoolsPostConfirmation) (events.CognitoEventUserPoolsPostConfirmation, error) {
	if ev.TriggerSource != triggerConfirmSignUp {
		return ev, nil
	}
	user, err := h.svc.Users.RegisterUser(ctx, app.Registration{
		Username:   ev.UserName,
		Attributes: ev.Request.UserAttributes,
	})
	if err != nil {
		h.log.WithError(err).WithField("username", ev.UserName).Error("post confirmation failed")
		return ev, err
	}
	h.log.WithField("userId", user.ID).Info("post confirmation complete")
	return ev, nil
}
