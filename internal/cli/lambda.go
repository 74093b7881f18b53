package cli

import (
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"dbkompare-functions/internal/config"
)

// postConfirmation is the user pool trigger; every other function is an API Gateway proxy.
const postConfirmation = "postConfirmation"

// NewLambdaCmd starts the Lambda runtime loop for one function.
func NewLambdaCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda [function]",
		Short: "Serve one function inside the AWS Lambda runtime",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			function := os.Getenv("FUNCTION_NAME")
			if len(args) == 1 {
				function = args[0]
			}
			if function == "" {
				return fmt.Errorf("function name required (argument or FUNCTION_NAME)")
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			rt, err := build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer rt.close()

			log.WithField("function", function).Info("starting lambda handler")
			if function == postConfirmation {
				lambda.StartWithOptions(rt.handlers.PostConfirmation, lambda.WithContext(cmd.Context()))
				return nil
			}
			handler, err := rt.handlers.Handler(function)
			if err != nil {
				return err
			}
			lambda.StartWithOptions(handler, lambda.WithContext(cmd.Context()))
			return nil
		},
	}
}
