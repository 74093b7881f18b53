package cli

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"dbkompare-functions/internal/app"
	"dbkompare-functions/internal/certificate"
	"dbkompare-functions/internal/config"
	"dbkompare-functions/internal/infra/cognito"
	"dbkompare-functions/internal/infra/dynamo"
	"dbkompare-functions/internal/infra/mailer"
	"dbkompare-functions/internal/infra/memory"
	"dbkompare-functions/internal/infra/payments"
	pgloader "dbkompare-functions/internal/infra/postgres"
	infraredis "dbkompare-functions/internal/infra/redis"
	"dbkompare-functions/internal/infra/s3store"
	"dbkompare-functions/internal/infra/textgen"
	"dbkompare-functions/internal/transport/apigw"
)

// runtime owns the clients a process opened; close releases them.
type runtime struct {
	handlers *apigw.Handlers
	// mirror is nil unless a Postgres quiz mirror is configured.
	mirror   *app.QuizMirror
	closers  []func()
}

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// build wires every adapter and service from cfg.
func build(ctx context.Context, cfg config.Config, log *logrus.Logger) (*runtime, error) {
	rt := &runtime{}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWS.Region)}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	endpoint := cfg.AWS.Endpoint

	ddb := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	cognitoClient := cip.NewFromConfig(awsCfg, func(o *cip.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	store := dynamo.NewStore(ddb, dynamo.Tables(cfg.Tables), log.WithField("component", "dynamo"))

	var loader memory.QuizLoader = store
	var pgQuizzes *pgloader.QuizLoader
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		pgQuizzes = pgloader.NewQuizLoader(pool)
		loader = pgQuizzes
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes interface {
		app.QuizRepository
		app.QuizInvalidator
	}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		quizzes = infraredis.NewQuizCache(client, loader, quizTTL, log.WithField("component", "quiz-cache"))
	} else {
		quizzes = memory.NewQuizCache(loader, quizTTL)
	}
	if pgQuizzes != nil {
		rt.mirror = app.NewQuizMirror(store, pgQuizzes, quizzes, log.WithField("component", "quiz-mirror"))
	}

	issuer := app.NewCertificateIssuer(
		s3store.New(s3Client, cfg.Storage.Bucket),
		certificate.NewPDFRenderer(certificate.DefaultLayout),
		app.IssuerOptions{
			TemplateKey:   cfg.Storage.TemplateKey,
			Prefix:        cfg.Storage.CertificatePrefix,
			VerifyBaseURL: cfg.Certificate.VerifyBaseURL,
		},
	)

	var notify app.Mailer = mailer.Noop{Log: log}
	if cfg.SendGrid.APIKey != "" {
		notify = mailer.NewSendGrid(cfg.SendGrid.APIKey, cfg.Admin.Email, log)
	}

	generator := textgen.New(textgen.Options{
		BaseURL: cfg.TextGen.BaseURL,
		APIKey:  cfg.TextGen.APIKey,
		Model:   cfg.TextGen.Model,
		Timeout: config.TTLDuration(cfg.TextGen.Timeout, 30*time.Second),
	})

	svc := apigw.Services{
		Submissions:  app.NewSubmissionService(quizzes, store, store, store, issuer, log),
		Certificates: app.NewCertificateService(store, store, store, store, quizzes, issuer, log),
		Credits: app.NewCreditService(store, store,
			payments.NewStripe(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret), cfg.Stripe.Currency, log),
		Achievements: app.NewAchievementService(store, log),
		Leaderboard:  app.NewLeaderboardService(store, store, log),
		Plans:        app.NewPlanService(store, log),
		Users:        app.NewUserService(store, cognito.New(cognitoClient, cfg.Cognito.UserPoolID), notify, log),
		Enrichment:   app.NewEnrichmentService(generator, log),
	}
	rt.handlers = apigw.NewHandlers(svc, log)
	return rt, nil
}
