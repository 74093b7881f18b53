package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	AWS struct {
		Region   string `yaml:"region"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"aws"`
	Tables  Tables `yaml:"tables"`
	Storage struct {
		Bucket            string `yaml:"bucket"`
		TemplateKey       string `yaml:"templateKey"`
		CertificatePrefix string `yaml:"certificatePrefix"`
	} `yaml:"storage"`
	Certificate struct {
		VerifyBaseURL string `yaml:"verifyBaseUrl"`
	} `yaml:"certificate"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Stripe struct {
		SecretKey     string `yaml:"secretKey"`
		WebhookSecret string `yaml:"webhookSecret"`
		Currency      string `yaml:"currency"`
	} `yaml:"stripe"`
	SendGrid struct {
		APIKey string `yaml:"apiKey"`
	} `yaml:"sendgrid"`
	Admin struct {
		Email string `yaml:"email"`
	} `yaml:"admin"`
	Cognito struct {
		UserPoolID string `yaml:"userPoolId"`
	} `yaml:"cognito"`
	TextGen struct {
		BaseURL string `yaml:"baseUrl"`
		APIKey  string `yaml:"apiKey"`
		Model   string `yaml:"model"`
		Timeout string `yaml:"timeout"`
	} `yaml:"textgen"`
}

// Tables names every store table a function may touch.
type Tables struct {
	Users              string `yaml:"users"`
	Quizzes            string `yaml:"quizzes"`
	Submissions        string `yaml:"submissions"`
	Certificates       string `yaml:"certificates"`
	Groups             string `yaml:"groups"`
	CertificationPlans string `yaml:"certificationPlans"`
	UserAchievements   string `yaml:"userAchievements"`
}

// Default returns the settings used when neither file nor environment override them.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.AWS.Region = "eu-central-1"
	cfg.Tables = Tables{
		Users:              "users",
		Quizzes:            "quizzes",
		Submissions:        "quizzes-submissions",
		Certificates:       "certificates",
		Groups:             "groups",
		CertificationPlans: "certification-plans",
		UserAchievements:   "user-achievements",
	}
	cfg.Storage.TemplateKey = "COMMON/Certificate.pdf"
	cfg.Storage.CertificatePrefix = "CERTIFICATES/"
	cfg.Certificate.VerifyBaseURL = "https://dbkompare.com/verify/"
	cfg.Stripe.Currency = "eur"
	cfg.TextGen.BaseURL = "https://api.openai.com/v1"
	cfg.TextGen.Model = "gpt-4o-mini"
	cfg.TextGen.Timeout = "30s"
	return cfg
}

// Load reads YAML config from path on top of Default, then applies environment
// overrides. A missing file is not an error: functions are usually configured
// from the environment alone.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}
	applyEnv(&cfg, os.Getenv)
	return cfg, nil
}

// LoadDotEnv loads a local .env file if one exists.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func applyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.Port, "PORT")
	set(&cfg.Log.Level, "LOG_LEVEL")
	set(&cfg.Log.Format, "LOG_FORMAT")
	set(&cfg.AWS.Region, "AWS_REGION")
	set(&cfg.AWS.Endpoint, "AWS_ENDPOINT_URL")
	set(&cfg.Tables.Users, "USERS_TABLE")
	set(&cfg.Tables.Quizzes, "QUIZZES_TABLE")
	set(&cfg.Tables.Submissions, "QUIZZES_SUBMISSIONS_TABLE")
	set(&cfg.Tables.Certificates, "CERTIFICATES_TABLE")
	set(&cfg.Tables.Groups, "GROUPS_TABLE")
	set(&cfg.Tables.CertificationPlans, "CERTIFICATION_PLANS_TABLE")
	set(&cfg.Tables.UserAchievements, "USER_ACHIEVEMENTS_TABLE")
	set(&cfg.Storage.Bucket, "BUCKET_NAME")
	set(&cfg.Storage.TemplateKey, "CERTIFICATE_TEMPLATE_KEY")
	set(&cfg.Certificate.VerifyBaseURL, "CERTIFICATE_VERIFY_URL")
	set(&cfg.Redis.Addr, "REDIS_ADDR")
	set(&cfg.Redis.Password, "REDIS_PASSWORD")
	if v := getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	set(&cfg.Postgres.URL, "POSTGRES_URL")
	set(&cfg.Quiz.TTL, "QUIZ_CACHE_TTL")
	set(&cfg.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	set(&cfg.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	set(&cfg.SendGrid.APIKey, "SENDGRID_API_KEY")
	set(&cfg.Admin.Email, "ADMIN_EMAIL")
	set(&cfg.Cognito.UserPoolID, "COGNITO_USER_POOL_ID")
	set(&cfg.TextGen.BaseURL, "OPENAI_BASE_URL")
	set(&cfg.TextGen.APIKey, "OPENAI_API_KEY")
	set(&cfg.TextGen.Model, "OPENAI_MODEL")
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
