package config

import "time"

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string   `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DatabaseURL string   `env:"DATABASE_URL"`
	Database    Database `envPrefix:"DB_"`

	Auth      Auth      `envPrefix:"AUTH_"`
	Stripe    Stripe    `envPrefix:"STRIPE_"`
	Midtrans  Midtrans  `envPrefix:"MIDTRANS_"`
	Braintree Braintree `envPrefix:"BRAINTREE_"`
	Storage   Storage   `envPrefix:"STORAGE_"`
	SMTP      SMTP      `envPrefix:"SMTP_"`
	Invoice   Invoice   `envPrefix:"INVOICE_"`
	Webhook   Webhook   `envPrefix:"WEBHOOK_"`
}

type Database struct {
	// Disables wrapping settlement writes in a transaction. Only for
	// deployments behind statement-pooling proxies that cannot hold one;
	// settlement degrades to sequential best-effort writes.
	TxDisabled bool `env:"TX_DISABLED" envDefault:"false"`
}

type Auth struct {
	JWTSecret     string        `env:"JWT_SECRET"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	AdminEmail    string        `env:"ADMIN_EMAIL"`
	AdminPassword string        `env:"ADMIN_PASSWORD"`
}

type Stripe struct {
	SecretKey     string `env:"SECRET_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

type Midtrans struct {
	ServerKey   string `env:"SERVER_KEY"`
	Environment string `env:"ENVIRONMENT" envDefault:"sandbox"`
}

type Braintree struct {
	Environment string `env:"ENVIRONMENT" envDefault:"sandbox"`
	MerchantID  string `env:"MERCHANT_ID"`
	PublicKey   string `env:"PUBLIC_KEY"`
	PrivateKey  string `env:"PRIVATE_KEY"`
}

type Storage struct {
	Provider     string `env:"PROVIDER" envDefault:"local"`
	LocalDir     string `env:"LOCAL_DIR" envDefault:"./uploads"`
	LocalBaseURL string `env:"LOCAL_BASE_URL" envDefault:"http://localhost:8080/uploads"`

	OSSEndpoint   string `env:"OSS_ENDPOINT"`
	OSSBucket     string `env:"OSS_BUCKET"`
	OSSAccessKey  string `env:"OSS_ACCESS_KEY"`
	OSSSecretKey  string `env:"OSS_SECRET_KEY"`
	OSSPublicBase string `env:"OSS_PUBLIC_BASE"`
}

type SMTP struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM" envDefault:"no-reply@schoolfest.local"`
}

type Invoice struct {
	UploadAttempts int           `env:"UPLOAD_ATTEMPTS" envDefault:"3"`
	UploadBackoff  time.Duration `env:"UPLOAD_BACKOFF" envDefault:"1s"`
}

type Webhook struct {
	Retention    time.Duration `env:"RETENTION" envDefault:"720h"`
	ReapInterval time.Duration `env:"REAP_INTERVAL" envDefault:"1h"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}
