package config

import "time"

type AppConfig struct {
	APIPort     string `env:"PORT,required" envDefault:"12233"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	// Persistence writes started after the platform call get their own budget
	// so a cancelled request cannot abort them halfway.
	PersistTimeout time.Duration `env:"PERSIST_TIMEOUT" envDefault:"10s"`
}

type DatabaseConfig struct {
	// postgres or sqlite
	Driver          string `env:"SITESTACK_DB_DRIVER" envDefault:"postgres"`
	SQLitePath      string `env:"SITESTACK_SQLITE_PATH" envDefault:"sitestack.db"`
	Host            string `env:"SITESTACK_POSTGRES_HOST"`
	Port            string `env:"SITESTACK_POSTGRES_PORT" envDefault:"5432"`
	User            string `env:"SITESTACK_POSTGRES_USER"`
	DBName          string `env:"SITESTACK_POSTGRES_DB_NAME"`
	Password        string `env:"SITESTACK_POSTGRES_PASSWORD"`
	MaxConn         int    `env:"SITESTACK_POSTGRES_DB_MAX_CONN" envDefault:"25"`
	MaxIdleConn     int    `env:"SITESTACK_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"SITESTACK_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"SITESTACK_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"SITESTACK_POSTGRES_SSL_MODE" envDefault:"require"`
}

type HostingConfig struct {
	// vercel or cloudflare
	Provider string        `env:"HOSTING_PROVIDER" envDefault:"vercel"`
	Timeout  time.Duration `env:"HOSTING_TIMEOUT" envDefault:"12s"`
}

type VercelConfig struct {
	Url       string `env:"VERCEL_URL" envDefault:"https://api.vercel.com"`
	Token     string `env:"VERCEL_API_TOKEN"`
	ProjectID string `env:"VERCEL_PROJECT_ID"`
	TeamID    string `env:"VERCEL_TEAM_ID"`
}

type CloudflareConfig struct {
	Url          string `env:"CLOUDFLARE_URL" envDefault:"https://api.cloudflare.com/client/v4"`
	ApiToken     string `env:"CLOUDFLARE_API_TOKEN"`
	ZoneID       string `env:"CLOUDFLARE_ZONE_ID"`
	FallbackHost string `env:"CLOUDFLARE_FALLBACK_ORIGIN"`
}

type RetryConfig struct {
	BaseDelay   time.Duration `env:"RETRY_BASE_DELAY" envDefault:"2s"`
	MaxDelay    time.Duration `env:"RETRY_MAX_DELAY" envDefault:"30s"`
	MaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"5"`
}

type RateLimitConfig struct {
	VerifyLimit  int           `env:"VERIFY_RATE_LIMIT" envDefault:"20"`
	VerifyWindow time.Duration `env:"VERIFY_RATE_WINDOW" envDefault:"1m"`
}

type DNSConfig struct {
	// CNAME target expected for subdomains
	ExpectedCNAME string `env:"DNS_EXPECTED_CNAME" envDefault:"cname.vercel-dns.com"`
	// A record expected for apex domains
	ExpectedA     string        `env:"DNS_EXPECTED_A" envDefault:"76.76.21.21"`
	LookupTimeout time.Duration `env:"DNS_LOOKUP_TIMEOUT" envDefault:"3s"`
}
