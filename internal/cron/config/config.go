package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Re-verify domains with a due pending retry, every 30 seconds
	CronScheduleDomainRecheck string `env:"CRON_SCHEDULE_DOMAIN_RECHECK" envDefault:"*/30 * * * * *"`
	// Maximum domains re-verified per run
	DomainRecheckBatchSize int `env:"CRON_DOMAIN_RECHECK_BATCH_SIZE" envDefault:"50"`
}
