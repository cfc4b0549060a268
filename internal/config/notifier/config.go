package notifier_config

import (
	"time"

	"github.com/taskpilot/notifier/internal/obs"
	pginfra "github.com/taskpilot/notifier/internal/repository/postgres"
)

type KafkaCfg struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type SMTP struct {
	Addr       string        `mapstructure:"addr"`
	From       string        `mapstructure:"from"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	UseTLS     bool          `mapstructure:"use_tls"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SubjPrefix string        `mapstructure:"subj_prefix"`
}

type SchedCfg struct {
	Tick         time.Duration `mapstructure:"tick"`
	BatchLimit   int           `mapstructure:"batch_limit"`
	MaxRetry     int           `mapstructure:"max_retry"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	BackoffCap   time.Duration `mapstructure:"backoff_cap"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
	ClaimLease   time.Duration `mapstructure:"claim_lease"`
	RecheckHour  int           `mapstructure:"recheck_hour"`
	ReminderLead time.Duration `mapstructure:"reminder_lead"`
}

type ServerCfg struct {
	HTTPAddr     string        `mapstructure:"http_addr"`
	MetricsAddr  string        `mapstructure:"metrics_addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	StreamBuffer int           `mapstructure:"stream_buffer"`
}

type LogCfg struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	Env    string `mapstructure:"env"`
	Ver    string `mapstructure:"ver"`
}

func (c LogCfg) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Level,
		Pretty: c.Pretty,
		App:    "notifier",
		Env:    c.Env,
		Ver:    c.Ver,
	}
}

type OTELCfg struct {
	Enable      bool    `mapstructure:"enable"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func (c OTELCfg) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      c.Enable,
		Endpoint:    c.Endpoint,
		ServiceName: c.ServiceName,
		SampleRatio: c.SampleRatio,
	}
}

type Config struct {
	DB     pginfra.Config `mapstructure:"db"`
	Kafka  KafkaCfg       `mapstructure:"kafka"`
	SMTP   SMTP           `mapstructure:"smtp"`
	Sched  SchedCfg       `mapstructure:"sched"`
	Server ServerCfg      `mapstructure:"server"`
	Log    LogCfg         `mapstructure:"log"`
	OTEL   OTELCfg        `mapstructure:"otel"`
}
