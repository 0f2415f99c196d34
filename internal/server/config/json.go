package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/buildvault/buildvault/internal/flagx"
	"github.com/buildvault/buildvault/internal/timex"
)

// JsonConfig is an intermediate DTO for reading JSON configuration files.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "2m" and integer nanoseconds. After unmarshalling,
// its fields are copied into the runtime Config struct.
type JsonConfig struct {
	DatabaseDSN   string `json:"database_dsn"`
	SecretKey     string `json:"secret_key"`
	SecretKeyPrev string `json:"secret_key_prev"`
	MasterKey     string `json:"master_key"`

	TicketValidity      timex.Duration `json:"ticket_validity"`
	LeaseValidity       timex.Duration `json:"lease_validity"`
	ExpirySweepInterval timex.Duration `json:"expiry_sweep_interval"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	NatsURL     string `json:"nats_url"`
	NatsSubject string `json:"nats_subject"`
	RedisAddr   string `json:"redis_addr"`

	MaxSecretFileSize int64 `json:"max_secret_file_size"`
	MaxSecretTotal    int64 `json:"max_secret_total"`
	MaxCodeTotal      int64 `json:"max_code_total"`

	LinkMaxRetries int            `json:"link_max_retries"`
	LinkRetryBase  timex.Duration `json:"link_retry_base"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config flags; when
// neither is set, no file is loaded. Unreadable or invalid files panic.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.SecretKeyPrev = c.SecretKeyPrev
	config.MasterKey = c.MasterKey
	config.TicketValidity = time.Duration(c.TicketValidity.Duration)
	config.LeaseValidity = time.Duration(c.LeaseValidity.Duration)
	config.ExpirySweepInterval = time.Duration(c.ExpirySweepInterval.Duration)
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.NatsURL = c.NatsURL
	config.NatsSubject = c.NatsSubject
	config.RedisAddr = c.RedisAddr
	config.MaxSecretFileSize = c.MaxSecretFileSize
	config.MaxSecretTotal = c.MaxSecretTotal
	config.MaxCodeTotal = c.MaxCodeTotal
	config.LinkMaxRetries = c.LinkMaxRetries
	config.LinkRetryBase = time.Duration(c.LinkRetryBase.Duration)
}
