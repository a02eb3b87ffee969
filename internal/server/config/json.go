package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
	"github.com/dmitrijs2005/tokenkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations use
// timex.Duration so they may be strings such as "15m" or nanoseconds.
// Pointer fields distinguish "absent" from a zero value.
type JsonConfig struct {
	HTTPAddr           string          `json:"http_addr"`
	GRPCAddr           string          `json:"grpc_addr"`
	StorageBackend     string          `json:"storage_backend"`
	DatabaseDSN        string          `json:"database_dsn"`
	SecretKey          string          `json:"secret_key"`
	SigningKeyID       string          `json:"signing_key_id"`
	Issuer             string          `json:"issuer"`
	DefaultAudience    []string        `json:"default_audience"`
	AllowedAudiences   []string        `json:"allowed_audiences"`
	AudienceValidation *bool           `json:"audience_validation"`
	MaxExpiration      *timex.Duration `json:"max_expiration"`
	CASMaxRetries      int             `json:"cas_max_retries"`
	CollapseAuthErrors *bool           `json:"collapse_auth_errors"`
	ReconcileInterval  *timex.Duration `json:"reconcile_interval"`
	DenylistCacheSize  int64           `json:"denylist_cache_size"`
	RateLimitRPS       float64         `json:"rate_limit_rps"`
	RateLimitBurst     int             `json:"rate_limit_burst"`
	LogLevel           string          `json:"log_level"`
	LogFile            string          `json:"log_file"`
	OTLPEndpoint       string          `json:"otlp_endpoint"`
	AuditS3Enabled     *bool           `json:"audit_s3_enabled"`
	AuditFlushInterval *timex.Duration `json:"audit_flush_interval"`
	AuditBatchSize     int             `json:"audit_batch_size"`
	S3AccessKey        string          `json:"s3_access_key"`
	S3SecretKey        string          `json:"s3_secret_key"`
	S3Bucket           string          `json:"s3_bucket"`
	S3Region           string          `json:"s3_region"`
	S3BaseEndpoint     string          `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from the file named by -c/-config
// into config. Keys missing from the file keep their current value.
// An unreadable file or invalid JSON panics.
func parseJson(config *Config) {

	// try flags
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

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.SigningKeyID, c.SigningKeyID)
	setString(&config.Issuer, c.Issuer)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFile, c.LogFile)
	setString(&config.OTLPEndpoint, c.OTLPEndpoint)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	if c.DefaultAudience != nil {
		config.DefaultAudience = c.DefaultAudience
	}
	if c.AllowedAudiences != nil {
		config.AllowedAudiences = c.AllowedAudiences
	}
	if c.AudienceValidation != nil {
		config.AudienceValidation = *c.AudienceValidation
	}
	if c.CollapseAuthErrors != nil {
		config.CollapseAuthErrors = *c.CollapseAuthErrors
	}
	if c.AuditS3Enabled != nil {
		config.AuditS3Enabled = *c.AuditS3Enabled
	}
	if c.MaxExpiration != nil {
		config.MaxExpiration = c.MaxExpiration.Duration
	}
	if c.ReconcileInterval != nil {
		config.ReconcileInterval = c.ReconcileInterval.Duration
	}
	if c.AuditFlushInterval != nil {
		config.AuditFlushInterval = c.AuditFlushInterval.Duration
	}
	if c.CASMaxRetries != 0 {
		config.CASMaxRetries = c.CASMaxRetries
	}
	if c.DenylistCacheSize != 0 {
		config.DenylistCacheSize = c.DenylistCacheSize
	}
	if c.RateLimitRPS != 0 {
		config.RateLimitRPS = c.RateLimitRPS
	}
	if c.RateLimitBurst != 0 {
		config.RateLimitBurst = c.RateLimitBurst
	}
	if c.AuditBatchSize != 0 {
		config.AuditBatchSize = c.AuditBatchSize
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
