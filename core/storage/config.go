package storage

// Config holds configuration for the object storage provider.
type Config struct {
	// Endpoint is the host (and optional scheme) of the storage service.
	Endpoint string `mapstructure:"endpoint" default:"localhost:9000"`
	// AccessKey is the access key ID.
	AccessKey string `mapstructure:"access_key" default:"minioadmin"`
	// SecretKey is the secret access key.
	SecretKey string `mapstructure:"secret_key" default:"minioadmin"`
	// UseSSL enables TLS.
	UseSSL bool `mapstructure:"use_ssl" default:"false"`
	// Bucket receives dead-lettered records.
	Bucket string `mapstructure:"bucket" default:"persist-deadletter"`
	// Region is the bucket location (e.g., us-east-1).
	Region string `mapstructure:"region" default:""`
	// TimeoutSeconds bounds connection setup and the first response byte.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// DeadLetterPrefix is the object key prefix for escalated records.
	DeadLetterPrefix string `mapstructure:"deadletter_prefix" default:"deadletter"`
}
