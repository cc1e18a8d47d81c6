package config

import (
	"sync"
	"time"
)

var (
	s3Once   sync.Once
	s3Config *S3Config
)

type S3Config struct {
	BucketName string
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
	// PresignTTL bounds how long URLs handed to the layout analyzer or to
	// download clients stay valid.
	PresignTTL time.Duration
}

func (c *S3Config) Enabled() bool {
	return c != nil && c.BucketName != "" && c.Region != ""
}

func GetS3Config() *S3Config {
	s3Once.Do(func() {
		loadEnv()
		s3Config = &S3Config{
			BucketName: getEnv("AWS_S3_BUCKET_NAME", ""),
			Region:     getEnv("AWS_REGION", ""),
			Endpoint:   getEnv("AWS_ENDPOINT", ""),
			AccessKey:  getEnv("AWS_ACCESS_KEY", ""),
			SecretKey:  getEnv("AWS_SECRET_KEY", ""),
			PresignTTL: getEnvDuration("AWS_S3_PRESIGN_TTL", 15*time.Minute),
		}
	})
	return s3Config
}
