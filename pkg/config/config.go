// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fawa-io/receptacle/pkg/fwlog"
)

// EnvPrefix prefixes every environment override, e.g. RECEPTACLE_REDIS_HOST.
const EnvPrefix = "RECEPTACLE"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	LogLevel   string           `mapstructure:"logLevel"`
	Storage    StorageConfig    `mapstructure:"storage"`
	AWS        AWSConfig        `mapstructure:"aws"`
	Azure      AzureConfig      `mapstructure:"azure"`
	Minio      MinioConfig      `mapstructure:"minio"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Email      EmailConfig      `mapstructure:"email"`
	Datasource DatasourceConfig `mapstructure:"datasource"`
}

type ServerConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

// StorageConfig picks the backend used when a request does not name one.
type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=s3 azure minio"`
}

// AWSConfig holds the IAM credentials and S3 bucket settings. Empty keys
// fall back to the SDK's default credential chain.
type AWSConfig struct {
	AccessKey       string      `mapstructure:"accessKey"`
	SecretAccessKey string      `mapstructure:"secretAccessKey" validate:"required_with=AccessKey"`
	S3              AWSS3Config `mapstructure:"s3"`
}

type AWSS3Config struct {
	BucketName   string             `mapstructure:"bucketName"`
	Region       string             `mapstructure:"region" validate:"required_with=BucketName"`
	Endpoint     string             `mapstructure:"endpoint" validate:"omitempty,url"`
	PresignedURL PresignedURLConfig `mapstructure:"presignedUrl"`
}

type PresignedURLConfig struct {
	// ExpirationTime is in seconds.
	ExpirationTime int `mapstructure:"expirationTime" validate:"gt=0"`
}

// Expiry returns the presigned URL lifetime.
func (c AWSS3Config) Expiry() time.Duration {
	return time.Duration(c.PresignedURL.ExpirationTime) * time.Second
}

type AzureConfig struct {
	BlobStorage AzureBlobStorageConfig `mapstructure:"blobStorage"`
}

type AzureBlobStorageConfig struct {
	Container        string `mapstructure:"container" validate:"required_with=ConnectionString"`
	ConnectionString string `mapstructure:"connectionString"`
}

type MinioConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"accessKey" validate:"required_with=Endpoint"`
	SecretKey  string `mapstructure:"secretKey" validate:"required_with=Endpoint"`
	BucketName string `mapstructure:"bucketName" validate:"required_with=Endpoint"`
	Region     string `mapstructure:"region"`
	UseSSL     bool   `mapstructure:"useSSL"`
}

type KafkaConfig struct {
	BootstrapServers []string       `mapstructure:"bootstrapServers"`
	TopicName        KafkaTopicName `mapstructure:"topicName"`
}

type KafkaTopicName struct {
	CustomerRegisteredEvent       string `mapstructure:"customerRegisteredEvent" validate:"required"`
	CustomerAccountRiskAssessment string `mapstructure:"customerAccountRiskAssessment" validate:"required"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	Password string `mapstructure:"password"`
}

// Addr returns host:port for the redis client.
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type EmailConfig struct {
	BaseURL string `mapstructure:"baseUrl" validate:"omitempty,url"`
	APIKey  string `mapstructure:"apiKey" validate:"required_with=BaseURL"`
}

type DatasourceConfig struct {
	URL string `mapstructure:"url"`
}

var (
	once sync.Once

	mu sync.RWMutex

	config Config

	validate = validator.New()
)

func InitConfig() error {
	var initErr error
	once.Do(func() {
		initErr = LoadAndWatch()
	})
	return initErr
}

func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	return config
}

// defaults registers every key so that AutomaticEnv can override keys that
// appear neither in the config file nor on the command line.
func defaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.certFile", "")
	v.SetDefault("server.keyFile", "")
	v.SetDefault("logLevel", "info")
	v.SetDefault("storage.driver", "s3")

	v.SetDefault("aws.accessKey", "")
	v.SetDefault("aws.secretAccessKey", "")
	v.SetDefault("aws.s3.bucketName", "")
	v.SetDefault("aws.s3.region", "us-east-1")
	v.SetDefault("aws.s3.endpoint", "")
	v.SetDefault("aws.s3.presignedUrl.expirationTime", 300)

	v.SetDefault("azure.blobStorage.container", "")
	v.SetDefault("azure.blobStorage.connectionString", "")

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.accessKey", "")
	v.SetDefault("minio.secretKey", "")
	v.SetDefault("minio.bucketName", "")
	v.SetDefault("minio.region", "us-east-1")
	v.SetDefault("minio.useSSL", false)

	v.SetDefault("kafka.bootstrapServers", []string{"localhost:9092"})
	v.SetDefault("kafka.topicName.customerRegisteredEvent", "customer-registered")
	v.SetDefault("kafka.topicName.customerAccountRiskAssessment", "risk-assessment-initiation")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")

	v.SetDefault("email.baseUrl", "")
	v.SetDefault("email.apiKey", "")

	v.SetDefault("datasource.url", "")
}

func newViper() *viper.Viper {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// decode unmarshals and validates the current state of v.
func decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("the configuration cannot be decoded into the struct: %w", err)
	}
	if err := validate.Struct(c); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func LoadAndWatch() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	pflag.String("server.addr", "", "HTTP service address (e.g., '127.0.0.1:8080')")
	pflag.String("server.certFile", "", "Path to the TLS certificate file.")
	pflag.String("server.keyFile", "", "Path to the TLS private key file.")
	pflag.String("logLevel", "", "Log level: debug, info, warn, error.")
	pflag.String("storage.driver", "", "Default storage backend: s3, azure or minio.")
	pflag.Parse()

	v := newViper()
	// Bind only flags that were set so empty flag defaults do not shadow
	// values from the config file.
	var bindErr error
	pflag.CommandLine.Visit(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return fmt.Errorf("failed to bind pflags: %w", bindErr)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/receptacle/")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fwlog.Infof("Config file not found, using defaults and environment.")
		} else {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	}

	c, err := decode(v)
	if err != nil {
		return err
	}
	mu.Lock()
	config = c
	mu.Unlock()

	v.OnConfigChange(func(e fsnotify.Event) {
		fwlog.Infof("Config file %s changed, reloading...", e.Name)

		c, err := decode(v)
		if err != nil {
			fwlog.Errorf("Error while reloading config: %v", err)
			return
		}

		mu.Lock()
		config = c
		mu.Unlock()

		newLogLevel, err := fwlog.ParseLevel(c.LogLevel)
		if err != nil {
			fwlog.Warnf("New log level in config is invalid: %v. Keeping previous level.", err)
			return
		}
		fwlog.SetLevel(newLogLevel)
		fwlog.Infof("Log level reloaded successfully to: %s", c.LogLevel)
	})
	v.WatchConfig()

	return nil
}
