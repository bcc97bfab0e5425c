package publishers

import (
	"errors"
	"strings"
)

const (
	httpDefaultMethod         = "POST"
	httpDefaultTimeoutSeconds = 5
)

// AWSConfig holds settings shared by the AWS sinks. Static credentials and endpoint are
// optional; without them the default AWS credential chain and endpoints apply.
type AWSConfig struct {
	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

func (c AWSConfig) normalized() AWSConfig {
	c.Region = strings.TrimSpace(c.Region)
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.AccessKeyID = strings.TrimSpace(c.AccessKeyID)
	c.SecretAccessKey = strings.TrimSpace(c.SecretAccessKey)
	return c
}

func (c AWSConfig) validate() error {
	if c.Region == "" {
		return errors.New("region is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("access_key_id and secret_access_key must be set together")
	}
	return nil
}

// SQSPublisherConfig holds AWS SQS specific settings.
type SQSPublisherConfig struct {
	QueueURL  string `json:"uri" yaml:"uri"`
	AWSConfig `json:",inline" yaml:",inline"`
}

func (c SQSPublisherConfig) normalized() SQSPublisherConfig {
	c.QueueURL = strings.TrimSpace(c.QueueURL)
	c.AWSConfig = c.AWSConfig.normalized()
	return c
}

func (c *SQSPublisherConfig) validate() error {
	if c.QueueURL == "" {
		return errors.New("uri is required")
	}
	return c.AWSConfig.validate()
}

// SNSPublisherConfig holds AWS SNS specific settings.
type SNSPublisherConfig struct {
	TopicARN  string `json:"topic_arn" yaml:"topic_arn"`
	AWSConfig `json:",inline" yaml:",inline"`
}

func (c SNSPublisherConfig) normalized() SNSPublisherConfig {
	c.TopicARN = strings.TrimSpace(c.TopicARN)
	c.AWSConfig = c.AWSConfig.normalized()
	return c
}

func (c *SNSPublisherConfig) validate() error {
	if !strings.HasPrefix(c.TopicARN, "arn:") {
		return errors.New("topic_arn must be an ARN")
	}
	return c.AWSConfig.validate()
}

// PubSubPublisherConfig holds Google Cloud Pub/Sub settings. Endpoint targets an emulator.
type PubSubPublisherConfig struct {
	ProjectID string `json:"project_id" yaml:"project_id"`
	Topic     string `json:"topic" yaml:"topic"`
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
}

func (c PubSubPublisherConfig) normalized() PubSubPublisherConfig {
	c.ProjectID = strings.TrimSpace(c.ProjectID)
	c.Topic = strings.TrimSpace(c.Topic)
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	return c
}

func (c *PubSubPublisherConfig) validate() error {
	if c.ProjectID == "" || c.Topic == "" {
		return errors.New("project_id and topic are required")
	}
	return nil
}

// HTTPPublisherConfig holds generic HTTP sink settings.
type HTTPPublisherConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

func (c HTTPPublisherConfig) normalized() HTTPPublisherConfig {
	c.URL = strings.TrimSpace(c.URL)
	c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
	if c.Method == "" {
		c.Method = httpDefaultMethod
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = httpDefaultTimeoutSeconds
	}
	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		key, val := strings.TrimSpace(k), strings.TrimSpace(v)
		if key != "" && val != "" {
			headers[key] = val
		}
	}
	c.Headers = nil
	if len(headers) > 0 {
		c.Headers = headers
	}
	return c
}

func (c *HTTPPublisherConfig) validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	return nil
}
