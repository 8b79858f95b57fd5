package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"raffles/src/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snsTypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher fans domain events out to an SNS topic as JSON messages.
type SNSPublisher struct {
	TopicArn string
	inner    snsAPI
}

func NewSNSPublisher(ctx context.Context, topicArn string) (*SNSPublisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Printf("Error loading default config: %s\n", err.Error())
		return nil, err
	}
	return &SNSPublisher{
		TopicArn: topicArn,
		inner:    sns.NewFromConfig(cfg),
	}, nil
}

func (s *SNSPublisher) Publish(ctx context.Context, e types.DomainEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.inner.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.TopicArn),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snsTypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(e.Type)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sns %s: %w", e.Type, err)
	}
	return nil
}
