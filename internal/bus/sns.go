package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNS rejects subjects longer than this or containing non-ASCII characters.
const maxSNSSubject = 100

// FromSNSEvent converts an SNS-triggered lambda event into records.
func FromSNSEvent(ev events.SNSEvent) []Record {
	records := make([]Record, 0, len(ev.Records))
	for i, r := range ev.Records {
		records = append(records, Record{
			ID:      r.SNS.MessageID,
			Subject: r.SNS.Subject,
			Payload: []byte(r.SNS.Message),
			Topic:   r.SNS.TopicArn,
			Offset:  int64(i),
			Time:    r.SNS.Timestamp,
		})
	}
	return records
}

// snsPublishAPI is the subset of the SNS client the publisher uses.
type snsPublishAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes messages to one SNS topic.
type SNSPublisher struct {
	client   snsPublishAPI
	topicArn string
}

// NewSNSPublisher loads the default AWS credential chain for region. A
// non-empty endpoint replaces the regional SNS endpoint.
func NewSNSPublisher(ctx context.Context, region, endpoint, topicArn string) (*SNSPublisher, error) {
	if topicArn == "" {
		return nil, errors.New("topic ARN is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := sns.NewFromConfig(cfg, func(o *sns.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &SNSPublisher{client: client, topicArn: topicArn}, nil
}

// Publish sends msg.Payload as the SNS message body. The key is not used;
// SNS topics are unordered.
func (p *SNSPublisher) Publish(ctx context.Context, msg Message) (string, error) {
	if len(msg.Payload) == 0 {
		return "", errors.New("message payload is empty")
	}

	in := &sns.PublishInput{
		TopicArn: aws.String(p.topicArn),
		Message:  aws.String(string(msg.Payload)),
	}
	if subject := snsSubject(msg.Subject); subject != "" {
		in.Subject = aws.String(subject)
	}

	out, err := p.client.Publish(ctx, in)
	if err != nil {
		return "", fmt.Errorf("sns publish: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// Close is a no-op; the SNS client holds no connections of its own.
func (p *SNSPublisher) Close() error {
	return nil
}

// snsSubject keeps the printable ASCII of s, cut to the SNS limit.
func snsSubject(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			continue
		}
		if b.Len() == maxSNSSubject {
			break
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
