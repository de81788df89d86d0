// Package comprehend classifies text with the AWS Comprehend DetectPiiEntities API.
package comprehend

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/piiguard/internal/domain/detection"
	"github.com/ahrav/piiguard/pkg/common"
)

var _ detection.Classifier = (*Classifier)(nil)

// API is the subset of the Comprehend client the classifier calls.
type API interface {
	DetectPiiEntities(
		ctx context.Context,
		params *comprehend.DetectPiiEntitiesInput,
		optFns ...func(*comprehend.Options),
	) (*comprehend.DetectPiiEntitiesOutput, error)
}

// Classifier calls DetectPiiEntities once per chunk. Retries are left to the
// SDK's standard retryer; requests are paced by a shared rate limiter.
type Classifier struct {
	api     API
	limiter *common.RateLimiter
	tracer  trace.Tracer
}

// New creates a Classifier around an existing client.
func New(api API, limiter *common.RateLimiter, tracer trace.Tracer) *Classifier {
	if limiter == nil {
		limiter = common.NewRateLimiter(0, 1)
	}
	return &Classifier{api: api, limiter: limiter, tracer: tracer}
}

// NewFromEnvironment loads AWS credentials and region the standard way
// (environment, shared config, instance role). region overrides the loaded one
// when set.
func NewFromEnvironment(ctx context.Context, region string, limiter *common.RateLimiter, tracer trace.Tracer) (*Classifier, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return New(comprehend.NewFromConfig(cfg), limiter, tracer), nil
}

// Classify returns the PII entities Comprehend finds in text. Comprehend
// reports character offsets; they are converted to byte offsets into text.
func (c *Classifier) Classify(ctx context.Context, text, languageCode string) ([]detection.Entity, error) {
	ctx, span := c.tracer.Start(ctx, "comprehend.detect_pii_entities",
		trace.WithAttributes(
			attribute.Int("text.bytes", len(text)),
			attribute.String("language_code", languageCode),
		))
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	out, err := c.api.DetectPiiEntities(ctx, &comprehend.DetectPiiEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: types.LanguageCode(languageCode),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "detect pii entities failed")
		return nil, fmt.Errorf("failed to detect pii entities: %w", err)
	}

	entities := make([]detection.Entity, 0, len(out.Entities))
	for _, e := range out.Entities {
		begin, end := detection.RuneSpanToBytes(text,
			int(aws.ToInt32(e.BeginOffset)),
			int(aws.ToInt32(e.EndOffset)),
		)
		entities = append(entities, detection.Entity{
			Type:  string(e.Type),
			Score: float64(aws.ToFloat32(e.Score)),
			Begin: begin,
			End:   end,
		})
	}

	span.SetAttributes(attribute.Int("entities.count", len(entities)))
	return entities, nil
}
