// Package boot wires the pipeline from configuration. Every entry point (the
// CLI, the scheduled Lambda, the HTTP Lambda) builds its orchestrator here,
// so each main is a short composition of Load, Build and StartupLog.
package boot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/order-image-pipeline/internal/batch"
	"github.com/fpang/order-image-pipeline/internal/blob"
	"github.com/fpang/order-image-pipeline/internal/config"
	"github.com/fpang/order-image-pipeline/internal/events"
	"github.com/fpang/order-image-pipeline/internal/history"
	"github.com/fpang/order-image-pipeline/internal/imagegen"
	"github.com/fpang/order-image-pipeline/internal/logging"
	"github.com/fpang/order-image-pipeline/internal/notify"
	"github.com/fpang/order-image-pipeline/internal/processor"
	"github.com/fpang/order-image-pipeline/internal/records"
)

// ssmAPI is the subset of *ssm.Client used for secrets.
type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadSecret returns current when set, otherwise reads param from SSM
// Parameter Store with decryption.
func LoadSecret(ctx context.Context, client ssmAPI, current, param string) (string, error) {
	if current != "" {
		return current, nil
	}
	if param == "" {
		return "", fmt.Errorf("secret not set and no SSM parameter configured")
	}
	ssmStart := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read %s from SSM: %w", param, err)
	}
	if result.Parameter == nil || aws.ToString(result.Parameter.Value) == "" {
		return "", fmt.Errorf("SSM parameter %s is empty", param)
	}
	log.Debug().Str("param", param).Dur("elapsed", time.Since(ssmStart)).Msg("Secret loaded from SSM")
	return aws.ToString(result.Parameter.Value), nil
}

// ResolveSecrets fills the record store and Gemini API keys from SSM when
// they were not provided through the environment. The client is only used
// when a key is missing.
func ResolveSecrets(ctx context.Context, client ssmAPI, cfg *config.Config) error {
	var err error
	if cfg.Records.APIKey, err = LoadSecret(ctx, client, cfg.Records.APIKey, cfg.Secrets.RecordsKeyParam); err != nil {
		return fmt.Errorf("record store API key: %w", err)
	}
	if cfg.Gemini.APIKey, err = LoadSecret(ctx, client, cfg.Gemini.APIKey, cfg.Secrets.GeminiKeyParam); err != nil {
		return fmt.Errorf("gemini API key: %w", err)
	}
	return nil
}

// blobAWSConfig derives the object store config. Explicit R2 credentials
// replace the default chain; the region defaults to "auto" for R2.
func blobAWSConfig(base aws.Config, cfg config.BlobConfig) aws.Config {
	out := base.Copy()
	if cfg.Region != "" {
		out.Region = cfg.Region
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		out.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}
	return out
}

// Build loads AWS config, resolves secrets, validates cfg and constructs the
// orchestrator with every optional collaborator the configuration enables.
// trigger labels run metrics.
func Build(ctx context.Context, cfg *config.Config, trigger string) (*batch.Orchestrator, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", awsCfg.Region).Msg("AWS config loaded")

	if cfg.Records.APIKey == "" || cfg.Gemini.APIKey == "" {
		if err := ResolveSecrets(ctx, ssm.NewFromConfig(awsCfg), cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := blob.NewS3Store(
		blob.NewS3Client(blobAWSConfig(awsCfg, cfg.Blob), cfg.Blob.Endpoint),
		blob.S3Config{Bucket: cfg.Blob.Bucket, PublicURL: cfg.Blob.PublicURL, Tagging: cfg.Blob.Tagging},
	)

	genaiClient, err := imagegen.NewClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	generator := imagegen.New(genaiClient, store, imagegen.Config{
		Model:        cfg.Gemini.Model,
		ImageSize:    cfg.Gemini.ImageSize,
		AspectRatio:  cfg.Gemini.AspectRatio,
		RateInterval: cfg.Gemini.RateInterval,
	})

	recordClient := records.NewClient(records.Config{
		BaseURL: cfg.Records.BaseURL,
		APIKey:  cfg.Records.APIKey,
		BaseID:  cfg.Records.BaseID,
		Table:   cfg.Records.Table,
		Window:  cfg.Records.Window,
		Timeout: cfg.Records.Timeout,
	})

	proc := processor.New(processor.NewHTTPFetcher(cfg.Batch.FetchTimeout), generator, cfg.Batch.ImageConcurrency)

	var opts []batch.Option
	if cfg.History.Table != "" {
		opts = append(opts, batch.WithHistory(history.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.History.Table, cfg.History.TTL)))
	}
	if cfg.Events.Bus != "" {
		opts = append(opts, batch.WithEvents(events.NewPublisher(eventbridge.NewFromConfig(awsCfg), cfg.Events.Bus, cfg.Events.Source)))
	}
	if cfg.Notify.Enabled {
		sender, err := notify.NewSESSender(awsCfg, cfg.Notify.From)
		if err != nil {
			return nil, err
		}
		opts = append(opts, batch.WithNotifier(notify.NewNotifier(sender)))
	}

	return batch.New(recordClient, proc, store, BatchConfig(cfg, trigger), opts...), nil
}

// BatchConfig maps the loaded configuration onto orchestrator settings.
func BatchConfig(cfg *config.Config, trigger string) batch.Config {
	return batch.Config{
		Enabled: cfg.Batch.Enabled,
		Options: processor.Options{
			DefaultPrompt: cfg.Batch.DefaultPrompt,
			UseDefault:    cfg.Batch.UseDefaultPrompt,
			VariantCount:  imagegen.ClampVariantCount(cfg.Batch.VariantCount),
		},
		Trigger: trigger,
	}
}

// StartupLog describes the configured resources for the startup summary.
func StartupLog(name string, cfg *config.Config, initStart time.Time) *logging.StartupLogger {
	sl := logging.NewStartupLogger(name).
		InitDuration(time.Since(initStart)).
		RecordSet("orders", cfg.Records.BaseID+"/"+cfg.Records.Table).
		Bucket("images", cfg.Blob.Bucket).
		Feature("autoProcess", cfg.Batch.Enabled).
		Feature("useDefaultPrompt", cfg.Batch.UseDefaultPrompt).
		Feature("notify", cfg.Notify.Enabled).
		Config("model", cfg.Gemini.Model).
		Config("imageSize", cfg.Gemini.ImageSize).
		Config("aspectRatio", cfg.Gemini.AspectRatio).
		Config("variantCount", fmt.Sprint(imagegen.ClampVariantCount(cfg.Batch.VariantCount))).
		Config("imageConcurrency", fmt.Sprint(cfg.Batch.ImageConcurrency)).
		Config("window", cfg.Records.Window.String()).
		Config("publicURL", cfg.Blob.PublicURL)
	if cfg.Blob.Endpoint != "" {
		sl.Config("blobEndpoint", cfg.Blob.Endpoint)
	}
	if cfg.History.Table != "" {
		sl.DynamoTable("history", cfg.History.Table)
	}
	if cfg.Events.Bus != "" {
		sl.EventBus("orders", cfg.Events.Bus)
	}
	if cfg.Secrets.RecordsKeyParam != "" {
		sl.SSMParam("recordsKey", cfg.Secrets.RecordsKeyParam)
	}
	if cfg.Secrets.GeminiKeyParam != "" {
		sl.SSMParam("geminiKey", cfg.Secrets.GeminiKeyParam)
	}
	return sl
}
