package boot

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/fpang/order-image-pipeline/internal/config"
)

type fakeSSM struct {
	params map[string]string
	calls  []string
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	name := aws.ToString(in.Name)
	f.calls = append(f.calls, name)
	if !aws.ToBool(in.WithDecryption) {
		return nil, errors.New("expected decryption")
	}
	v, ok := f.params[name]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(v)}}, nil
}

func TestLoadSecret(t *testing.T) {
	client := &fakeSSM{params: map[string]string{"/p/key": "secret"}}

	got, err := LoadSecret(context.Background(), client, "from-env", "/p/key")
	if err != nil || got != "from-env" {
		t.Errorf("env value should win: %q, %v", got, err)
	}
	if len(client.calls) != 0 {
		t.Errorf("SSM should not be called, got %v", client.calls)
	}

	got, err = LoadSecret(context.Background(), client, "", "/p/key")
	if err != nil || got != "secret" {
		t.Errorf("expected SSM value, got %q, %v", got, err)
	}

	if _, err := LoadSecret(context.Background(), client, "", "/p/missing"); err == nil {
		t.Error("expected error for missing parameter")
	}
	if _, err := LoadSecret(context.Background(), client, "", ""); err == nil {
		t.Error("expected error without parameter name")
	}
}

func TestResolveSecrets(t *testing.T) {
	client := &fakeSSM{params: map[string]string{
		"/orders/airtable": "pat-ssm",
		"/orders/gemini":   "gem-ssm",
	}}
	cfg := &config.Config{}
	cfg.Gemini.APIKey = "gem-env"
	cfg.Secrets.RecordsKeyParam = "/orders/airtable"
	cfg.Secrets.GeminiKeyParam = "/orders/gemini"

	if err := ResolveSecrets(context.Background(), client, cfg); err != nil {
		t.Fatalf("ResolveSecrets: %v", err)
	}
	if cfg.Records.APIKey != "pat-ssm" || cfg.Gemini.APIKey != "gem-env" {
		t.Errorf("records=%q gemini=%q", cfg.Records.APIKey, cfg.Gemini.APIKey)
	}
	if len(client.calls) != 1 {
		t.Errorf("expected only the missing key to be fetched, got %v", client.calls)
	}
}

func TestBlobAWSConfig(t *testing.T) {
	base := aws.Config{Region: "eu-central-1"}

	out := blobAWSConfig(base, config.BlobConfig{Region: "auto", AccessKey: "ak", SecretKey: "sk"})
	if out.Region != "auto" {
		t.Errorf("Region = %q", out.Region)
	}
	creds, err := out.Credentials.Retrieve(context.Background())
	if err != nil || creds.AccessKeyID != "ak" || creds.SecretAccessKey != "sk" {
		t.Errorf("unexpected credentials: %+v, %v", creds, err)
	}
	if base.Region != "eu-central-1" || base.Credentials != nil {
		t.Error("base config must not be modified")
	}

	plain := blobAWSConfig(base, config.BlobConfig{})
	if plain.Region != "eu-central-1" || plain.Credentials != nil {
		t.Errorf("without overrides the base config applies: %+v", plain)
	}
}

func TestBatchConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Batch.Enabled = true
	cfg.Batch.UseDefaultPrompt = true
	cfg.Batch.DefaultPrompt = "Studio"
	cfg.Batch.VariantCount = 3

	bc := BatchConfig(cfg, "schedule")
	if !bc.Enabled || bc.Trigger != "schedule" {
		t.Errorf("unexpected config: %+v", bc)
	}
	if bc.Options.VariantCount != 2 {
		t.Errorf("VariantCount = %d, want 3 clamped to 2", bc.Options.VariantCount)
	}
	if bc.Options.DefaultPrompt != "Studio" || !bc.Options.UseDefault {
		t.Errorf("unexpected options: %+v", bc.Options)
	}
}
