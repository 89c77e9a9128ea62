package publishers

import (
	"context"
	"testing"
)

func TestLoadAWSConfigStaticCredentials(t *testing.T) {
	ctx := context.Background()
	cfg, err := loadAWSConfig(ctx, "eu-west-1", &AWSCredentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"})
	if err != nil {
		t.Fatalf("loadAWSConfig: %v", err)
	}
	if cfg.Region != "eu-west-1" {
		t.Fatalf("region = %s", cfg.Region)
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if creds.AccessKeyID != "AKIDEXAMPLE" || creds.SecretAccessKey != "secret" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestAWSCredentialsStaticRequiresBothKeys(t *testing.T) {
	var nilCreds *AWSCredentials
	if nilCreds.static() || (&AWSCredentials{AccessKeyID: "a"}).static() {
		t.Fatalf("partial credentials must fall back to the default chain")
	}
}
