package utils

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"cloudbill/internal/models"
)

func TestManagerRoundTrip(t *testing.T) {
	m, err := NewManager("secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	token, err := m.NewJWT("user-1", models.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("NewJWT: %v", err)
	}
	caller, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if caller.ID != "user-1" || caller.Role != models.RoleAdmin {
		t.Fatalf("caller = %+v", caller)
	}
}

func TestManagerRejects(t *testing.T) {
	if _, err := NewManager(""); err == nil {
		t.Fatal("expected error for empty key")
	}
	m, _ := NewManager("secret")
	other, _ := NewManager("other")

	expired, _ := m.NewJWT("user-1", models.RoleUser, -time.Minute)
	if _, err := m.Parse(expired); err == nil {
		t.Fatal("expected expired token to fail")
	}
	forged, _ := other.NewJWT("user-1", models.RoleAdmin, time.Hour)
	if _, err := m.Parse(forged); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
}

func TestManagerDefaultsRole(t *testing.T) {
	m, _ := NewManager("secret")
	token, _ := m.NewJWT("user-2", "", time.Hour)
	caller, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if caller.Role != models.RoleUser {
		t.Fatalf("role = %q", caller.Role)
	}
}

type fakeS3 struct {
	s3iface.S3API
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3UploaderUpload(t *testing.T) {
	client := &fakeS3{}
	u := NewS3UploaderWithClient(client, S3Config{Bucket: "receipts", Prefix: "/billing/", Endpoint: "https://object.example.com/"})

	loc, err := u.Upload(context.Background(), "user-1/INV-1.json", []byte(`{}`), "application/json")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got := aws.StringValue(client.input.Key); got != "billing/user-1/INV-1.json" {
		t.Fatalf("key = %q", got)
	}
	if aws.StringValue(client.input.ContentType) != "application/json" || string(client.body) != "{}" {
		t.Fatalf("unexpected put input %+v", client.input)
	}
	if loc != "https://object.example.com/receipts/billing/user-1/INV-1.json" {
		t.Fatalf("location = %q", loc)
	}
}
