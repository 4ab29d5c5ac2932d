package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/vmforge/vmforge/internal/ir"
)

// s3Store keeps workspace state as a JSON object in S3, with optional
// DynamoDB-based locking. The whole object is rewritten per mutation, so
// consistency is last-writer-wins per resource address.
type s3Store struct {
	bucket      string
	key         string
	region      string
	lockTable   string
	sseRequired bool
	profile     string
	workspace   string

	s3Client *s3.Client
	dbClient *dynamodb.Client

	mu  sync.Mutex
	doc *ir.State
}

func newS3Store(options map[string]string, workspace string) (Store, error) {
	bucket := options["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("s3 backend requires 'bucket' configuration")
	}
	if workspace == "" {
		workspace = "default"
	}

	key := options["key"]
	if key == "" {
		key = fmt.Sprintf("vmforge/%s/state.json", workspace)
	}

	region := options["region"]
	if region == "" {
		region = "us-east-1"
	}

	b := &s3Store{
		bucket:      bucket,
		key:         key,
		region:      region,
		lockTable:   options["lock_table"],
		sseRequired: options["encrypt"] == "true",
		profile:     options["profile"],
		workspace:   workspace,
	}

	if err := b.initClients(); err != nil {
		return nil, &UnavailableError{Backend: "s3", Err: err}
	}
	return b, nil
}

func (b *s3Store) initClients() error {
	ctx := context.Background()

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(b.region))
	if b.profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(b.profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("unable to load AWS config: %w", err)
	}

	b.s3Client = s3.NewFromConfig(cfg)
	if b.lockTable != "" {
		b.dbClient = dynamodb.NewFromConfig(cfg)
	}
	return nil
}

func (b *s3Store) Workspace() string {
	return b.workspace
}

func (b *s3Store) load(ctx context.Context) (*ir.State, error) {
	if b.doc != nil {
		return b.doc, nil
	}

	result, err := b.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) || strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "404") {
			b.doc = &ir.State{
				Version:   1,
				Serial:    0,
				Lineage:   uuid.NewString(),
				Workspace: b.workspace,
			}
			return b.doc, nil
		}
		return nil, &UnavailableError{
			Backend: "s3",
			Err:     fmt.Errorf("failed to read s3://%s/%s: %w", b.bucket, b.key, err),
		}
	}
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, &UnavailableError{Backend: "s3", Err: err}
	}

	if IsEncrypted(content) {
		content, err = Decrypt(content)
		if err != nil {
			return nil, &UnavailableError{Backend: "s3", Err: err}
		}
	}

	var doc ir.State
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, &UnavailableError{
			Backend: "s3",
			Err:     fmt.Errorf("corrupt remote state s3://%s/%s: %w", b.bucket, b.key, err),
		}
	}
	b.doc = &doc
	return b.doc, nil
}

func (b *s3Store) persist(ctx context.Context) error {
	data, err := json.MarshalIndent(b.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	data, err = Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Body:   bytes.NewReader(data),
	}
	if b.sseRequired {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := b.s3Client.PutObject(ctx, input); err != nil {
		return &UnavailableError{
			Backend: "s3",
			Err:     fmt.Errorf("failed to write s3://%s/%s: %w", b.bucket, b.key, err),
		}
	}
	return nil
}

func (b *s3Store) Snapshot(ctx context.Context) (*ir.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to copy state: %w", err)
	}
	var out ir.State
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to copy state: %w", err)
	}
	return &out, nil
}

func (b *s3Store) Get(ctx context.Context, addr string) (*ir.ResourceState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	if i := findRecord(doc, addr); i >= 0 {
		return doc.Resources[i], nil
	}
	return nil, ErrNotFound
}

func (b *s3Store) Put(ctx context.Context, addr string, rec *ir.ResourceState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load(ctx)
	if err != nil {
		return err
	}
	upsertRecord(doc, addr, rec)
	return b.persist(ctx)
}

func (b *s3Store) Delete(ctx context.Context, addr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load(ctx)
	if err != nil {
		return err
	}
	if !removeRecord(doc, addr) {
		return nil
	}
	return b.persist(ctx)
}

func (b *s3Store) SetOutputs(ctx context.Context, outputs map[string]any, sensitive []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load(ctx)
	if err != nil {
		return err
	}
	doc.Outputs = outputs
	doc.SensitiveOutputs = sensitive
	doc.Serial++
	return b.persist(ctx)
}

func (b *s3Store) Lock() error {
	if b.lockTable == "" {
		return nil // No locking without a DynamoDB table
	}

	info := fmt.Sprintf("vmforge-%d-%d", os.Getpid(), time.Now().UnixNano())

	_, err := b.dbClient.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(b.lockTable),
		Item: map[string]dbtypes.AttributeValue{
			"LockID":  &dbtypes.AttributeValueMemberS{Value: b.key},
			"Info":    &dbtypes.AttributeValueMemberS{Value: info},
			"Created": &dbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(LockID)"),
	})
	if err != nil {
		if strings.Contains(err.Error(), "ConditionalCheckFailedException") {
			return fmt.Errorf("state is locked by another process. If this is an error, "+
				"manually delete the lock item with LockID=%q from DynamoDB table %q", b.key, b.lockTable)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

func (b *s3Store) Unlock() error {
	if b.lockTable == "" {
		return nil
	}

	_, err := b.dbClient.DeleteItem(context.Background(), &dynamodb.DeleteItemInput{
		TableName: aws.String(b.lockTable),
		Key: map[string]dbtypes.AttributeValue{
			"LockID": &dbtypes.AttributeValueMemberS{Value: b.key},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
