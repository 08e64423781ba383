package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ObjectPutter is the part of the S3 client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchiveConfig selects the bucket and credentials.
type ArchiveConfig struct {
	Bucket    string
	Prefix    string
	Region    string
	Profile   string
	AccessKey string
	SecretKey string
}

// Archive writes every snapshot to S3 as
// <prefix>snapshots/YYYY/MM/DD/<id>.json for later replay.
type Archive struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewArchive wraps an existing S3 client.
func NewArchive(client ObjectPutter, bucket, prefix string) *Archive {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Archive{client: client, bucket: bucket, prefix: prefix}
}

// NewS3Archive loads AWS config (static keys when given, the default chain
// otherwise) and builds an archive.
func NewS3Archive(ctx context.Context, cfg ArchiveConfig) (*Archive, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	} else if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewArchive(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
}

// Key returns the object key for snap.
func (a *Archive) Key(snap *Snapshot) string {
	return fmt.Sprintf("%ssnapshots/%s/%s.json", a.prefix, snap.FetchedAt.UTC().Format("2006/01/02"), snap.ID)
}

// Put uploads snap.
func (a *Archive) Put(ctx context.Context, snap *Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(snap)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// ArchivingStore saves to a primary store and then archives. An archive
// failure fails the save even though the primary copy is already written.
type ArchivingStore struct {
	Store
	archive *Archive
}

// WithArchive wraps store so every save is also archived.
func WithArchive(store Store, archive *Archive) *ArchivingStore {
	return &ArchivingStore{Store: store, archive: archive}
}

func (s *ArchivingStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if err := s.Store.Save(ctx, snap); err != nil {
		return err
	}
	return s.archive.Put(ctx, snap)
}
