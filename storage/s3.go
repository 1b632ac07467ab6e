package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"pubmed-graph/compress"
	"pubmed-graph/config"
)

// NewS3Client erstellt einen S3-Client für einen S3-kompatiblen Endpunkt.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.ArchiveS3URL,
				SigningRegion:     cfg.ArchiveS3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.ArchiveS3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.ArchiveS3Key, cfg.ArchiveS3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// ObjectAPI ist der Teil des S3-Clients, den das Archiv braucht.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

const (
	errorsPrefix  = "errors/"
	backupsPrefix = "backups/"
)

// Archive legt Fehlerdumps und Metadaten-Backups in einem Bucket ab.
type Archive struct {
	client  ObjectAPI
	bucket  string
	baseURL string
	keep    int
	codec   compress.Compress
	logger  *zap.Logger

	now func() time.Time
}

func NewArchive(client ObjectAPI, cfg *config.Config, codec compress.Compress, logger *zap.Logger) *Archive {
	if codec == nil {
		codec = compress.NewGZip()
	}
	return &Archive{
		client:  client,
		bucket:  cfg.ArchiveS3Bucket,
		baseURL: strings.TrimRight(cfg.ArchiveS3URL, "/"),
		keep:    cfg.KeepBackups,
		codec:   codec,
		logger:  logger,
		now:     time.Now,
	}
}

// Upload lädt data unter key hoch und gibt den Link zurück.
func (a *Archive) Upload(ctx context.Context, key string, data []byte) (string, error) {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", a.baseURL, a.bucket, key), nil
}

// UploadErrorDumps lädt alle XML-Dumps aus dir hoch und löscht sie lokal.
// Einzelne Fehler werden protokolliert; der Rest läuft weiter.
func (a *Archive) UploadErrorDumps(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".xml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			a.logger.Warn("Fehlerdump nicht lesbar", zap.String("file", path), zap.Error(err))
			continue
		}
		payload, err := a.codec.Encode(data)
		if err != nil {
			return n, err
		}
		key := errorsPrefix + e.Name() + "." + a.codec.Name()
		if _, err := a.Upload(ctx, key, payload); err != nil {
			a.logger.Warn("Fehlerdump nicht hochgeladen", zap.String("key", key), zap.Error(err))
			continue
		}
		if err := os.Remove(path); err != nil {
			a.logger.Warn("Fehlerdump nicht gelöscht", zap.String("file", path), zap.Error(err))
		}
		n++
	}
	return n, nil
}

// Backup lädt ein komprimiertes Backup hoch und rotiert danach alte Backups.
func (a *Archive) Backup(ctx context.Context, name string, data []byte) (string, error) {
	payload, err := a.codec.Encode(data)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s%s-%s.%s", backupsPrefix, name, a.now().UTC().Format("2006-01-02T15-04-05Z"), a.codec.Name())
	link, err := a.Upload(ctx, key, payload)
	if err != nil {
		return "", err
	}
	a.logger.Info("Backup hochgeladen", zap.String("key", key))

	if _, err := a.Rotate(ctx); err != nil {
		return link, fmt.Errorf("rotate backups: %w", err)
	}
	return link, nil
}

// Rotate löscht alle Backups bis auf die neuesten KEEP_BACKUPS.
func (a *Archive) Rotate(ctx context.Context) (int, error) {
	output, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(backupsPrefix),
	})
	if err != nil {
		return 0, err
	}

	if len(output.Contents) <= a.keep {
		a.logger.Debug("Keine Rotation nötig", zap.Int("backups", len(output.Contents)), zap.Int("keep", a.keep))
		return 0, nil
	}

	sort.Slice(output.Contents, func(i, j int) bool {
		return output.Contents[i].LastModified.After(*output.Contents[j].LastModified)
	})

	deleted := 0
	for _, obj := range output.Contents[a.keep:] {
		a.logger.Info("Lösche altes Backup", zap.String("key", *obj.Key))
		_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    obj.Key,
		})
		if err != nil {
			a.logger.Warn("Backup nicht gelöscht", zap.String("key", *obj.Key), zap.Error(err))
			continue
		}
		deleted++
	}
	return deleted, nil
}
