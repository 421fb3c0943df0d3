package writer

import (
	"context"
	"io"

	"grafana-backup/internal/config"
	"grafana-backup/internal/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// countingReader wraps an io.Reader and counts the bytes read.
type countingReader struct {
	reader io.Reader
	count  int64
}

func (cr *countingReader) Read(p []byte) (n int, err error) {
	n, err = cr.reader.Read(p)
	cr.count += int64(n)
	return
}

func (cr *countingReader) BytesRead() int64 {
	return cr.count
}

const S3WriterType = config.DestRemote

// s3API is the subset of the S3 client the writer uses besides uploads.
type s3API interface {
	s3.ListObjectsV2APIClient
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// uploader is satisfied by *manager.Uploader.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Writer stores archives in an S3 (or S3-compatible) bucket.
type S3Writer struct {
	uploader   uploader
	s3Client   s3API
	bucketName string
	awsRegion  string
}

func init() {
	RegisterWriterFactory(S3WriterType, NewS3Writer)
}

// NewS3Writer creates an S3Writer for cfg.S3.Bucket. Credentials come from
// cfg.S3 when both keys are set, otherwise from the default AWS chain. A
// custom endpoint switches to path-style addressing for MinIO and friends.
func NewS3Writer(cfg config.StorageConfig) (BackupWriter, error) {
	s3cfg := cfg.S3
	if s3cfg.Bucket == "" {
		logger.Log.Error("S3 bucket name not provided", zap.String("key", config.EnvBucket))
		return nil, errors.Newf("S3 bucket name not provided (%s)", config.EnvBucket)
	}

	var cfgLoadOptions []func(*awsconfig.LoadOptions) error
	if s3cfg.Region != "" {
		cfgLoadOptions = append(cfgLoadOptions, awsconfig.WithRegion(s3cfg.Region))
	}

	if s3cfg.AccessKeyID != "" && s3cfg.SecretAccessKey != "" {
		logger.Log.Info("Using static S3 credentials from configuration")
		staticCreds := credentials.NewStaticCredentialsProvider(s3cfg.AccessKeyID, s3cfg.SecretAccessKey, "")
		cfgLoadOptions = append(cfgLoadOptions, awsconfig.WithCredentialsProvider(staticCreds))
	} else {
		logger.Log.Info("Static S3 credentials not fully provided, using default AWS credential chain.")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), cfgLoadOptions...)
	if err != nil {
		logger.Log.Error("Failed to load AWS SDK config for S3Writer", zap.Error(err))
		return nil, errors.Wrap(err, "failed to load AWS SDK config")
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Log.Info("S3Writer initialized",
		zap.String("bucket", s3cfg.Bucket),
		zap.String("region", awsCfg.Region),
		zap.String("endpoint", s3cfg.Endpoint),
	)
	return &S3Writer{
		uploader:   manager.NewUploader(s3Client),
		s3Client:   s3Client,
		bucketName: s3cfg.Bucket,
		awsRegion:  awsCfg.Region,
	}, nil
}

// Type returns the type of the writer.
func (s3w *S3Writer) Type() string {
	return S3WriterType
}

// Write uploads the data from reader to s3://bucket/objectName.
func (s3w *S3Writer) Write(ctx context.Context, objectName string, reader io.Reader) (destination string, bytesWritten int64, err error) {
	logger.Log.Info("Uploading archive to S3",
		zap.String("bucket", s3w.bucketName),
		zap.String("key", objectName),
	)

	counter := &countingReader{reader: reader}

	result, err := s3w.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s3w.bucketName),
		Key:    aws.String(objectName),
		Body:   counter,
	})
	if err != nil {
		logger.Log.Error("Failed to upload archive to S3",
			zap.String("bucket", s3w.bucketName),
			zap.String("key", objectName),
			zap.Error(err),
		)
		return "", 0, errors.Wrapf(err, "failed to upload to S3 (bucket: %s, key: %s)", s3w.bucketName, objectName)
	}

	bytesWritten = counter.BytesRead()
	logger.Log.Info("Successfully uploaded archive to S3",
		zap.String("location", result.Location),
		zap.Int64("bytesWritten", bytesWritten),
	)
	return result.Location, bytesWritten, nil
}

// ListObjects lists objects in the bucket whose key starts with prefix.
func (s3w *S3Writer) ListObjects(ctx context.Context, prefix string) ([]BackupObjectMeta, error) {
	var objects []BackupObjectMeta

	paginator := s3.NewListObjectsV2Paginator(s3w.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s3w.bucketName),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		if ctx.Err() != nil {
			logger.Log.Warn("S3 listing cancelled or timed out",
				zap.String("bucket", s3w.bucketName),
				zap.String("prefix", prefix),
				zap.Error(ctx.Err()),
			)
			return nil, ctx.Err()
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			logger.Log.Error("Failed to list S3 objects page",
				zap.String("bucket", s3w.bucketName),
				zap.String("prefix", prefix),
				zap.Error(err),
			)
			return nil, errors.Wrapf(err, "failed to list S3 objects for bucket %s, prefix %s", s3w.bucketName, prefix)
		}
		for _, obj := range page.Contents {
			objects = append(objects, BackupObjectMeta{
				Key:          aws.ToString(obj.Key),
				LastModified: aws.ToTime(obj.LastModified),
				Size:         aws.ToInt64(obj.Size),
			})
		}
	}

	logger.Log.Debug("S3Writer: listed objects",
		zap.Int("count", len(objects)),
		zap.String("bucket", s3w.bucketName),
		zap.String("prefix", prefix),
	)
	return objects, nil
}

// DeleteObject deletes an object from the bucket.
func (s3w *S3Writer) DeleteObject(ctx context.Context, key string) error {
	_, err := s3w.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s3w.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		logger.Log.Error("Failed to delete S3 object",
			zap.String("bucket", s3w.bucketName),
			zap.String("key", key),
			zap.Error(err),
		)
		return errors.Wrapf(err, "failed to delete S3 object (bucket: %s, key: %s)", s3w.bucketName, key)
	}

	logger.Log.Info("Deleted S3 object",
		zap.String("bucket", s3w.bucketName),
		zap.String("key", key),
	)
	return nil
}
