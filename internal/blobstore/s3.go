package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	pkgerrors "github.com/pkg/errors"

	"github.com/intergov/notary/internal/config"
	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/kms"
	"github.com/intergov/notary/internal/log"
)

const contentTypeJSON = "application/json"

type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store keeps pending, issued and incoming documents in S3 buckets
type S3Store struct {
	client s3API
}

// NewS3Store builds an S3 client. Region "local" points it to the configured endpoint.
func NewS3Store(cfg aws.Config, awsCfg config.AWS, pathStyle bool) *S3Store {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
		if kms.IsLocal(awsCfg) {
			o.BaseEndpoint = aws.String(awsCfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client}
}

// Get returns the object bytes or domain.ErrBlobNotFound
func (s *S3Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.Wrapf(domain.ErrBlobNotFound, "%s/%s", bucket, key)
		}
		return nil, domain.NewTransientError("get blob", pkgerrors.WithStack(err))
	}
	defer func() {
		if err := out.Body.Close(); err != nil {
			log.Warn(ctx, "closing blob body", "err", err)
		}
	}()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, domain.NewTransientError("read blob", pkgerrors.WithStack(err))
	}
	return data, nil
}

// Put writes data under key
func (s *S3Store) Put(ctx context.Context, bucket, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentTypeJSON),
	})
	if err != nil {
		return domain.NewTransientError("put blob", pkgerrors.WithStack(err))
	}
	return nil
}

// Exists tells whether key is present in bucket
func (s *S3Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, domain.NewTransientError("head blob", pkgerrors.WithStack(err))
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
