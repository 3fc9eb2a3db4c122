// Package s3 implements backends.Filesystem on an S3 compatible bucket. Keys
// are normalized paths below an optional prefix; directories are zero-length
// marker objects ending in "/" or implied by the keys below them.
package s3

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/internal/mimetype"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

// Canned ACLs backing the two visibilities
const (
	aclPublic  = s3.ObjectCannedACLPublicRead
	aclPrivate = s3.ObjectCannedACLPrivate
)

// allUsersGroup is the grantee URI S3 uses for anonymous access
const allUsersGroup = "http://acs.amazonaws.com/groups/global/AllUsers"

var _ backends.Filesystem = (*Adapter)(nil)

// Adapter implements backends.Filesystem for an S3 bucket
type Adapter struct {
	client               s3iface.S3API
	bucket               string
	prefix               string
	defaultVisibility    metadata.Visibility
	serverSideEncryption string
	kmsKeyID             string
	pageSize             int64
	normalizer           pathutil.Normalizer
	detector             mimetype.Detector
	logger               *zap.Logger
}

// Option configures an Adapter
type Option func(*Adapter)

// WithPrefix stores every key below prefix
func WithPrefix(prefix string) Option {
	return func(a *Adapter) {
		a.prefix = strings.Trim(prefix, "/")
	}
}

// WithDefaultVisibility sets the visibility of objects written without one
func WithDefaultVisibility(v metadata.Visibility) Option {
	return func(a *Adapter) {
		a.defaultVisibility = v
	}
}

// WithServerSideEncryption sets the encryption of written objects. kmsKeyID
// is only used with aws:kms.
func WithServerSideEncryption(algorithm, kmsKeyID string) Option {
	return func(a *Adapter) {
		a.serverSideEncryption = algorithm
		a.kmsKeyID = kmsKeyID
	}
}

// WithPageSize sets the number of keys requested per listing page
func WithPageSize(n int64) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.pageSize = n
		}
	}
}

// WithLogger sets the adapter logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New creates an adapter over bucket
func New(client s3iface.S3API, bucket string, opts ...Option) (*Adapter, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if bucket == "" {
		return nil, errors.New("s3: bucket name is required")
	}

	a := &Adapter{
		client:            client,
		bucket:            bucket,
		defaultVisibility: metadata.VisibilityPrivate,
		pageSize:          1000,
		normalizer:        pathutil.NewWhitespaceNormalizer(),
		detector:          mimetype.NewExtensionDetector(nil),
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		return nil, errors.New("s3: logger must not be nil")
	}
	return a, nil
}

// NewFromConfig creates a session from cfg, checks that the bucket is
// reachable and returns an adapter over it
func NewFromConfig(cfg config.S3Config, logger *zap.Logger) (*Adapter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3.bucket is required")
	}

	awsConfig := &aws.Config{
		Region:     aws.String(cfg.Region),
		DisableSSL: aws.Bool(cfg.DisableSSL),
	}
	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	// Custom endpoints are usually MinIO or another S3 compatible store
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	client := s3.New(sess)

	if _, err := client.HeadBucket(&s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("failed to access S3 bucket %s: %w", cfg.Bucket, err)
	}

	visibility := metadata.VisibilityPrivate
	if cfg.PublicByDefault {
		visibility = metadata.VisibilityPublic
	}

	return New(client, cfg.Bucket,
		WithPrefix(cfg.Prefix),
		WithDefaultVisibility(visibility),
		WithServerSideEncryption(cfg.ServerSideEncryption, cfg.KMSKeyID),
		WithLogger(logger))
}

func (a *Adapter) normalize(path string) (string, error) {
	return a.normalizer.NormalizePath(path)
}

// objectKey maps a normalized path to its object key
func (a *Adapter) objectKey(location string) string {
	switch {
	case a.prefix == "":
		return location
	case location == "":
		return a.prefix
	}
	return a.prefix + "/" + location
}

// dirPrefix maps a normalized directory path to the prefix of its children
func (a *Adapter) dirPrefix(location string) string {
	key := a.objectKey(location)
	if key == "" {
		return ""
	}
	return key + "/"
}

// pathOf maps an object key back to a normalized path
func (a *Adapter) pathOf(key string) string {
	key = strings.TrimSuffix(key, "/")
	if a.prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, a.prefix), "/")
}

func aclFor(v metadata.Visibility) string {
	if v == metadata.VisibilityPublic {
		return aclPublic
	}
	return aclPrivate
}

// translate makes S3 not-found failures match fs.ErrNotExist
func translate(err error) error {
	if err == nil || !isNotFound(err) {
		return err
	}
	return errors.Join(fs.ErrNotExist, err)
}

func isNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		switch awsErr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
