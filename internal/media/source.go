// Package media opens the files a creator uploads. Sources are local paths or
// s3://bucket/key URIs; S3 objects are downloaded to a temp file first so the
// upload streams from disk either way.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"lensfeed/internal/config"
	"lensfeed/internal/lens"
)

// ErrNotFile is returned for local references that are not regular files.
var ErrNotFile = errors.New("not a file")

// File is an opened upload source. Close removes any temp file.
type File struct {
	Name string
	Size int64

	f    *os.File
	temp bool
}

func (f *File) Read(p []byte) (int, error) {
	return f.f.Read(p)
}

// Close closes the file and removes it if it was downloaded.
func (f *File) Close() error {
	err := f.f.Close()
	if f.temp {
		if rmErr := os.Remove(f.f.Name()); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}

// S3Location is a parsed s3:// URI.
type S3Location struct {
	Bucket string
	Key    string
}

// ParseS3URI parses s3://bucket/key. ok is false if ref is not an s3 URI.
func ParseS3URI(ref string) (loc S3Location, ok bool, err error) {
	rest, found := strings.CutPrefix(ref, "s3://")
	if !found {
		return S3Location{}, false, nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return S3Location{}, true, fmt.Errorf("invalid s3 uri %q: want s3://bucket/key", ref)
	}
	return S3Location{Bucket: bucket, Key: key}, true, nil
}

// Opener resolves upload references to readable files.
type Opener struct {
	cfg    config.MediaConfig
	logger lens.Logger
}

// NewOpener creates an Opener using the S3 settings in cfg.
func NewOpener(cfg config.MediaConfig, logger lens.Logger) *Opener {
	return &Opener{cfg: cfg, logger: logger}
}

// Open opens a local path or downloads an s3:// object.
func (o *Opener) Open(ctx context.Context, ref string) (*File, error) {
	loc, isS3, err := ParseS3URI(ref)
	if err != nil {
		return nil, err
	}
	if isS3 {
		return o.download(ctx, loc)
	}
	return openLocal(ref)
}

func openLocal(p string) (*File, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("opening media file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat media file: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory: %w", p, ErrNotFile)
	}
	return &File{Name: filepath.Base(p), Size: info.Size(), f: f}, nil
}

// s3Client builds an S3 client from the media config. A custom endpoint
// switches to path-style addressing for S3-compatible stores.
func (o *Opener) s3Client(ctx context.Context) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if o.cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(o.cfg.S3Region))
	}
	if o.cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.cfg.S3AccessKeyID, o.cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(opt *s3.Options) {
		if o.cfg.S3Endpoint != "" {
			opt.BaseEndpoint = aws.String(o.cfg.S3Endpoint)
			opt.UsePathStyle = true
		}
	}), nil
}

func (o *Opener) download(ctx context.Context, loc S3Location) (*File, error) {
	client, err := o.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "lensfeed-upload-*"+path.Ext(loc.Key))
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	file := &File{Name: path.Base(loc.Key), f: tmp, temp: true}

	o.logger.Info("downloading upload source", "bucket", loc.Bucket, "key", loc.Key)
	n, err := manager.NewDownloader(client).Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("downloading s3://%s/%s: %w", loc.Bucket, loc.Key, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("rewinding download: %w", err)
	}
	file.Size = n
	o.logger.Debug("download complete", "bytes", n)
	return file, nil
}
