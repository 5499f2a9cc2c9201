package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/edvin/sshtrust/internal/sshkey"
)

// S3Storage keeps key material as objects in one bucket, namespaced by
// object prefix. Suited to deployments without a shared filesystem or
// database.
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
	logger zerolog.Logger
}

func NewS3Storage(cfg Config, logger zerolog.Logger) *S3Storage {
	opts := s3.Options{
		Region:       cfg.S3Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.S3Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.S3Endpoint)
	}

	prefix := cfg.S3Prefix
	if cfg.Namespace != "" {
		prefix = path.Join(prefix, cfg.Namespace)
	}

	return &S3Storage{
		client: s3.New(opts),
		bucket: cfg.S3Bucket,
		prefix: prefix,
		logger: logger.With().Str("component", "s3-storage").Logger(),
	}
}

func (s *S3Storage) ReadUserKey() (*sshkey.KeyPair, error) {
	for _, name := range []string{rsaKeyFile, dsaKeyFile} {
		data, err := s.getObject(name)
		if err != nil {
			if isNoSuchKey(err) {
				continue
			}
			return nil, &Error{Op: "read user key", Err: err}
		}
		return sshkey.Parse(data)
	}
	return nil, ErrKeyNotFound
}

func (s *S3Storage) WriteUserKey(key *sshkey.KeyPair) error {
	if err := s.DeleteUserKey(); err != nil {
		return err
	}

	name := rsaKeyFile
	if key.Algorithm() == sshkey.AlgorithmDSA {
		name = dsaKeyFile
	}
	if err := s.putObject(name, key.MarshalPEM()); err != nil {
		return &Error{Op: "write user key", Err: err}
	}
	return nil
}

func (s *S3Storage) DeleteUserKey() error {
	for _, name := range []string{rsaKeyFile, dsaKeyFile} {
		_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(name)),
		})
		if err != nil {
			return &Error{Op: "delete user key", Err: err}
		}
	}
	return nil
}

func (s *S3Storage) ReadHostKeyLines() ([]string, error) {
	return s.readLines(knownHostsFile)
}

func (s *S3Storage) AddHostKeyLine(line string) error {
	lines, err := s.ReadHostKeyLines()
	if err != nil {
		return err
	}
	return s.WriteHostKeyLines(append(lines, line))
}

func (s *S3Storage) WriteHostKeyLines(lines []string) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := s.putObject(knownHostsFile, []byte(b.String())); err != nil {
		return &Error{Op: "write known_hosts", Err: err}
	}
	return nil
}

func (s *S3Storage) ReadAuthorizedKeyLines() ([]string, error) {
	return s.readLines(authorizedKeysFile)
}

func (s *S3Storage) readLines(name string) ([]string, error) {
	data, err := s.getObject(name)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil
		}
		return nil, &Error{Op: "read " + name, Err: err}
	}
	return splitLines(string(data)), nil
}

func (s *S3Storage) getObject(name string) ([]byte, error) {
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

func (s *S3Storage) putObject(name string, data []byte) error {
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *S3Storage) key(name string) string {
	return path.Join(s.prefix, name)
}

func isNoSuchKey(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	return errors.As(err, &noSuchKey)
}
