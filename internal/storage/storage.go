// Package storage は出品画像のオブジェクトストレージへの保存を提供する。
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/h2non/filetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/oklog/ulid/v2"
)

// ErrUnsupportedImage は許可されていない形式のファイルを表す。
var ErrUnsupportedImage = errors.New("unsupported image type")

// allowedMIMETypes はアップロードを受け付ける画像のMIMEタイプ。
var allowedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Image はアップロード対象の画像。
type Image struct {
	Filename string
	Data     []byte
}

// DetectedType はマジックバイトから判定したファイル形式。
type DetectedType struct {
	MIME      string
	Extension string
}

// DetectImage は先頭バイトから画像形式を判定する。拡張子は信用しない。
func DetectImage(data []byte) (DetectedType, error) {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return DetectedType{}, ErrUnsupportedImage
	}
	if !allowedMIMETypes[kind.MIME.Value] {
		return DetectedType{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, kind.MIME.Value)
	}
	return DetectedType{MIME: kind.MIME.Value, Extension: kind.Extension}, nil
}

// ObjectKey はユーザーごとのプレフィックスと乱数名からオブジェクトキーを生成する。
// 形式: <userID>/<ULID>.<ext>
func ObjectKey(userID, ext string) string {
	return fmt.Sprintf("%s/%s.%s", userID, ulid.Make().String(), ext)
}

// ObjectStore は画像を保存し公開URLを返すインターフェース。
type ObjectStore interface {
	Upload(ctx context.Context, userID string, img Image) (string, error)
}

// Config はMinIO接続設定。
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// MinioStore はMinIO（S3互換）を使用したObjectStore実装。
type MinioStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

// NewMinioStore はMinioStoreを生成する。接続はリクエスト時まで確立されない。
func NewMinioStore(cfg Config) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	base := cfg.PublicBaseURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}

	return &MinioStore{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(base, "/"),
	}, nil
}

// publicReadPolicy はバケット内オブジェクトの匿名読み取りを許可するポリシー。
const publicReadPolicy = `{
  "Version": "2012-10-17",
  "Statement": [{
    "Effect": "Allow",
    "Principal": {"AWS": ["*"]},
    "Action": ["s3:GetObject"],
    "Resource": ["arn:aws:s3:::%s/*"]
  }]
}`

// EnsureBucket はバケットが存在しなければ作成し、公開読み取りポリシーを設定する。
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	if err := s.client.SetBucketPolicy(ctx, s.bucket, fmt.Sprintf(publicReadPolicy, s.bucket)); err != nil {
		return fmt.Errorf("failed to set bucket policy: %w", err)
	}
	return nil
}

// Upload は画像形式を検証してから保存し、公開URLを返す。
func (s *MinioStore) Upload(ctx context.Context, userID string, img Image) (string, error) {
	kind, err := DetectImage(img.Data)
	if err != nil {
		return "", err
	}

	key := ObjectKey(userID, kind.Extension)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(img.Data), int64(len(img.Data)),
		minio.PutObjectOptions{
			ContentType: kind.MIME,
			UserMetadata: map[string]string{
				"original-filename": img.Filename,
			},
		})
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	return s.PublicURL(key), nil
}

// PublicURL はオブジェクトキーの公開URLを返す。
func (s *MinioStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, key)
}

// compile-time interface check
var _ ObjectStore = (*MinioStore)(nil)
