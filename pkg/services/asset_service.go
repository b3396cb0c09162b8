package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"github.com/pixelmuse/pixelmuse/pkg/config"
)

// Object key layout in the media bucket. Character assets are uploaded by the
// character editor; the workflow engine only reads them back.
const (
	characterKeyPrefix = "characters"
	galleryKeyPrefix   = "gallery"
)

// maxReferenceImages caps how many face-lock references one generation uses.
const maxReferenceImages = 4

// AssetService implements nodes.Assets on top of an S3-compatible bucket.
// Face-lock reference resolution is a signed-URL exchange: stored objects in,
// short-lived GET URLs out.
type AssetService struct {
	s3     *s3.S3
	http   *http.Client
	bucket string
	urlTTL time.Duration
}

// NewAssetService creates an asset service from configuration.
func NewAssetService(cfg config.AssetsConfig) (*AssetService, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		// Custom endpoints (minio, localstack) need path-style addressing.
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	ttl := time.Duration(cfg.SignedURLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &AssetService{
		s3:     s3.New(sess),
		http:   &http.Client{Timeout: 60 * time.Second},
		bucket: cfg.Bucket,
		urlTTL: ttl,
	}, nil
}

// CharacterReferenceURLs exchanges a character's stored face-lock assets for
// presigned GET URLs.
func (s *AssetService) CharacterReferenceURLs(ctx context.Context, userID, characterID string) ([]string, error) {
	prefix := path.Join(characterKeyPrefix, userID, characterID) + "/"
	listed, err := s.s3.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int64(maxReferenceImages),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list character assets: %w", err)
	}
	if len(listed.Contents) == 0 {
		return nil, fmt.Errorf("character %s has no stored reference images", characterID)
	}

	urls := make([]string, 0, len(listed.Contents))
	for _, object := range listed.Contents {
		req, _ := s.s3.GetObjectRequest(&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    object.Key,
		})
		url, err := req.Presign(s.urlTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to presign %s: %w", aws.StringValue(object.Key), err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// SaveToGallery downloads a generated asset from the provider URL and stores
// it in the user's gallery. Returns the new asset ID.
func (s *AssetService) SaveToGallery(ctx context.Context, userID, imageURL, folder string, tags []string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid asset URL: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download asset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download asset: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read asset body: %w", err)
	}

	assetID := uuid.New().String()
	key := path.Join(galleryKeyPrefix, userID, folder, assetID+extensionFor(resp.Header.Get("Content-Type")))

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(resp.Header.Get("Content-Type")),
	}
	if len(tags) > 0 {
		input.Metadata = map[string]*string{"tags": aws.String(strings.Join(tags, ","))}
	}
	if _, err := s.s3.PutObjectWithContext(ctx, input); err != nil {
		return "", fmt.Errorf("failed to store asset: %w", err)
	}

	return assetID, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	default:
		return ".png"
	}
}
