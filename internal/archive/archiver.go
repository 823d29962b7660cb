// Package archive offloads old version payloads to S3-compatible storage
// through presigned PUT URLs. The version log itself is never touched:
// rows stay where they are, eviction is someone else's call.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/driftguard/driftguard/internal/config"
	"github.com/driftguard/driftguard/internal/logging"
	"github.com/driftguard/driftguard/internal/repositories/versions"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}

	uploadToPresignedURL = putToPresignedURL
)

// Archiver copies payloads of versions older than the horizon into object
// storage. Which versions have been archived is tracked in memory; a
// restart re-uploads, which is harmless because keys are deterministic.
type Archiver struct {
	repo    versions.Repository
	config  *config.Config
	horizon time.Duration
	logger  logging.Logger

	mu       sync.Mutex
	archived map[string]string // version id -> storage key
}

func New(repo versions.Repository, cfg *config.Config, logger logging.Logger) *Archiver {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Archiver{
		repo:     repo,
		config:   cfg,
		horizon:  cfg.ArchiveAfter,
		logger:   logger.With("module", "archive"),
		archived: map[string]string{},
	}
}

// StorageKey is the deterministic object key for one version.
func StorageKey(resourceID, versionID string) string {
	return fmt.Sprintf("versions/%s/%s", resourceID, versionID)
}

func (a *Archiver) getPresignClient() (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		awsconfig.WithRegion(a.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.config.S3RootUser,
			a.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(a.config.S3BaseEndpoint)
	})

	return newS3PresignClient(client), nil
}

// Sweep uploads every archivable payload once. A version is archivable when
// it is older than the horizon and is not the newest version of its
// resource. Upload failures are logged and retried on the next sweep.
func (a *Archiver) Sweep(ctx context.Context) (int, error) {
	if a.horizon <= 0 {
		return 0, nil
	}

	presignClient, err := a.getPresignClient()
	if err != nil {
		return 0, fmt.Errorf("archive sweep: %w", err)
	}

	ids, err := a.repo.Resources(ctx)
	if err != nil {
		return 0, fmt.Errorf("archive sweep: %w", err)
	}

	cutoff := time.Now().Add(-a.horizon)
	uploaded := 0
	for _, resourceID := range ids {
		history, err := a.repo.History(ctx, resourceID)
		if err != nil {
			a.logger.Warn(ctx, "history read failed", "resource_id", resourceID, "error", err)
			continue
		}
		if len(history) < 2 {
			continue
		}
		// history[0] is the live head, never archived
		for _, v := range history[1:] {
			if v.CreatedAt.After(cutoff) || a.isArchived(v.ID) {
				continue
			}
			if err := a.upload(ctx, presignClient, resourceID, v.ID, v.Payload); err != nil {
				a.logger.Warn(ctx, "upload failed", "version_id", v.ID, "error", err)
				continue
			}
			uploaded++
		}
		if ctx.Err() != nil {
			return uploaded, ctx.Err()
		}
	}
	if uploaded > 0 {
		a.logger.Info(ctx, "archive sweep complete", "uploaded", uploaded)
	}
	return uploaded, nil
}

func (a *Archiver) upload(ctx context.Context, pc *s3.PresignClient, resourceID, versionID string, payload []byte) error {
	bucket := a.config.S3Bucket
	key := StorageKey(resourceID, versionID)

	req, err := presignPutObject(pc, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return err
	}

	if err := uploadToPresignedURL(req.URL, payload); err != nil {
		return err
	}

	a.mu.Lock()
	a.archived[versionID] = key
	a.mu.Unlock()
	return nil
}

func (a *Archiver) isArchived(versionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.archived[versionID]
	return ok
}

// Location returns the storage key a version was archived under.
func (a *Archiver) Location(versionID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key, ok := a.archived[versionID]
	return key, ok
}

// RunLoop sweeps on a slow timer until the context is cancelled.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) {
	if a.horizon <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info(ctx, "archiver started", "interval", interval.String(), "horizon", a.horizon.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Sweep(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error(ctx, "archive sweep failed", "error", err)
			}
		}
	}
}

func putToPresignedURL(url string, payload []byte) error {
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}
