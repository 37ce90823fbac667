package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSClient stores locked-report snapshots as write-once objects in a GCS
// bucket. Objects are keyed by company, report and lock sequence plus the
// SHA-256 of the payload, so the same snapshot always maps to the same key.
type GCSClient struct {
	bucket  string
	timeout time.Duration
}

func NewGCSClient() (*GCSClient, error) {
	bucket := os.Getenv("LEDGER_GCS_BUCKET")
	if bucket == "" {
		return nil, errors.New("LEDGER_GCS_BUCKET is required")
	}
	timeout := 10 * time.Second
	if v := strings.TrimSpace(os.Getenv("LEDGER_APPEND_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}
	return &GCSClient{bucket: bucket, timeout: timeout}, nil
}

func newStorageClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// If explicit JSON is needed (e.g. locally), set LEDGER_GCS_CREDENTIALS_JSON.
	if credJSON := os.Getenv("LEDGER_GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

func (g *GCSClient) objectName(companyId string, reportId int, sequence int64, digest string) string {
	return fmt.Sprintf("ledger/%s/reports/%d/%06d-%s.json", companyId, reportId, sequence, digest)
}

// AppendLockedSnapshot writes the snapshot with an if-not-exists precondition.
// A precondition failure means the identical snapshot is already recorded and
// counts as success. Any other failure, including timeout, is an append failure.
func (g *GCSClient) AppendLockedSnapshot(ctx context.Context, companyId string, reportId int, sequence int64, payload []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	client, err := newStorageClient(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}
	defer client.Close()

	sum := sha256.Sum256(payload)
	digest := hex.EncodeToString(sum[:])
	objectName := g.objectName(companyId, reportId, sequence, digest)

	obj := client.Bucket(g.bucket).Object(objectName).If(storage.Conditions{DoesNotExist: true})
	wc := obj.NewWriter(ctx)
	wc.ContentType = "application/json"

	if _, err := wc.Write(payload); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}
	if err := wc.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 412 {
			// Same content already appended under this key.
			return objectName, nil
		}
		return "", fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}

	return objectName, nil
}
