package session

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/docqa/console/internal/backend"
	"github.com/docqa/console/internal/metrics"
	"github.com/docqa/console/internal/pubsub"
	"github.com/docqa/console/internal/storage/models"
)

const (
	uploadSuccessFallback = "Document processed successfully"
	uploadErrorFallback   = "Upload failed"
)

// UploadFile is opened only when its turn in the batch comes.
type UploadFile struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// UploadAll uploads files one at a time in order and returns one result per
// file. A failed file never stops the batch. The registry is reloaded once
// after the last file. Overlapping batches are not prevented.
func (c *Controller) UploadAll(ctx context.Context, files []UploadFile) []models.UploadResult {
	if len(files) == 0 {
		return nil
	}

	c.mu.Lock()
	c.state.Uploading = true
	c.state.LastUpload = nil
	c.mu.Unlock()
	c.publishState()

	metrics.UploadBatchSize.Observe(float64(len(files)))

	results := make([]models.UploadResult, 0, len(files))
	for _, f := range files {
		result := c.uploadOne(ctx, f)
		results = append(results, result)
		metrics.UploadTotal.WithLabelValues(string(result.Status)).Inc()

		c.mu.Lock()
		c.state.LastUpload = append(c.state.LastUpload, result)
		c.mu.Unlock()

		c.events.Publish(pubsub.UploadEvent, Update{Upload: &result})
	}

	c.mu.Lock()
	c.state.Uploading = false
	c.mu.Unlock()

	if err := c.LoadDocuments(ctx); err != nil {
		c.log.Warn("Reload after upload failed", zap.Error(err))
	}

	return results
}

func (c *Controller) uploadOne(ctx context.Context, f UploadFile) models.UploadResult {
	result := models.UploadResult{Filename: f.Name}

	resp, err := c.send(ctx, f)
	if err != nil {
		c.log.Error("Upload failed", zap.String("filename", f.Name), zap.Error(err))
		result.Status = models.UploadError
		result.Message = uploadFailureMessage(err)
		return result
	}

	result.Status = models.UploadSuccess
	result.Message = resp.Message
	if result.Message == "" {
		result.Message = uploadSuccessFallback
	}
	return result
}

func (c *Controller) send(ctx context.Context, f UploadFile) (*backend.UploadResponse, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return c.svc.UploadDocument(ctx, f.Name, r)
}

// uploadFailureMessage prefers the service's explanation over the local error.
func uploadFailureMessage(err error) string {
	if detail := backend.Detail(err); detail != "" {
		return detail
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return uploadErrorFallback
}
