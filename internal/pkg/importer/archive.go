package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/env"
	"github.com/closerdesk/closerdesk/internal/pkg/jobqueue"
	"github.com/closerdesk/closerdesk/internal/pkg/s3backup"
)

// Uploader stores a local file under an object key; *s3backup.Client implements it.
type Uploader interface {
	UploadFile(ctx context.Context, localFilePath, objectKey string) (*s3backup.UploadResult, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, jobType jobqueue.JobType, payload interface{})
}

// S3Archiver spools uploads to disk and copies them to object storage on the job queue.
type S3Archiver struct {
	uploader   Uploader
	config     *s3backup.Config
	repo       Repository
	dispatcher Dispatcher
	spoolDir   string
	now        func() time.Time
}

func NewS3Archiver(uploader Uploader, cfg *s3backup.Config, repo Repository, dispatcher Dispatcher, spoolDir string) *S3Archiver {
	if spoolDir == "" {
		spoolDir = os.TempDir()
	}
	return &S3Archiver{
		uploader:   uploader,
		config:     cfg,
		repo:       repo,
		dispatcher: dispatcher,
		spoolDir:   spoolDir,
		now:        time.Now,
	}
}

// NewArchiverFromEnv returns nil when archiving is disabled or S3 is unreachable.
func NewArchiverFromEnv(repo Repository, dispatcher Dispatcher) *S3Archiver {
	cfg, err := s3backup.LoadConfig()
	if err != nil || !cfg.IsEnabled() {
		return nil
	}
	client, err := s3backup.NewClient(cfg)
	if err != nil {
		log.Warnf("[Importer] Import archive disabled: %v", err)
		return nil
	}
	return NewS3Archiver(client, cfg, repo, dispatcher, env.GetEnv("IMPORT_SPOOL_DIR", ""))
}

func (a *S3Archiver) RegisterJobs() {
	jobqueue.Register(jobqueue.JobTypeImportArchive, func(ctx context.Context, job *jobqueue.Job) error {
		var p jobqueue.ImportArchivePayload
		if err := jobqueue.DecodePayload(job.Payload, &p); err != nil {
			return fmt.Errorf("decode import archive payload: %w", err)
		}
		return a.Upload(ctx, p)
	})
}

// Archive writes the upload to the spool directory and queues the upload.
func (a *S3Archiver) Archive(ctx context.Context, batch *models.ImportBatch, u Upload) error {
	if err := os.MkdirAll(a.spoolDir, 0o750); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}
	path := filepath.Join(a.spoolDir, fmt.Sprintf("import-%d%s", batch.ID, filepath.Ext(u.Name)))
	if err := os.WriteFile(path, u.Data, 0o600); err != nil {
		return fmt.Errorf("spool upload: %w", err)
	}
	a.dispatcher.Dispatch(ctx, jobqueue.JobTypeImportArchive, jobqueue.ImportArchivePayload{
		BatchID:   batch.ID,
		LocalPath: path,
		FileName:  u.Name,
	})
	return nil
}

// Upload copies a spooled file to object storage and records its key on the batch.
// The spooled file is removed once uploaded.
func (a *S3Archiver) Upload(ctx context.Context, p jobqueue.ImportArchivePayload) error {
	key := a.config.ImportObjectKey(p.BatchID, p.FileName, a.now())
	if _, err := a.uploader.UploadFile(ctx, p.LocalPath, key); err != nil {
		return fmt.Errorf("upload batch %d: %w", p.BatchID, err)
	}
	if err := a.repo.SetArchivedKey(ctx, p.BatchID, key); err != nil {
		return fmt.Errorf("record archive key for batch %d: %w", p.BatchID, err)
	}
	if err := os.Remove(p.LocalPath); err != nil && !os.IsNotExist(err) {
		log.Warnf("[Importer] Could not remove spooled file %s: %v", p.LocalPath, err)
	}
	log.Infof("[Importer] Archived batch %d as %s", p.BatchID, key)
	return nil
}
