// Package archive uploads background funding snapshots to S3 as parquet
// files, one object per exchange and snapshot.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"fundingflow/config"
	"fundingflow/internal/metrics"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

// ErrStopped is returned by Archive once the archiver has been stopped.
var ErrStopped = errors.New("archive: archiver is not running")

// ErrQueueFull is returned when the upload queue cannot take another batch.
var ErrQueueFull = errors.New("archive: upload queue is full")

// ObjectPutter is the subset of the S3 client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type batch struct {
	Exchange   model.ExchangeID
	CapturedAt time.Time
	Rates      []model.FundingRate
}

type Archiver struct {
	cfg     config.S3Config
	version string
	client  ObjectPutter
	log     *logger.Log

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	jobCh   chan batch
	wg      sync.WaitGroup
}

// New builds an S3-backed archiver from cfg. Static credentials are used when
// both keys are set, otherwise the default AWS chain applies.
func New(ctx context.Context, cfg *config.Config, log *logger.Log) (*Archiver, error) {
	s3cfg := cfg.Storage.S3
	if !s3cfg.Enabled {
		return nil, fmt.Errorf("s3 storage disabled")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if s3cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(s3cfg.Region))
	}
	if s3cfg.AccessKeyID != "" && s3cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3cfg.AccessKeyID, s3cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
		}
		o.UsePathStyle = s3cfg.PathStyle
	})

	return NewWithClient(s3cfg, cfg.Fundingflow.Version, client, log), nil
}

// NewWithClient builds an archiver around an existing client.
func NewWithClient(cfg config.S3Config, version string, client ObjectPutter, log *logger.Log) *Archiver {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Archiver{
		cfg:     cfg,
		version: version,
		client:  client,
		log:     log,
	}
}

// Start launches the upload workers.
func (a *Archiver) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("archiver already running")
	}
	a.running = true
	// queued batches are drained on Stop even after ctx is done
	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	a.jobCh = make(chan batch, a.cfg.QueueSize)

	for i := 0; i < a.cfg.Workers; i++ {
		a.wg.Add(1)
		go a.uploadWorker(i)
	}

	a.log.WithComponent("archive").WithFields(logger.Fields{
		"bucket":  a.cfg.Bucket,
		"prefix":  a.cfg.Prefix,
		"workers": a.cfg.Workers,
	}).Info("starting snapshot archiver")
	return nil
}

// Stop drains queued batches and waits for in-flight uploads.
func (a *Archiver) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.jobCh)
	a.mu.Unlock()

	a.wg.Wait()
	a.cancel()
	a.log.WithComponent("archive").Info("snapshot archiver stopped")
}

// Archive splits rates by exchange and queues one upload per exchange. It
// never blocks; a full queue drops the remaining batches.
func (a *Archiver) Archive(rates []model.FundingRate, capturedAt time.Time) error {
	if len(rates) == 0 {
		return nil
	}
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	byExchange := make(map[model.ExchangeID][]model.FundingRate)
	for _, r := range rates {
		byExchange[r.Exchange] = append(byExchange[r.Exchange], r)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return ErrStopped
	}

	for _, id := range model.Exchanges {
		entries := byExchange[id]
		if len(entries) == 0 {
			continue
		}
		select {
		case a.jobCh <- batch{Exchange: id, CapturedAt: capturedAt.UTC(), Rates: entries}:
		default:
			a.log.WithComponent("archive").WithFields(logger.Fields{
				"exchange":     id,
				"record_count": len(entries),
			}).Warn("archive queue full, dropping batch")
			return ErrQueueFull
		}
	}
	return nil
}

func (a *Archiver) uploadWorker(id int) {
	defer a.wg.Done()
	for b := range a.jobCh {
		a.processBatch(id, b)
	}
}

func (a *Archiver) processBatch(worker int, b batch) {
	entryLog := a.log.WithComponent("archive").WithFields(logger.Fields{
		"worker":       worker,
		"exchange":     b.Exchange,
		"record_count": len(b.Rates),
	})

	start := time.Now()
	data, err := encodeParquet(b, a.cfg.Compression)
	if err != nil {
		entryLog.WithError(err).Error("failed to create funding parquet")
		a.emit("archive_errors", b.Exchange, 1)
		return
	}

	key := objectKey(a.cfg.Prefix, b)
	if err := a.upload(key, data); err != nil {
		entryLog.WithError(err).WithFields(logger.Fields{"key": key}).Error("failed to upload funding parquet")
		a.emit("archive_errors", b.Exchange, 1)
		return
	}

	entryLog.WithFields(logger.Fields{
		"s3_key":    key,
		"file_size": len(data),
	}).Info("funding snapshot archived")
	logger.LogDataFlowEntry(entryLog, "refresh", "s3", len(b.Rates), "funding_rate")
	logger.LogPerformanceEntry(entryLog, "archive", "upload", time.Since(start), nil)
	a.emit("archived_records", b.Exchange, len(b.Rates))
}

func (a *Archiver) upload(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":        "parquet",
			"compression":         a.cfg.Compression,
			"fundingflow-version": a.version,
		},
	}

	ctx, cancel := context.WithTimeout(a.ctx, 2*time.Minute)
	defer cancel()
	if _, err := a.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (a *Archiver) emit(name string, exchange model.ExchangeID, value int) {
	metrics.EmitMetric(a.log, "archive", name, value, "counter", logger.Fields{
		"exchange": string(exchange),
	})
}

// objectKey lays snapshots out in hive-style partitions:
// <prefix>/exchange=<id>/date=<yyyy-mm-dd>/fundings_<stamp>_<uuid>.parquet
func objectKey(prefix string, b batch) string {
	filename := fmt.Sprintf("fundings_%s_%s.parquet",
		b.CapturedAt.UTC().Format("20060102T150405Z"),
		uuid.NewString(),
	)
	return path.Join(
		strings.Trim(prefix, "/"),
		"exchange="+strings.ToLower(string(b.Exchange)),
		"date="+b.CapturedAt.UTC().Format("2006-01-02"),
		filename,
	)
}
