package upload

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alikamatu/artisan-app-sub002/config"
	"github.com/alikamatu/artisan-app-sub002/internal/api"
	"github.com/alikamatu/artisan-app-sub002/internal/model"
	pkgerrors "github.com/alikamatu/artisan-app-sub002/pkg/errors"
	"github.com/alikamatu/artisan-app-sub002/pkg/metrics"
)

const uploadPath = "/onboarding/upload"

// 平台接受的 MIME 类型。校验基于内容嗅探，扩展名不参与判断。
var defaultAccept = []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}

// Options 控制校验与压缩的阈值。
type Options struct {
	MaxInputBytes    int64 // 输入绝对上限，超过直接拒绝
	MaxOutputBytes   int64 // 压缩后（或回退后）的输出硬上限
	RawFallbackBytes int64 // 压缩失败时退而使用的更严格原始大小上限
	TargetBytes      int64 // 压缩目标大小
	MaxDimension     int
	Quality          int
	Concurrency      int
	Accept           []string
}

// DefaultOptions 从全局配置取阈值。
func DefaultOptions() Options {
	return Options{
		MaxInputBytes:    config.Cfg.UploadMaxInputBytes,
		MaxOutputBytes:   config.Cfg.UploadMaxOutputBytes,
		RawFallbackBytes: config.Cfg.UploadRawFallbackBytes,
		TargetBytes:      config.Cfg.CompressTargetBytes,
		MaxDimension:     config.Cfg.CompressMaxDimension,
		Quality:          config.Cfg.CompressQuality,
		Concurrency:      config.Cfg.UploadConcurrency,
		Accept:           defaultAccept,
	}
}

// Pipeline 把原始文件变成持久 URL：校验、压缩、multipart 上传。
// 校验失败不发任何网络请求。
type Pipeline struct {
	api    *api.Client
	tokens api.TokenSource
	opts   Options
	logger *zap.Logger
}

func NewPipeline(apiClient *api.Client, tokens api.TokenSource, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.Accept) == 0 {
		opts.Accept = defaultAccept
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Pipeline{api: apiClient, tokens: tokens, opts: opts, logger: logger}
}

// Upload 处理单个文件。
// 返回的错误分类：UnsupportedType / FileTooLarge（本地校验，未发请求）、
// SessionExpired / PayloadTooLarge / UploadFailed / NetworkFailure（传输阶段）。
func (p *Pipeline) Upload(ctx context.Context, file *model.File) (*model.UploadResult, error) {
	start := time.Now()

	result, err := p.upload(ctx, file)
	if err != nil {
		outcome := "failed"
		if pkgerrors.IsValidation(err) {
			outcome = "rejected"
		}
		metrics.RecordUpload(ctx, outcome, time.Since(start), file.Size(), 0)
		return nil, err
	}

	metrics.RecordUpload(ctx, "ok", time.Since(start), result.OriginalSizeBytes, result.FinalSizeBytes)
	return result, nil
}

func (p *Pipeline) upload(ctx context.Context, file *model.File) (*model.UploadResult, error) {
	if file == nil || len(file.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", pkgerrors.UnsupportedType)
	}

	detected := mimetype.Detect(file.Data)
	contentType := detected.String()
	if !p.accepted(detected) {
		return nil, fmt.Errorf("%w: %s", pkgerrors.UnsupportedType, contentType)
	}

	originalSize := file.Size()
	if originalSize > p.opts.MaxInputBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds input limit %d", pkgerrors.FileTooLarge, originalSize, p.opts.MaxInputBytes)
	}

	payload := file.Data
	fileName := file.Name

	if strings.HasPrefix(contentType, "image/") {
		compressed, err := compressImage(file.Data, p.opts.MaxDimension, p.opts.Quality, p.opts.TargetBytes)
		if err != nil {
			// 压缩是尽力而为：失败时退回到更严格的原始大小校验
			p.logger.Warn("Image compression failed, falling back to raw size check",
				zap.String("file", file.Name),
				zap.Error(err),
			)
			if originalSize > p.opts.RawFallbackBytes {
				return nil, fmt.Errorf("%w: %d bytes exceeds raw fallback limit %d", pkgerrors.FileTooLarge, originalSize, p.opts.RawFallbackBytes)
			}
		} else if int64(len(compressed)) < originalSize {
			payload = compressed
			contentType = "image/jpeg"
			fileName = jpegName(file.Name)
		}
	}

	finalSize := int64(len(payload))
	if finalSize > p.opts.MaxOutputBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds output limit %d", pkgerrors.FileTooLarge, finalSize, p.opts.MaxOutputBytes)
	}

	resp, err := p.api.UploadMultipart(ctx, p.tokens, uploadPath, "file", fileName, contentType, payload)
	if err != nil {
		return nil, err
	}

	p.logger.Info("File uploaded",
		zap.String("file", file.Name),
		zap.Int64("original_bytes", originalSize),
		zap.Int64("final_bytes", finalSize),
	)

	return &model.UploadResult{
		URL:               resp.URL,
		OriginalSizeBytes: originalSize,
		FinalSizeBytes:    finalSize,
	}, nil
}

// UploadBatch 并发上传多份文件，每个文件的成败彼此独立：
// 返回成功的 URL（保持输入顺序）加失败清单，绝不整批中止。
func (p *Pipeline) UploadBatch(ctx context.Context, files []*model.File) *model.BatchResult {
	results := make([]*model.UploadResult, len(files))
	failures := make([]*model.UploadFailure, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i, file := range files {
		g.Go(func() error {
			result, err := p.Upload(gctx, file)
			if err != nil {
				failures[i] = &model.UploadFailure{Name: file.Name, Err: err}
				return nil // 单个失败不取消整批
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	batch := &model.BatchResult{}
	for i := range files {
		if results[i] != nil {
			batch.URLs = append(batch.URLs, results[i].URL)
		} else if failures[i] != nil {
			batch.Failures = append(batch.Failures, *failures[i])
		}
	}
	return batch
}

func (p *Pipeline) accepted(detected *mimetype.MIME) bool {
	for _, want := range p.opts.Accept {
		if detected.Is(want) {
			return true
		}
	}
	return false
}

func jpegName(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return name + ".jpg"
	}
	return strings.TrimSuffix(name, ext) + ".jpg"
}
