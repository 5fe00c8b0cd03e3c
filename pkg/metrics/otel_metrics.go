package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 上传管线指标
	UploadTotal       metric.Int64Counter
	UploadDuration    metric.Float64Histogram
	UploadInputBytes  metric.Int64Histogram
	UploadOutputBytes metric.Int64Histogram

	// 引导流程指标
	StepSubmissionTotal  metric.Int64Counter
	StatusRefreshTotal   metric.Int64Counter
	TokenInvalidateTotal metric.Int64Counter
}

var (
	// 全局指标实例，未初始化时所有 Record 函数为空操作
	metrics *OTelMetrics
	// meter 用于创建指标
	meter = otel.Meter("artisan-onboarding")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	var err error

	m := &OTelMetrics{}

	m.UploadTotal, err = meter.Int64Counter(
		"onboarding_upload_total",
		metric.WithDescription("Total number of file uploads by result"),
		metric.WithUnit("{upload}"),
	)
	if err != nil {
		return err
	}

	m.UploadDuration, err = meter.Float64Histogram(
		"onboarding_upload_duration_seconds",
		metric.WithDescription("Time spent validating, compressing and uploading a file"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.UploadInputBytes, err = meter.Int64Histogram(
		"onboarding_upload_input_bytes",
		metric.WithDescription("Raw file size before compression"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	m.UploadOutputBytes, err = meter.Int64Histogram(
		"onboarding_upload_output_bytes",
		metric.WithDescription("File size actually sent over the wire"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	m.StepSubmissionTotal, err = meter.Int64Counter(
		"onboarding_step_submission_total",
		metric.WithDescription("Total number of step submissions by role, step and result"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		return err
	}

	m.StatusRefreshTotal, err = meter.Int64Counter(
		"onboarding_status_refresh_total",
		metric.WithDescription("Total number of status resyncs by result"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return err
	}

	m.TokenInvalidateTotal, err = meter.Int64Counter(
		"onboarding_token_invalidation_total",
		metric.WithDescription("Total number of times both token scopes were cleared"),
		metric.WithUnit("{invalidation}"),
	)
	if err != nil {
		return err
	}

	metrics = m
	return nil
}

// RecordUpload 记录一次上传的结果与大小
func RecordUpload(ctx context.Context, result string, duration time.Duration, inputBytes, outputBytes int64) {
	if metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("result", result))
	metrics.UploadTotal.Add(ctx, 1, attrs)
	metrics.UploadDuration.Record(ctx, duration.Seconds(), attrs)
	if inputBytes > 0 {
		metrics.UploadInputBytes.Record(ctx, inputBytes, attrs)
	}
	if outputBytes > 0 {
		metrics.UploadOutputBytes.Record(ctx, outputBytes, attrs)
	}
}

// RecordStepSubmission 记录一次步骤提交
func RecordStepSubmission(ctx context.Context, role, step, result string) {
	if metrics == nil {
		return
	}
	metrics.StepSubmissionTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("step", step),
		attribute.String("result", result),
	))
}

// RecordStatusRefresh 记录一次进度 resync
func RecordStatusRefresh(ctx context.Context, result string) {
	if metrics == nil {
		return
	}
	metrics.StatusRefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordTokenInvalidation 记录一次令牌作用域清空
func RecordTokenInvalidation() {
	if metrics == nil {
		return
	}
	metrics.TokenInvalidateTotal.Add(context.Background(), 1)
}
