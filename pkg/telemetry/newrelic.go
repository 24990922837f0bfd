// Package telemetry reports request and storage signals to New Relic.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/yourorg/photo-gallery/pkg/logging"
)

// StorageOperation summarises one gateway call made on behalf of a request.
type StorageOperation struct {
	// Name is the transaction name, e.g. "blob.upload" or "blob.list".
	Name       string
	Container  string
	Prefix     string
	PageCount  int
	ItemCount  int
	Bytes      int64
	DurationMs int64
	TraceID    string
	RequestID  string
	Err        error
}

// Attributes returns the transaction attributes recorded for op.
func (op StorageOperation) Attributes() map[string]interface{} {
	attrs := map[string]interface{}{
		"container":   op.Container,
		"page_count":  op.PageCount,
		"item_count":  op.ItemCount,
		"duration_ms": op.DurationMs,
	}
	if op.Prefix != "" {
		attrs["prefix"] = op.Prefix
	}
	if op.Bytes > 0 {
		attrs["bytes"] = op.Bytes
	}
	if op.TraceID != "" {
		attrs["trace_id"] = op.TraceID
	}
	if op.RequestID != "" {
		attrs["request_id"] = op.RequestID
	}
	return attrs
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	LicenseKey  string
	AppName     string
	ServiceName string
	Enabled     bool
}

// NewRelicClient wraps the New Relic agent. A disabled client accepts every call and does nothing.
type NewRelicClient struct {
	app         *newrelic.Application
	logger      logging.Logger
	serviceName string
	enabled     bool
}

// NewNewRelicClient creates the agent when enabled and a license key is configured.
func NewNewRelicClient(cfg NewRelicConfig, logger logging.Logger) (*NewRelicClient, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if !cfg.Enabled || cfg.LicenseKey == "" {
		logger.Info("New Relic disabled or license key not provided")
		return &NewRelicClient{logger: logger, serviceName: cfg.ServiceName}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create New Relic application: %w", err)
	}

	logger.Info("New Relic client initialized",
		logging.NewField("app_name", cfg.AppName),
		logging.NewField("service", cfg.ServiceName),
	)

	return &NewRelicClient{
		app:         app,
		logger:      logger,
		serviceName: cfg.ServiceName,
		enabled:     true,
	}, nil
}

// Enabled reports whether signals are forwarded to New Relic.
func (n *NewRelicClient) Enabled() bool {
	return n.enabled && n.app != nil
}

// transaction reuses the request's transaction when one is in ctx, otherwise starts one.
// The returned func ends a transaction started here.
func (n *NewRelicClient) transaction(ctx context.Context, name string) (*newrelic.Transaction, func()) {
	if txn := newrelic.FromContext(ctx); txn != nil {
		return txn, func() {}
	}
	txn := n.app.StartTransaction(name)
	return txn, txn.End
}

// RecordStorageOperation records an upload or listing as a transaction carrying the
// container and page count.
func (n *NewRelicClient) RecordStorageOperation(ctx context.Context, op StorageOperation) {
	if !n.Enabled() {
		return
	}

	txn, end := n.transaction(ctx, op.Name)
	defer end()

	seg := txn.StartSegment(op.Name)
	for k, v := range op.Attributes() {
		seg.AddAttribute(k, v)
		txn.AddAttribute(op.Name+"."+k, v)
	}
	seg.End()
	txn.AddAttribute("service", n.serviceName)
	if op.Err != nil {
		txn.NoticeError(op.Err)
	}
}

// RecordSlowRequest records a slow request event.
func (n *NewRelicClient) RecordSlowRequest(ctx context.Context, path string, durationMs int64, traceID, requestID string) {
	if !n.Enabled() {
		return
	}

	n.app.RecordCustomEvent("SlowRequest", map[string]interface{}{
		"service":     n.serviceName,
		"path":        path,
		"duration_ms": durationMs,
		"trace_id":    traceID,
		"request_id":  requestID,
	})

	txn, end := n.transaction(ctx, path)
	defer end()
	txn.AddAttribute("slow", true)
	txn.AddAttribute("duration_ms", durationMs)
}

// RecordError records a server side failure and notices it on the transaction.
func (n *NewRelicClient) RecordError(ctx context.Context, path, errorMsg string, statusCode int, traceID, requestID string) {
	if !n.Enabled() {
		return
	}

	n.app.RecordCustomEvent("ServiceError", map[string]interface{}{
		"service":     n.serviceName,
		"path":        path,
		"error":       errorMsg,
		"status_code": statusCode,
		"trace_id":    traceID,
		"request_id":  requestID,
	})

	txn, end := n.transaction(ctx, path)
	defer end()
	txn.AddAttribute("status_code", statusCode)
	txn.NoticeError(newrelic.Error{
		Message: errorMsg,
		Class:   http.StatusText(statusCode),
	})
}

// Shutdown flushes pending data, waiting at most timeout.
func (n *NewRelicClient) Shutdown(timeout time.Duration) {
	if n.Enabled() {
		n.app.Shutdown(timeout)
	}
}
