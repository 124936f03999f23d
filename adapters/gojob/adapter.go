package gojob

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDDispatch = "integrations.dispatch"
	JobIDRefresh  = "integrations.refresh"
)

const (
	paramOrganizationID = "organization_id"
	paramIntegrationID  = "integration_id"
	paramOperation      = "operation"
	paramParams         = "params"
	paramRetryBudget    = "retry_budget"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	RetryDelay      time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// DispatchJob encodes a dispatch request as a go-job execution message.
func DispatchJob(req core.DispatchRequest, idempotencyKey string) *job.ExecutionMessage {
	params := map[string]any{
		paramOrganizationID: strings.TrimSpace(req.OrganizationID),
		paramIntegrationID:  strings.TrimSpace(req.IntegrationID),
		paramOperation:      strings.TrimSpace(req.Operation),
		paramParams:         map[string]any(req.Params.Clone()),
	}
	if req.RetryBudget > 0 {
		params[paramRetryBudget] = req.RetryBudget
	}
	return &job.ExecutionMessage{
		JobID:          JobIDDispatch,
		ScriptPath:     JobIDDispatch,
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
	}
}

// RefreshJob encodes an explicit refresh. Jobs for the same integration share
// an idempotency key so the queue can collapse duplicates.
func RefreshJob(req core.RefreshIntegrationRequest) *job.ExecutionMessage {
	integrationID := strings.TrimSpace(req.IntegrationID)
	return &job.ExecutionMessage{
		JobID:      JobIDRefresh,
		ScriptPath: JobIDRefresh,
		Parameters: map[string]any{
			paramOrganizationID: strings.TrimSpace(req.OrganizationID),
			paramIntegrationID:  integrationID,
		},
		IdempotencyKey: "refresh:" + integrationID,
	}
}

func DispatchRequestFromJob(msg *job.ExecutionMessage) (core.DispatchRequest, error) {
	if msg == nil {
		return core.DispatchRequest{}, fmt.Errorf("gojob: execution message is required")
	}
	req := core.DispatchRequest{
		OrganizationID: stringParam(msg.Parameters, paramOrganizationID),
		IntegrationID:  stringParam(msg.Parameters, paramIntegrationID),
		Operation:      stringParam(msg.Parameters, paramOperation),
		RetryBudget:    intParam(msg.Parameters, paramRetryBudget),
	}
	if raw, ok := msg.Parameters[paramParams].(map[string]any); ok {
		req.Params = core.Params(raw).Clone()
	}
	if req.IntegrationID == "" || req.Operation == "" {
		return core.DispatchRequest{}, fmt.Errorf("gojob: dispatch job requires integration id and operation")
	}
	return req, nil
}

func RefreshRequestFromJob(msg *job.ExecutionMessage) (core.RefreshIntegrationRequest, error) {
	if msg == nil {
		return core.RefreshIntegrationRequest{}, fmt.Errorf("gojob: execution message is required")
	}
	req := core.RefreshIntegrationRequest{
		OrganizationID: stringParam(msg.Parameters, paramOrganizationID),
		IntegrationID:  stringParam(msg.Parameters, paramIntegrationID),
	}
	if req.IntegrationID == "" {
		return core.RefreshIntegrationRequest{}, fmt.Errorf("gojob: refresh job requires integration id")
	}
	return req, nil
}

type Scheduler struct {
	enqueuer queue.Enqueuer
}

func NewScheduler(enqueuer queue.Enqueuer) *Scheduler {
	return &Scheduler{enqueuer: enqueuer}
}

func (s *Scheduler) EnqueueDispatch(ctx context.Context, req core.DispatchRequest, idempotencyKey string) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	return s.enqueuer.Enqueue(ctx, DispatchJob(req, idempotencyKey))
}

func (s *Scheduler) EnqueueRefresh(ctx context.Context, req core.RefreshIntegrationRequest) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	return s.enqueuer.Enqueue(ctx, RefreshJob(req))
}

// EnqueueDueRefreshes schedules a refresh for every enabled integration of the
// organization whose token expires within window of now. Integrations without
// a known expiry are skipped.
func (s *Scheduler) EnqueueDueRefreshes(
	ctx context.Context,
	lister core.IntegrationLister,
	organizationID string,
	window time.Duration,
	now time.Time,
) (int, error) {
	if lister == nil {
		return 0, fmt.Errorf("gojob: integration lister is required")
	}
	integrations, err := lister.ListByOrganization(ctx, organizationID)
	if err != nil {
		return 0, err
	}
	deadline := now.Add(window)
	scheduled := 0
	for _, integration := range integrations {
		if integration.Disabled || integration.TokenExpiresAt == nil {
			continue
		}
		if integration.TokenExpiresAt.After(deadline) {
			continue
		}
		if err := s.EnqueueRefresh(ctx, core.RefreshIntegrationRequest{
			OrganizationID: integration.OrganizationID,
			IntegrationID:  integration.ID,
		}); err != nil {
			return scheduled, err
		}
		scheduled++
	}
	return scheduled, nil
}

// ExpiringLister is implemented by stores that can select expiring tokens
// across organizations, such as store/sql.IntegrationStore.
type ExpiringLister interface {
	ListExpiring(ctx context.Context, before time.Time, limit int) ([]core.Integration, error)
}

// EnqueueExpiring schedules refreshes for up to limit integrations, in any
// organization, whose token expires within window of now.
func (s *Scheduler) EnqueueExpiring(
	ctx context.Context,
	lister ExpiringLister,
	window time.Duration,
	now time.Time,
	limit int,
) (int, error) {
	if lister == nil {
		return 0, fmt.Errorf("gojob: expiring lister is required")
	}
	integrations, err := lister.ListExpiring(ctx, now.Add(window), limit)
	if err != nil {
		return 0, err
	}
	scheduled := 0
	for _, integration := range integrations {
		if integration.Disabled {
			continue
		}
		if err := s.EnqueueRefresh(ctx, core.RefreshIntegrationRequest{
			OrganizationID: integration.OrganizationID,
			IntegrationID:  integration.ID,
		}); err != nil {
			return scheduled, err
		}
		scheduled++
	}
	return scheduled, nil
}

// JobService is the service surface jobs execute against.
type JobService interface {
	Dispatch(ctx context.Context, req core.DispatchRequest) (core.DispatchResult, error)
	RefreshIntegration(ctx context.Context, req core.RefreshIntegrationRequest) (core.RefreshIntegrationResult, error)
}

// Processor executes dequeued integration jobs and settles each delivery.
// Transient and cancelled failures are requeued under the retry policy; every
// other failure is dead lettered since retrying cannot change the outcome.
type Processor struct {
	service JobService
	policy  RetryPolicy
}

func NewProcessor(service JobService, policy RetryPolicy) *Processor {
	return &Processor{service: service, policy: policy}
}

func (p *Processor) Process(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if p == nil || p.service == nil {
		return fmt.Errorf("gojob: processor service is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	runErr := p.run(ctx, delivery.Message())
	if runErr == nil {
		return delivery.Ack(ctx)
	}

	opts := queue.NackOptions{
		DeadLetter: true,
		Reason:     string(core.KindOf(runErr)),
	}
	if retryable(runErr) {
		opts = queue.NackOptions{
			Delay:   p.policy.RetryDelay,
			Requeue: true,
			Reason:  string(core.KindOf(runErr)),
		}
	}
	// Nack must still reach the queue when ctx itself was the failure cause.
	if err := delivery.Nack(context.WithoutCancel(ctx), p.policy.NormalizeAttempt(opts, attempt)); err != nil {
		return fmt.Errorf("gojob: nack failed: %w (cause: %v)", err, runErr)
	}
	return runErr
}

func (p *Processor) run(ctx context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDDispatch:
		req, err := DispatchRequestFromJob(msg)
		if err != nil {
			return err
		}
		_, err = p.service.Dispatch(ctx, req)
		return err
	case JobIDRefresh:
		req, err := RefreshRequestFromJob(msg)
		if err != nil {
			return err
		}
		_, err = p.service.RefreshIntegration(ctx, req)
		return err
	default:
		return fmt.Errorf("gojob: unsupported job id %q", msg.JobID)
	}
}

func retryable(err error) bool {
	switch core.KindOf(err) {
	case core.KindTransientError, core.KindCancelled:
		return true
	default:
		return false
	}
}

// LoggingHook reports worker lifecycle events through the service logger.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	h.log(ctx, "debug", "integration job started", event)
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.log(ctx, "info", "integration job completed", event)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	h.log(ctx, "error", "integration job failed", event)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	h.log(ctx, "warn", "integration job retry scheduled", event)
}

func (h *LoggingHook) log(ctx context.Context, level string, message string, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	logger := h.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := eventArgs(event)
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

// eventArgs never includes job parameters: dispatch params may carry
// caller-supplied secrets.
func eventArgs(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	args := []any{
		"attempt", event.Attempt,
		"duration_ms", event.Duration.Milliseconds(),
	}
	if message != nil {
		args = append(args,
			"job_id", message.JobID,
			"integration_id", stringParam(message.Parameters, paramIntegrationID),
			"operation", stringParam(message.Parameters, paramOperation),
		)
	}
	if event.Delay > 0 {
		args = append(args, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error(), "error_kind", string(core.KindOf(event.Err)))
	}
	return args
}

func stringParam(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	value, ok := params[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// intParam accepts the numeric shapes a parameter map takes before and after a
// JSON round trip through the queue backend.
func intParam(params map[string]any, key string) int {
	switch typed := params[key].(type) {
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		if typed > 0 && typed < math.MaxInt32 {
			return int(typed)
		}
	}
	return 0
}

var (
	_ worker.Hook = (*LoggingHook)(nil)
	_ JobService  = (*core.Service)(nil)
)
