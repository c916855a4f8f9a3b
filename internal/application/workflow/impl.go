package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// engineImpl is the concrete implementation of ApprovalEngine
type engineImpl struct {
	instances port.ApprovalInstanceRepository
	matrices  port.ApprovalMatrixRepository
	reports   port.ReportRepository
	expenses  port.ExpenseRepository
	users     port.UserDirectory
	resolver  service.ApproverResolver
	txManager port.TransactionManager
	logger    Logger

	dispatcher dispatcher.Dispatcher
	queue      port.NotificationQueue
	now        func() time.Time
}

// EngineOption configures the approval engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithNotificationQueue sets where notifications are enqueued after each committed transition
func WithNotificationQueue(q port.NotificationQueue) EngineOption {
	return func(e *engineImpl) {
		e.queue = q
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new approval engine
func NewEngine(
	instances port.ApprovalInstanceRepository,
	matrices port.ApprovalMatrixRepository,
	reports port.ReportRepository,
	expenses port.ExpenseRepository,
	users port.UserDirectory,
	resolver service.ApproverResolver,
	txManager port.TransactionManager,
	logger Logger,
	opts ...EngineOption,
) ApprovalEngine {
	e := &engineImpl{
		instances: instances,
		matrices:  matrices,
		reports:   reports,
		expenses:  expenses,
		users:     users,
		resolver:  resolver,
		txManager: txManager,
		logger:    logger,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Submit implements ApprovalEngine
func (e *engineImpl) Submit(ctx context.Context, reportID, submitterID int64) (*Transition, error) {
	report, err := e.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	if report == nil {
		return nil, fmt.Errorf("%w: report %d", domainwf.ErrNotFound, reportID)
	}
	if report.UserID != submitterID {
		return nil, fmt.Errorf("%w: only the report owner may submit", domainwf.ErrGuardFailed)
	}

	matrix, err := e.loadMatrix(ctx, report.CompanyID, entity.RequestTypeExpenseReport)
	if err != nil {
		return nil, err
	}

	previous := domainwf.State(report.Status)
	machine, err := BuildApprovalStateMachine(matrix.LevelCount(), previous)
	if err != nil {
		return nil, err
	}
	if !machine.CanFire(domainwf.TriggerSubmit) {
		return nil, fmt.Errorf("%w: cannot submit from %s", domainwf.ErrInvalidState, previous)
	}
	for _, trigger := range []domainwf.Trigger{domainwf.TriggerSubmit, domainwf.TriggerRoute} {
		if err := machine.Fire(ctx, trigger); err != nil {
			return nil, fmt.Errorf("state machine fire failed: %w", err)
		}
	}
	next := machine.State()

	now := e.now().UTC()
	var instance *entity.ApprovalInstance

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := e.instances.GetByRequest(txCtx, entity.RequestTypeExpenseReport, reportID)
		if err != nil {
			return fmt.Errorf("failed to load approval instance: %w", err)
		}

		if existing == nil {
			instance = &entity.ApprovalInstance{
				RequestID:    reportID,
				RequestType:  entity.RequestTypeExpenseReport,
				CompanyID:    report.CompanyID,
				SubmitterID:  submitterID,
				CurrentLevel: 1,
				TotalLevels:  matrix.LevelCount(),
				Status:       entity.ApprovalStatusPending,
				SubmittedAt:  now,
			}
			if err := e.instances.Create(txCtx, instance); err != nil {
				return fmt.Errorf("failed to create approval instance: %w", err)
			}
		} else {
			instance = existing
			expected := instance.Version
			instance.SubmitterID = submitterID
			instance.CurrentLevel = 1
			instance.TotalLevels = matrix.LevelCount()
			instance.Status = entity.ApprovalStatusPending
			instance.SubmittedAt = now
			instance.CompletedAt = nil
			if err := e.instances.UpdateIfVersion(txCtx, instance, expected); err != nil {
				return err
			}
			if err := e.instances.SupersedeAll(txCtx, instance.ID); err != nil {
				return fmt.Errorf("failed to supersede previous decisions: %w", err)
			}
		}

		if err := e.reports.ClearApproverDecisions(txCtx, reportID); err != nil {
			return fmt.Errorf("failed to clear report approvers: %w", err)
		}
		if err := e.reports.UpdateStatus(txCtx, reportID, next.String()); err != nil {
			return fmt.Errorf("failed to update report status: %w", err)
		}
		if err := e.expenses.UpdateStatusByReport(txCtx, reportID, entity.ExpenseStatusSubmitted); err != nil {
			return fmt.Errorf("failed to update expense statuses: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	instance = e.reload(ctx, instance)

	e.logger.Info("Report submitted for approval",
		"report_id", reportID, "instance_id", instance.ID, "levels", instance.TotalLevels)

	cfg, _ := matrix.Level(1)
	e.notifyApprovers(ctx, instance, cfg, entity.NotificationApprovalRequired, submitterID, "")

	e.publish(ctx, event.NewEvent(event.TypeReportSubmitted, reportID, map[string]interface{}{
		event.KeyCompanyID:  report.CompanyID,
		event.KeyInstanceID: instance.ID,
		event.KeyActorID:    submitterID,
	}))
	e.publishStatusChanged(ctx, instance, previous, next, submitterID)

	return &Transition{Instance: instance, PreviousState: previous, NewState: next}, nil
}

// Decide implements ApprovalEngine
func (e *engineImpl) Decide(ctx context.Context, req DecisionRequest) (*Transition, error) {
	trigger, ok := domainwf.TriggerForDecision(req.Decision)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domainwf.ErrInvalidDecision, req.Decision)
	}

	instance, err := e.GetInstance(ctx, req.RequestType, req.RequestID)
	if err != nil {
		return nil, err
	}
	if instance.IsTerminal() || !instance.IsPending() {
		return nil, fmt.Errorf("%w: instance is %s", domainwf.ErrInvalidState, instance.Status)
	}
	if req.Level != instance.CurrentLevel {
		return nil, fmt.Errorf("%w: decided level %d, current level %d", domainwf.ErrWrongLevel, req.Level, instance.CurrentLevel)
	}

	matrix, err := e.loadMatrix(ctx, instance.CompanyID, instance.RequestType)
	if err != nil {
		return nil, err
	}

	cfg, ok := matrix.Level(req.Level)
	if !ok {
		cfg = entity.ApprovalLevelConfig{Level: req.Level}
	}
	approvers, err := e.resolver.ResolveForInstance(ctx, cfg, instance)
	if err != nil {
		return nil, err
	}
	if !service.ContainsUser(approvers, req.ApproverID) {
		return nil, fmt.Errorf("%w: user %d at level %d", domainwf.ErrUnauthorizedApprover, req.ApproverID, req.Level)
	}
	role, err := e.resolver.ApproverRole(ctx, cfg, instance, findUser(approvers, req.ApproverID))
	if err != nil {
		return nil, err
	}

	previous := domainwf.PendingState(instance.CurrentLevel)
	machine, err := BuildApprovalStateMachine(instance.TotalLevels, previous)
	if err != nil {
		return nil, err
	}
	if err := machine.Fire(ctx, trigger); err != nil {
		return nil, fmt.Errorf("%w: %v", domainwf.ErrInvalidState, err)
	}
	next := machine.State()

	now := e.now().UTC()
	expected := instance.Version
	updated := *instance
	switch {
	case next.IsPending():
		updated.CurrentLevel, _ = next.PendingLevel()
	case next == domainwf.StateApproved:
		updated.Status = entity.ApprovalStatusApproved
		updated.CompletedAt = &now
	case next == domainwf.StateRejected:
		updated.Status = entity.ApprovalStatusRejected
		updated.CompletedAt = &now
	case next == domainwf.StateChangesRequested:
		updated.Status = entity.ApprovalStatusChangesRequested
	}

	decision := &entity.LevelDecision{
		InstanceID: instance.ID,
		Level:      req.Level,
		ApproverID: req.ApproverID,
		Role:       role,
		Decision:   req.Decision,
		Comment:    req.Comment,
		DecidedAt:  now,
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.instances.UpdateIfVersion(txCtx, &updated, expected); err != nil {
			return err
		}
		if err := e.instances.SupersedeLevel(txCtx, instance.ID, req.Level); err != nil {
			return fmt.Errorf("failed to supersede level decisions: %w", err)
		}
		if err := e.instances.AppendDecision(txCtx, decision); err != nil {
			return fmt.Errorf("failed to append decision: %w", err)
		}

		if instance.RequestType != entity.RequestTypeExpenseReport {
			return nil
		}
		return e.applyToReport(txCtx, instance.RequestID, next, decision)
	})
	if err != nil {
		if domainwf.ReasonCode(err) == domainwf.ReasonConflict {
			e.logger.Warn("Decision lost to a concurrent update",
				"instance_id", instance.ID, "level", req.Level, "approver_id", req.ApproverID)
		}
		return nil, err
	}

	result := e.reload(ctx, &updated)

	e.logger.Info("Approval decision recorded",
		"instance_id", result.ID,
		"level", req.Level,
		"approver_id", req.ApproverID,
		"decision", req.Decision,
		"previous_state", previous.String(),
		"new_state", next.String())

	if next.IsPending() {
		nextCfg, ok := matrix.Level(result.CurrentLevel)
		if !ok {
			nextCfg = entity.ApprovalLevelConfig{Level: result.CurrentLevel}
		}
		e.notifyApprovers(ctx, result, nextCfg, entity.NotificationApprovalRequired, req.ApproverID, req.Decision)
	} else {
		e.enqueue(entity.NotificationStatusChange, e.payload(result, next, req.ApproverID, req.Decision, req.Comment, []int64{result.SubmitterID}))
	}

	e.publish(ctx, event.NewEvent(event.TypeApprovalDecided, result.ID, map[string]interface{}{
		event.KeyReportID: result.RequestID,
		event.KeyLevel:    req.Level,
		event.KeyDecision: req.Decision,
		event.KeyActorID:  req.ApproverID,
	}))
	e.publishStatusChanged(ctx, result, previous, next, req.ApproverID)

	return &Transition{Instance: result, PreviousState: previous, NewState: next}, nil
}

// AddApprover implements ApprovalEngine. Only an eligible approver of the current level may add one.
func (e *engineImpl) AddApprover(ctx context.Context, requestType string, requestID int64, level int, userID, addedBy int64) error {
	instance, err := e.GetInstance(ctx, requestType, requestID)
	if err != nil {
		return err
	}
	if !instance.IsPending() {
		return fmt.Errorf("%w: instance is %s", domainwf.ErrInvalidState, instance.Status)
	}
	if level < instance.CurrentLevel || level > instance.TotalLevels {
		return fmt.Errorf("%w: level %d is not pending", domainwf.ErrWrongLevel, level)
	}

	matrix, err := e.loadMatrix(ctx, instance.CompanyID, instance.RequestType)
	if err != nil {
		return err
	}
	current, ok := matrix.Level(instance.CurrentLevel)
	if !ok {
		current = entity.ApprovalLevelConfig{Level: instance.CurrentLevel}
	}
	approvers, err := e.resolver.ResolveForInstance(ctx, current, instance)
	if err != nil {
		return err
	}
	if !service.ContainsUser(approvers, addedBy) {
		return fmt.Errorf("%w: user %d may not add approvers", domainwf.ErrUnauthorizedApprover, addedBy)
	}

	added, err := e.users.ListActiveByIDs(ctx, instance.CompanyID, []int64{userID})
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if len(added) == 0 {
		return fmt.Errorf("%w: active user %d", domainwf.ErrNotFound, userID)
	}

	if err := e.instances.AddExtraApprover(ctx, instance.ID, level, userID); err != nil {
		return fmt.Errorf("failed to add approver: %w", err)
	}

	e.logger.Info("Additional approver added",
		"instance_id", instance.ID, "level", level, "user_id", userID, "added_by", addedBy)

	payload := e.payload(instance, domainwf.PendingState(instance.CurrentLevel), addedBy, "", "", []int64{userID})
	payload.Level = level
	e.enqueue(entity.NotificationAdditionalApprover, payload)

	e.publish(ctx, event.NewEvent(event.TypeApproverAdded, instance.ID, map[string]interface{}{
		event.KeyReportID: instance.RequestID,
		event.KeyLevel:    level,
		event.KeyActorID:  addedBy,
	}))
	return nil
}

// GetInstance implements ApprovalEngine
func (e *engineImpl) GetInstance(ctx context.Context, requestType string, requestID int64) (*entity.ApprovalInstance, error) {
	if requestType == "" {
		requestType = entity.RequestTypeExpenseReport
	}
	instance, err := e.instances.GetByRequest(ctx, requestType, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval instance: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: %s %d has no approval instance", domainwf.ErrNotFound, requestType, requestID)
	}
	return instance, nil
}

func (e *engineImpl) loadMatrix(ctx context.Context, companyID int64, requestType string) (*entity.ApprovalMatrix, error) {
	matrix, err := e.matrices.GetMatrix(ctx, companyID, requestType)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval matrix: %w", err)
	}
	if matrix == nil || matrix.LevelCount() == 0 {
		return nil, fmt.Errorf("%w: company %d, %s", domainwf.ErrNoApprovalMatrix, companyID, requestType)
	}
	return matrix, nil
}

// applyToReport mirrors a committed decision onto the report and its expenses
func (e *engineImpl) applyToReport(ctx context.Context, reportID int64, next domainwf.State, d *entity.LevelDecision) error {
	if err := e.reports.UpsertApproverDecision(ctx, reportID, entity.ApproverDecision{
		Level:      d.Level,
		ApproverID: d.ApproverID,
		Role:       d.Role,
		Decision:   d.Decision,
		Comment:    d.Comment,
		DecidedAt:  d.DecidedAt,
	}); err != nil {
		return fmt.Errorf("failed to record report approver: %w", err)
	}
	if err := e.reports.UpdateStatus(ctx, reportID, next.String()); err != nil {
		return fmt.Errorf("failed to update report status: %w", err)
	}

	var expenseStatus string
	switch next {
	case domainwf.StateApproved:
		expenseStatus = entity.ExpenseStatusApproved
	case domainwf.StateRejected:
		expenseStatus = entity.ExpenseStatusRejected
	case domainwf.StateChangesRequested:
		expenseStatus = entity.ExpenseStatusDraft
	default:
		return nil
	}
	if err := e.expenses.UpdateStatusByReport(ctx, reportID, expenseStatus); err != nil {
		return fmt.Errorf("failed to update expense statuses: %w", err)
	}
	return nil
}

// notifyApprovers enqueues one notification to the eligible approvers of cfg.
// An empty approver set is logged and published, never treated as a failure.
func (e *engineImpl) notifyApprovers(ctx context.Context, instance *entity.ApprovalInstance, cfg entity.ApprovalLevelConfig, kind entity.NotificationType, actorID int64, decision string) {
	approvers, err := e.resolver.ResolveForInstance(ctx, cfg, instance)
	if err != nil {
		e.logger.Error("Failed to resolve approvers for notification",
			"instance_id", instance.ID, "level", cfg.Level, "error", err)
		return
	}
	if len(approvers) == 0 {
		e.logger.Warn("No eligible approvers for active level",
			"instance_id", instance.ID, "company_id", instance.CompanyID, "level", cfg.Level)
		e.publish(ctx, event.NewEvent(event.TypeApproversMissing, instance.ID, map[string]interface{}{
			event.KeyCompanyID: instance.CompanyID,
			event.KeyReportID:  instance.RequestID,
			event.KeyLevel:     cfg.Level,
		}))
		return
	}

	recipients := make([]int64, 0, len(approvers))
	for _, u := range approvers {
		recipients = append(recipients, u.ID)
	}
	payload := e.payload(instance, domainwf.PendingState(cfg.Level), actorID, decision, "", recipients)
	payload.Level = cfg.Level
	e.enqueue(kind, payload)
}

func (e *engineImpl) payload(instance *entity.ApprovalInstance, state domainwf.State, actorID int64, decision, comment string, recipients []int64) entity.NotificationPayload {
	return entity.NotificationPayload{
		RequestType:  instance.RequestType,
		RequestID:    instance.RequestID,
		InstanceID:   instance.ID,
		CompanyID:    instance.CompanyID,
		Level:        instance.CurrentLevel,
		Status:       state.String(),
		Decision:     decision,
		ActorID:      actorID,
		Comment:      comment,
		RecipientIDs: recipients,
	}
}

func (e *engineImpl) enqueue(kind entity.NotificationType, payload entity.NotificationPayload) {
	if e.queue == nil {
		return
	}
	taskID := e.queue.Enqueue(kind, payload)
	e.logger.Info("Notification enqueued",
		"task_id", taskID, "type", string(kind), "instance_id", payload.InstanceID, "recipients", len(payload.RecipientIDs))
}

func (e *engineImpl) publish(ctx context.Context, evt *event.Event) {
	if e.dispatcher != nil {
		e.dispatcher.DispatchAsync(ctx, evt)
	}
}

func (e *engineImpl) publishStatusChanged(ctx context.Context, instance *entity.ApprovalInstance, previous, next domainwf.State, actorID int64) {
	e.publish(ctx, event.NewEvent(event.TypeStatusChanged, instance.ID, map[string]interface{}{
		event.KeyReportID:       instance.RequestID,
		event.KeyPreviousStatus: previous.String(),
		event.KeyNewStatus:      next.String(),
		event.KeyActorID:        actorID,
	}))
}

// reload returns the stored instance with its history, falling back to the in-memory copy
func (e *engineImpl) reload(ctx context.Context, instance *entity.ApprovalInstance) *entity.ApprovalInstance {
	fresh, err := e.instances.GetByID(ctx, instance.ID)
	if err != nil || fresh == nil {
		e.logger.Warn("Failed to reload approval instance", "instance_id", instance.ID, "error", err)
		return instance
	}
	return fresh
}

func findUser(users []*entity.User, id int64) *entity.User {
	for _, u := range users {
		if u.ID == id {
			return u
		}
	}
	return nil
}
