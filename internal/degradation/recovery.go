package degradation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// stageOrder is the fixed progression every recovery run walks through.
var stageOrder = []RecoveryStage{
	StageConnectBroker,
	StageCatchupMarketData,
	StageVerifyRisk,
	StageReady,
}

// StateTransitioner is the subset of SystemStateService the orchestrator
// needs, kept as an interface so recovery logic is testable without a full
// state service.
type StateTransitioner interface {
	Mode() SystemMode
	HandleEvent(event SystemEvent)
	UpdateRecoveryStage(stage RecoveryStage)
	ForceMode(ctx context.Context, mode SystemMode, ttlSeconds float64, operatorID string, reason string) error
}

// RecoveryOrchestrator drives the system from a degraded/safe state back to
// NORMAL through explicit stages. Each invocation is a run identified by a
// fresh run_id; starting a new run cancels any in-flight run.
type RecoveryOrchestrator struct {
	config       DegradationConfig
	stateService StateTransitioner
	brokerProbe  Probe
	marketProbe  Probe
	riskProbe    Probe
	log          zerolog.Logger

	mu              sync.Mutex
	currentRunID    string
	currentStage    *RecoveryStage
	trigger         RecoveryTrigger
	operatorID      *string
	stageStartMono  time.Time
}

// NewRecoveryOrchestrator constructs an orchestrator. Probes may be nil in
// tests that only exercise run-id idempotency and dwell logic; nil probes
// fail their stage check rather than panicking.
func NewRecoveryOrchestrator(config DegradationConfig, stateService StateTransitioner, brokerProbe, marketProbe, riskProbe Probe, log zerolog.Logger) *RecoveryOrchestrator {
	return &RecoveryOrchestrator{
		config:       config,
		stateService: stateService,
		brokerProbe:  brokerProbe,
		marketProbe:  marketProbe,
		riskProbe:    riskProbe,
		log:          log.With().Str("component", "recovery_orchestrator").Logger(),
	}
}

// CurrentRunID returns the active run id, or "" if no recovery is in progress.
func (o *RecoveryOrchestrator) CurrentRunID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentRunID
}

// CurrentStage returns the active recovery stage, or nil.
func (o *RecoveryOrchestrator) CurrentStage() *RecoveryStage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentStage
}

// IsRecovering reports whether a recovery run is in progress.
func (o *RecoveryOrchestrator) IsRecovering() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentRunID != ""
}

// StartRecovery begins a new recovery run, cancelling any in-flight run.
// Idempotent by replacement: the returned run_id is always fresh.
func (o *RecoveryOrchestrator) StartRecovery(ctx context.Context, trigger RecoveryTrigger, operatorID *string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.currentRunID != "" {
		o.log.Info().Str("old_run_id", o.currentRunID).Msg("cancelling existing recovery to start new one")
		o.clearStateLocked()
	}

	runID := fmt.Sprintf("recovery-%s", uuid.New().String()[:8])
	o.currentRunID = runID
	o.trigger = trigger
	o.operatorID = operatorID
	stage := StageConnectBroker
	o.currentStage = &stage
	o.stageStartMono = time.Now()

	if o.stateService.Mode() != ModeRecovering {
		event := NewSystemEvent(EventRecovered, SourceSystem, SeverityInfo, ReasonBrokerReconnected, map[string]any{
			"run_id":  runID,
			"trigger": string(trigger),
		}, nil)
		o.stateService.HandleEvent(event)
	}
	o.stateService.UpdateRecoveryStage(stage)

	o.log.Info().Str("run_id", runID).Str("trigger", string(trigger)).Str("stage", stage.String()).Msg("recovery started")
	return runID, nil
}

// AdvanceStage validates run_id, runs the current stage's check, and either
// advances to the next stage or completes the run at READY. Returns false
// (not an error) for a stale run_id or a failed stage check, matching the
// "operator misuse fails clearly, state unchanged" policy.
func (o *RecoveryOrchestrator) AdvanceStage(ctx context.Context, runID string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.validateRunIDLocked(runID) {
		return false, nil
	}

	passed := o.checkStageLocked(ctx, *o.currentStage)
	if !passed {
		o.log.Debug().Str("stage", o.currentStage.String()).Str("run_id", runID).Msg("stage check failed")
		return false, nil
	}

	currentIdx := indexOfStage(*o.currentStage)
	if currentIdx >= len(stageOrder)-1 {
		o.completeRecoveryLocked()
		return true, nil
	}

	next := stageOrder[currentIdx+1]
	o.currentStage = &next
	o.stageStartMono = time.Now()
	o.stateService.UpdateRecoveryStage(next)

	o.log.Info().Str("stage", next.String()).Str("run_id", runID).Msg("recovery advanced")
	return true, nil
}

// AbortRecovery clears run state and forces SAFE_MODE with the configured
// minimum dwell.
func (o *RecoveryOrchestrator) AbortRecovery(ctx context.Context, runID string, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.validateRunIDLocked(runID) {
		return nil
	}

	o.log.Warn().Str("run_id", runID).Str("reason", reason).Msg("recovery aborted")

	operatorID := "system"
	if o.operatorID != nil {
		operatorID = *o.operatorID
	}
	o.clearStateLocked()

	return o.stateService.ForceMode(ctx, ModeSafeMode, o.config.MinSafeModeSeconds, operatorID, fmt.Sprintf("Recovery aborted: %s", reason))
}

func (o *RecoveryOrchestrator) validateRunIDLocked(runID string) bool {
	if o.currentRunID == "" {
		return false
	}
	return runID == o.currentRunID
}

// checkStageLocked runs the predicate for the given stage. CONNECT_BROKER,
// CATCHUP_MARKETDATA, and VERIFY_RISK each require their Probe to report
// healthy. READY requires strict dwell: see checkReadyStableLocked.
func (o *RecoveryOrchestrator) checkStageLocked(ctx context.Context, stage RecoveryStage) bool {
	switch stage {
	case StageConnectBroker:
		return probeHealthy(ctx, o.brokerProbe)
	case StageCatchupMarketData:
		return probeHealthy(ctx, o.marketProbe)
	case StageVerifyRisk:
		return probeHealthy(ctx, o.riskProbe)
	case StageReady:
		return o.checkReadyStableLocked()
	default:
		return false
	}
}

func probeHealthy(ctx context.Context, p Probe) bool {
	if p == nil {
		return false
	}
	return p.HealthCheck(ctx).Healthy
}

// checkReadyStableLocked enforces strict dwell: the stage passes if and
// only if the elapsed time since entering READY is at least
// recovery_stable_seconds. Unlike the source this was distilled from, there
// is no unconditional "always pass" fallback — a premature check simply
// fails, the same as any other stage's failed check.
func (o *RecoveryOrchestrator) checkReadyStableLocked() bool {
	elapsed := time.Since(o.stageStartMono).Seconds()
	required := o.config.RecoveryStableSeconds
	if elapsed >= required {
		o.log.Debug().Float64("elapsed", elapsed).Float64("required", required).Msg("ready stage stable")
		return true
	}
	o.log.Debug().Float64("elapsed", elapsed).Float64("required", required).Msg("ready stage not yet stable")
	return false
}

func (o *RecoveryOrchestrator) completeRecoveryLocked() {
	runID := o.currentRunID
	o.log.Info().Str("run_id", runID).Msg("recovery completed")
	o.clearStateLocked()

	event := NewSystemEvent(EventRecovered, SourceSystem, SeverityInfo, ReasonAllHealthy, map[string]any{
		"recovery_completed": true,
	}, nil)
	o.stateService.HandleEvent(event)
}

func (o *RecoveryOrchestrator) clearStateLocked() {
	o.currentRunID = ""
	o.currentStage = nil
	o.operatorID = nil
}

func indexOfStage(stage RecoveryStage) int {
	for i, s := range stageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}
