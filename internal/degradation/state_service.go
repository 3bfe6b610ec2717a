package degradation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// decisionMatrix maps a critical/recovery reason code to the mode it
// implies on its own. BROKER_RECONNECTED and ALL_HEALTHY are the only
// recovery-side entries: they're interpreted as direct instructions (drive
// RECOVERING, or let the orchestrator complete to NORMAL) rather than
// component-failure signals.
//
// POSITION_TRUTH_UNKNOWN maps to HALT: losing track of whether a position
// exists is the single most dangerous state a trading system can be in, and
// every other HALT-triggering reason code in this table is similarly
// irreversible without an operator (see SPEC_FULL.md open-question notes).
var decisionMatrix = map[ReasonCode]SystemMode{
	ReasonBrokerDisconnect:   ModeSafeModeDisconnected,
	ReasonPositionUnknown:    ModeHalt,
	ReasonBrokerMismatch:     ModeSafeMode,
	ReasonDBWriteFail:        ModeDegraded,
	ReasonDBBufferOverflow:   ModeDegraded,
	ReasonMarketDataStale:    ModeDegraded,
	ReasonMarketDataDegraded: ModeDegraded,
	ReasonRiskTimeout:        ModeDegraded,
	ReasonRiskBreachHard:     ModeHalt,
	ReasonBrokerReconnected:  ModeRecovering,
	ReasonAllHealthy:         ModeNormal,
}

// overrideState is the active operator override, if any.
type overrideState struct {
	mode             SystemMode
	operatorID       string
	reason           string
	expiresAtMono    time.Time
	allowsDowngrade  bool
}

// SystemStateService is the single source of truth for the system mode. It
// subscribes to every event on the EventBus, maintains per-component
// hysteresis status, and pushes mode transitions into the TradingGate.
type SystemStateService struct {
	config DegradationConfig
	gate   *TradingGate
	log    zerolog.Logger

	mu               sync.Mutex
	mode             SystemMode
	stage            *RecoveryStage
	components       map[ComponentSource]*ComponentStatus
	history          []ModeTransition
	override         *overrideState
	enteredModeMono  time.Time

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSystemStateService constructs the service. It starts in RECOVERING to
// match the TradingGate's cold-start contract.
func NewSystemStateService(config DegradationConfig, gate *TradingGate, log zerolog.Logger) *SystemStateService {
	stage := StageConnectBroker
	return &SystemStateService{
		config:          config,
		gate:            gate,
		log:             log.With().Str("component", "system_state").Logger(),
		mode:            ModeRecovering,
		stage:           &stage,
		components:      make(map[ComponentSource]*ComponentStatus),
		enteredModeMono: time.Now(),
	}
}

// Mode returns the current system mode.
func (s *SystemStateService) Mode() SystemMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Stage returns the current recovery stage, or nil outside RECOVERING.
func (s *SystemStateService) Stage() *RecoveryStage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// StateSnapshot is the read-only view returned by Snapshot.
type StateSnapshot struct {
	Mode       SystemMode
	Stage      *RecoveryStage
	Components map[ComponentSource]ComponentStatus
}

// Snapshot returns a consistent copy of mode, stage, and per-component status.
func (s *SystemStateService) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	components := make(map[ComponentSource]ComponentStatus, len(s.components))
	for src, status := range s.components {
		components[src] = *status
	}
	return StateSnapshot{Mode: s.mode, Stage: s.stage, Components: components}
}

// History returns a copy of the append-only ModeTransition log.
func (s *SystemStateService) History() []ModeTransition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ModeTransition, len(s.history))
	copy(out, s.history)
	return out
}

// HandleEvent is the EventBus subscriber entry point: it updates component
// status, recomputes the target mode, and — if the effective mode changed —
// appends a ModeTransition and pushes the new mode into the TradingGate.
//
// All of "compute target mode -> emit transition -> update gate" happens
// under a single mutex so the sequence is atomic with respect to concurrent
// events and reads.
func (s *SystemStateService) HandleEvent(event SystemEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyComponentUpdate(event)
	s.recomputeLocked(event.EventTimeMono, &event)
}

// applyComponentUpdate updates the ComponentStatus for event.Source based on
// the event's type. Caller must hold s.mu.
func (s *SystemStateService) applyComponentUpdate(event SystemEvent) {
	status, ok := s.components[event.Source]
	if !ok {
		status = &ComponentStatus{Source: event.Source, Level: LevelHealthy}
		s.components[event.Source] = status
	}

	status.LastEvent = &event
	status.LastUpdateMono = event.EventTimeMono

	switch event.EventType {
	case EventFailCritical:
		if status.Level != LevelTripped {
			now := event.EventTimeMono
			status.UnstableSinceMono = &now
		}
		status.Level = LevelTripped
		status.ConsecutiveFailures++
	case EventQualityDegraded:
		if status.Level == LevelHealthy {
			now := event.EventTimeMono
			status.UnstableSinceMono = &now
		}
		if status.Level != LevelTripped {
			status.Level = LevelUnstable
		}
		status.ConsecutiveFailures++
	case EventRecovered:
		status.Level = LevelHealthy
		status.ConsecutiveFailures = 0
		status.UnstableSinceMono = nil
	}
}

// recomputeLocked derives the target mode from currently-tripped component
// reasons plus the event that just fired, applies any active operator
// override, enforces mode-dwell, and transitions if the effective mode
// differs from the current one. triggerEvent is the event that caused this
// recompute, or nil for a background tick. Caller must hold s.mu.
func (s *SystemStateService) recomputeLocked(nowMono time.Time, triggerEvent *SystemEvent) {
	s.expireOverrideLocked(nowMono)

	target := s.computeRawTargetLocked(triggerEvent)

	effective := target
	var operatorID *string
	if s.override != nil {
		if s.override.allowsDowngrade || ModePriority(s.override.mode) >= ModePriority(target) {
			effective = s.override.mode
		} else {
			effective = MaxByPriority(target, s.override.mode)
		}
		opID := s.override.operatorID
		operatorID = &opID
	}

	if effective == s.mode {
		return
	}

	// Dwell: SAFE_MODE/HALT must be held for min_safe_mode_seconds before a
	// less-severe transition is allowed. Deferral just means "don't
	// transition yet" — the next HandleEvent/tick will re-evaluate.
	if (s.mode == ModeSafeMode || s.mode == ModeHalt) && ModePriority(effective) < ModePriority(s.mode) {
		dwellElapsed := nowMono.Sub(s.enteredModeMono).Seconds()
		if dwellElapsed < s.config.MinSafeModeSeconds {
			return
		}
	}

	s.transitionLocked(effective, operatorID, nowMono)
}

// computeRawTargetLocked maps every currently-tripped component's active
// reason through the decision matrix and returns the highest-priority
// resulting mode, or NORMAL if nothing is tripped.
//
// A RECOVERED event clears the reporting component's level to HEALTHY before
// this runs (see applyComponentUpdate), so a recovery reason code would
// otherwise vanish from the loop below the instant it fires. triggerEvent
// carries that just-applied event back in so its reason code — e.g.
// BROKER_RECONNECTED, which must drive RECOVERING rather than let the system
// fall through to NORMAL — is still folded into the merge.
func (s *SystemStateService) computeRawTargetLocked(triggerEvent *SystemEvent) SystemMode {
	target := ModeNormal
	for _, status := range s.components {
		if status.Level != LevelTripped || status.LastEvent == nil {
			continue
		}
		if mapped, ok := decisionMatrix[status.LastEvent.ReasonCode]; ok {
			target = MaxByPriority(target, mapped)
		}
	}
	if triggerEvent != nil && triggerEvent.EventType == EventRecovered {
		if mapped, ok := decisionMatrix[triggerEvent.ReasonCode]; ok {
			target = MaxByPriority(target, mapped)
		}
	}
	return target
}

func (s *SystemStateService) transitionLocked(newMode SystemMode, operatorID *string, nowMono time.Time) {
	from := s.mode
	s.mode = newMode
	s.enteredModeMono = nowMono

	if newMode == ModeRecovering {
		stage := StageConnectBroker
		s.stage = &stage
	} else {
		s.stage = nil
	}

	transition := ModeTransition{
		FromMode:      from,
		ToMode:        newMode,
		Source:        SourceSystem,
		TimestampWall: time.Now(),
		TimestampMono: nowMono,
		OperatorID:    operatorID,
	}
	s.history = append(s.history, transition)

	if err := s.gate.UpdateMode(newMode, s.stage); err != nil {
		s.log.Error().Err(err).Msg("failed to push mode into trading gate")
	}

	s.log.Info().
		Str("from", from.String()).
		Str("to", newMode.String()).
		Msg("system mode transition")
}

// UpdateRecoveryStage is called by the RecoveryOrchestrator as it advances
// through stages while mode == RECOVERING.
func (s *SystemStateService) UpdateRecoveryStage(stage RecoveryStage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeRecovering {
		return
	}
	s.stage = &stage
	if err := s.gate.UpdateMode(s.mode, s.stage); err != nil {
		s.log.Error().Err(err).Msg("failed to push recovery stage into trading gate")
	}
}

// ForceMode installs an operator override. TTLs are measured on the
// monotonic clock; on expiry the service re-evaluates and may emit another
// transition automatically (see expireOverrideLocked, driven by the
// background tick loop started in Start).
func (s *SystemStateService) ForceMode(ctx context.Context, mode SystemMode, ttlSeconds float64, operatorID string, reason string) error {
	if operatorID == "" {
		return fmt.Errorf("degradation: ForceMode requires an operator id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.override = &overrideState{
		mode:          mode,
		operatorID:    operatorID,
		reason:        reason,
		expiresAtMono: now.Add(durationFromSeconds(ttlSeconds)),
	}
	s.recomputeLocked(now, nil)
	return nil
}

// expireOverrideLocked clears an expired override. Caller must hold s.mu.
func (s *SystemStateService) expireOverrideLocked(nowMono time.Time) {
	if s.override == nil {
		return
	}
	if nowMono.Before(s.override.expiresAtMono) {
		return
	}
	s.override = nil
}

// Start spawns a background goroutine that periodically re-evaluates the
// target mode so that override TTL expiry and dwell-deferred transitions
// resolve even with no new incoming events.
func (s *SystemStateService) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.tickLoop(ctx)
}

// Stop cancels the background re-evaluation goroutine idempotently.
func (s *SystemStateService) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.runMu.Unlock()

	cancel()
	<-done
}

func (s *SystemStateService) tickLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.recomputeLocked(time.Now(), nil)
			s.mu.Unlock()
		}
	}
}
