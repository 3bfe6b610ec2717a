package degradation

import (
	"fmt"
	"sync"
)

// PermissionResult is the structured answer to a gate check: never a bare
// bool, so callers can surface the current mode/stage and a warning/refusal
// reason without a separate round-trip.
type PermissionResult struct {
	Allowed     bool
	Warning     string
	Restricted  bool
	LocalOnly   bool
	Mode        SystemMode
	Stage       *RecoveryStage
}

type modePermission struct {
	allowed    bool
	restricted bool
	warning    string
	localOnly  bool
}

// modePermissions is the static mode x action matrix. Unknown mode/action
// pairs fall through to a deny-by-default zero value.
var modePermissions = map[SystemMode]map[ActionType]modePermission{
	ModeNormal: {
		ActionOpen:       {allowed: true},
		ActionSend:       {allowed: true},
		ActionAmend:      {allowed: true},
		ActionCancel:     {allowed: true},
		ActionReduceOnly: {allowed: true},
		ActionQuery:      {allowed: true},
	},
	ModeDegraded: {
		ActionOpen:       {allowed: true, restricted: true},
		ActionSend:       {allowed: true},
		ActionAmend:      {allowed: true},
		ActionCancel:     {allowed: true},
		ActionReduceOnly: {allowed: true},
		ActionQuery:      {allowed: true},
	},
	ModeSafeMode: {
		ActionOpen:       {allowed: false},
		ActionSend:       {allowed: false},
		ActionAmend:      {allowed: false},
		ActionCancel:     {allowed: true, warning: "best-effort"},
		ActionReduceOnly: {allowed: true},
		ActionQuery:      {allowed: true},
	},
	ModeSafeModeDisconnected: {
		ActionOpen:       {allowed: false},
		ActionSend:       {allowed: false},
		ActionAmend:      {allowed: false},
		ActionCancel:     {allowed: false},
		ActionReduceOnly: {allowed: false},
		ActionQuery:      {allowed: true, localOnly: true},
	},
	ModeHalt: {
		ActionOpen:       {allowed: false},
		ActionSend:       {allowed: false},
		ActionAmend:      {allowed: false},
		ActionCancel:     {allowed: false},
		ActionReduceOnly: {allowed: false},
		ActionQuery:      {allowed: true},
	},
}

// recoveryStagePermissions supersedes the mode row entirely while
// mode == RECOVERING.
var recoveryStagePermissions = map[RecoveryStage]map[ActionType]bool{
	StageConnectBroker:     {ActionQuery: true},
	StageCatchupMarketData: {ActionQuery: true},
	StageVerifyRisk:        {ActionQuery: true, ActionCancel: true},
	StageReady:             {ActionQuery: true, ActionCancel: true, ActionReduceOnly: true},
}

// TradingGate is the single O(1) permission check every trading call site
// must pass through. It holds no business logic and performs no I/O.
type TradingGate struct {
	mu    sync.RWMutex
	mode  SystemMode
	stage *RecoveryStage
}

// NewTradingGate constructs a gate. Per the cold-start contract, the gate
// starts RECOVERING/CONNECT_BROKER, not NORMAL — nothing but QUERY is
// permitted until the orchestrator advances stages.
func NewTradingGate() *TradingGate {
	stage := StageConnectBroker
	return &TradingGate{mode: ModeRecovering, stage: &stage}
}

// UpdateMode sets the gate's mode (and stage, for RECOVERING). stage must
// be non-nil iff mode == RECOVERING.
func (g *TradingGate) UpdateMode(mode SystemMode, stage *RecoveryStage) error {
	if mode == ModeRecovering && stage == nil {
		return fmt.Errorf("degradation: RECOVERING mode requires a stage")
	}
	if mode != ModeRecovering && stage != nil {
		return fmt.Errorf("degradation: stage only valid for RECOVERING mode")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.mode = mode
	g.stage = stage
	return nil
}

// Mode returns the gate's current mode.
func (g *TradingGate) Mode() SystemMode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mode
}

// Stage returns the gate's current recovery stage, or nil outside RECOVERING.
func (g *TradingGate) Stage() *RecoveryStage {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stage
}

// CheckPermission is the O(1) permission check for a single action.
func (g *TradingGate) CheckPermission(action ActionType) PermissionResult {
	g.mu.RLock()
	mode := g.mode
	stage := g.stage
	g.mu.RUnlock()

	result := PermissionResult{Mode: mode, Stage: stage}

	if mode == ModeRecovering {
		allowedActions := recoveryStagePermissions[*stage]
		result.Allowed = allowedActions[action]
		return result
	}

	perm, ok := modePermissions[mode][action]
	if !ok {
		// Unknown mode/action pair: deny by default.
		return result
	}
	result.Allowed = perm.allowed
	result.Restricted = perm.restricted
	result.Warning = perm.warning
	result.LocalOnly = perm.localOnly
	return result
}

// Allows is a convenience boolean-only check.
func (g *TradingGate) Allows(action ActionType) bool {
	return g.CheckPermission(action).Allowed
}

// AllowsWithWarning reports allowed plus any accompanying warning string.
func (g *TradingGate) AllowsWithWarning(action ActionType) (bool, string) {
	r := g.CheckPermission(action)
	return r.Allowed, r.Warning
}
