package game

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/antonzymin-eng/simcore"
)

// DamageEvent is published by the combat system and consumed by whoever
// subscribes (UI, audio, logging).
type DamageEvent struct {
	Target simcore.EntityID
	Amount int
}

// MovementSystem integrates velocities into positions. It is cheap and purely
// data-parallel, so it runs on the worker pool.
type MovementSystem struct {
	access *simcore.AccessManager
}

func NewMovementSystem(access *simcore.AccessManager) *MovementSystem {
	return &MovementSystem{access: access}
}

func (s *MovementSystem) Name() string { return "movement" }
func (s *MovementSystem) DefaultStrategy() simcore.ThreadingStrategy {
	return simcore.StrategyPool
}
func (s *MovementSystem) Initialize() error { return nil }
func (s *MovementSystem) Shutdown() error   { return nil }

func (s *MovementSystem) Update(delta time.Duration) error {
	dt := delta.Seconds()

	velocities := simcore.ReadAll[Velocity](s.access)
	defer velocities.Release()
	positions := simcore.WriteBatch[Position](s.access, velocities.Entities())
	defer positions.Release()

	velocities.Each(func(id simcore.EntityID, v *Velocity) bool {
		if p, ok := positions.Get(id); ok {
			p.X += v.DX * dt
			p.Y += v.DY * dt
		}
		return true
	})
	return nil
}

// CombatSystem applies queued damage and publishes death notifications. It
// mutates shared state that other main-thread systems observe in the same
// frame, so it stays on the orchestrator thread.
type CombatSystem struct {
	access *simcore.AccessManager
	bus    *simcore.MessageBus
	sub    simcore.Subscription
	kills  atomic.Int64
}

func NewCombatSystem(access *simcore.AccessManager, bus *simcore.MessageBus) *CombatSystem {
	return &CombatSystem{access: access, bus: bus}
}

func (s *CombatSystem) Name() string { return "combat" }
func (s *CombatSystem) DefaultStrategy() simcore.ThreadingStrategy {
	return simcore.StrategyMainThread
}

func (s *CombatSystem) Initialize() error {
	s.sub = simcore.Subscribe(s.bus, func(ev DamageEvent) {
		guard := simcore.WriteComponent[Health](s.access, ev.Target)
		defer guard.Release()
		if !guard.Valid() {
			return
		}
		h := guard.Get()
		h.Current -= ev.Amount
		if h.Current <= 0 {
			h.Current = 0
			s.kills.Add(1)
		}
	})
	return nil
}

func (s *CombatSystem) Update(time.Duration) error {
	// Damage events queued during the previous frame drain here, on the
	// orchestrator thread, before anything downstream reads health.
	s.bus.ProcessQueuedMessages()
	return nil
}

func (s *CombatSystem) Shutdown() error {
	s.bus.Unsubscribe(s.sub)
	return nil
}

// Kills reports how many entities this system has seen die.
func (s *CombatSystem) Kills() int64 { return s.kills.Load() }

// AutosaveSystem counts frames and carries a version-tagged payload through
// the whole-state capture path. Background strategy keeps it off the frame's
// critical path.
type AutosaveSystem struct {
	frames atomic.Uint64
}

func (s *AutosaveSystem) Name() string { return "autosave" }
func (s *AutosaveSystem) DefaultStrategy() simcore.ThreadingStrategy {
	return simcore.StrategyBackground
}
func (s *AutosaveSystem) Initialize() error { return nil }
func (s *AutosaveSystem) Shutdown() error   { return nil }

func (s *AutosaveSystem) Update(time.Duration) error {
	s.frames.Add(1)
	return nil
}

func (s *AutosaveSystem) Serialize(version int) ([]byte, error) {
	return json.Marshal(map[string]any{"version": version, "frames": s.frames.Load()})
}

func (s *AutosaveSystem) Deserialize(data []byte, version int) error {
	var payload struct {
		Frames uint64 `json:"frames"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	s.frames.Store(payload.Frames)
	return nil
}
