package game

import (
	"fmt"
	"time"

	"github.com/antonzymin-eng/simcore"
	"github.com/antonzymin-eng/simcore/config"
	"github.com/antonzymin-eng/simcore/slogadapter"
)

// RunExample wires the full stack: config, logging, access manager, message
// bus, system manager. It spawns a few entities, runs a short frame loop,
// queues damage mid-run, and captures a state snapshot at the end.
func RunExample(frames int) error {
	// Missing file falls back to defaults plus SIMCORE_* env overrides.
	cfg, err := config.NewLoader().Load("simcore.yaml")
	if err != nil {
		if cfg, err = config.NewLoader().Load(""); err != nil {
			return err
		}
	}
	logger := slogadapter.New(nil)

	store := NewMemoryStore()
	for i := 0; i < 3; i++ {
		store.Spawn(map[simcore.ComponentType]any{
			simcore.TypeKeyFor[Position](): &Position{X: float64(i)},
			simcore.TypeKeyFor[Velocity](): &Velocity{DX: 1, DY: 0.5},
			simcore.TypeKeyFor[Health]():   &Health{Current: 100, Max: 100},
		})
	}

	access, err := simcore.NewAccessManager(store, simcore.WithAccessLogger(logger))
	if err != nil {
		return err
	}
	bus := simcore.NewMessageBus(simcore.WithBusLogger(logger))

	mgr := simcore.NewSystemManager(access, bus,
		simcore.WithManagerLogger(logger),
		simcore.WithManagerConfig(cfg),
		simcore.WithObservation(simcore.ObservationSettings{
			EnableStructuredLogging: true,
			LoggingFormat:           simcore.ObservationLogFormatKeyValue,
			StructuredLogger:        logger,
		}))
	defer mgr.Shutdown()

	combat := NewCombatSystem(access, bus)
	for _, sys := range []simcore.System{
		NewMovementSystem(access),
		combat,
		&AutosaveSystem{},
	} {
		if err := mgr.AddSystem(sys); err != nil {
			return err
		}
	}
	if err := mgr.Start(); err != nil {
		return err
	}

	target := store.Entities(simcore.TypeKeyFor[Health]())[0]
	for frame := 0; frame < frames; frame++ {
		if frame%10 == 0 {
			simcore.EnqueueWithPriority(bus, DamageEvent{Target: target, Amount: 25},
				simcore.PriorityHigh)
		}
		mgr.Update(16 * time.Millisecond)
	}

	snap, err := mgr.CaptureState(1)
	if err != nil {
		return err
	}
	fmt.Printf("captured %d system payloads at frame %d, kills=%d\n",
		len(snap.Systems), snap.Frame, combat.Kills())
	fmt.Println(mgr.PerformanceReport())
	return nil
}
