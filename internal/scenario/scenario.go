// Package scenario builds rigs procedurally into a scene, drives their
// roots with host motion and ticks a scheduler over them.
package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/springsim/internal/config"
	"github.com/san-kum/springsim/internal/force"
	"github.com/san-kum/springsim/internal/hierarchy"
	"github.com/san-kum/springsim/internal/logger"
	"github.com/san-kum/springsim/internal/metrics"
	"github.com/san-kum/springsim/internal/physics"
	"github.com/san-kum/springsim/internal/rig"
	"github.com/san-kum/springsim/internal/scheduler"
)

// Spacing separates rig origins along X.
const Spacing = 1.0

// Instance is one built and registered rig.
type Instance struct {
	Rig    *rig.Rig
	Kind   string
	Root   hierarchy.NodeID
	Origin mgl64.Vec3
}

type Scenario struct {
	Name      string
	Scene     *hierarchy.Scene
	Scheduler *scheduler.Scheduler
	Rigs      []*Instance
	Wind      *force.WindProvider
	Push      *force.StaticProvider

	log       *slog.Logger
	motion    Motion
	dt        float64
	frame     int
	time      float64
	metrics   []metrics.Metric
	observers []metrics.Observer
	states    []physics.BoneState
}

type Result struct {
	Frames  int
	Metrics map[string]float64
	Stats   scheduler.Stats
	Elapsed time.Duration
}

// New builds every rig in cfg and registers it with a fresh scheduler.
func New(name string, cfg *config.Config, reg *Registry, log *slog.Logger) (*Scenario, error) {
	log = logger.Or(log)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	motion, err := reg.GetMotion(cfg.Run.Motion)
	if err != nil {
		return nil, err
	}
	sc, err := cfg.SchedulerOptions()
	if err != nil {
		return nil, err
	}

	scene := hierarchy.NewScene()
	sched, err := scheduler.New(sc, scene, log)
	if err != nil {
		return nil, err
	}
	s := &Scenario{
		Name:      name,
		Scene:     scene,
		Scheduler: sched,
		log:       log,
		motion:    motion,
		dt:        cfg.Dt(),
	}

	for i, rc := range cfg.Rigs {
		inst, err := s.build(reg, rc, mgl64.Vec3{float64(i) * Spacing, 1.6, 0})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("rig %q: %w", rc.Name, err)
		}
		s.Rigs = append(s.Rigs, inst)
	}

	if cfg.Run.Wind > 0 {
		s.Wind = force.NewWindProvider(force.Component{
			Kind:         force.Wind,
			Rotation:     mgl64.QuatBetweenVectors(mgl64.Vec3{0, 0, 1}, mgl64.Vec3{1, 0, 0}),
			Strength:     cfg.Run.Wind,
			PeakDistance: 2,
			Offset:       mgl64.Vec3{0.3, 0, 0.3},
		})
		if err := sched.AddForceProvider(s.Wind); err != nil {
			s.Close()
			return nil, err
		}
	}
	if cfg.Run.Push > 0 {
		s.Push = force.NewStaticProvider(force.Component{
			Kind:     force.Directional,
			Rotation: mgl64.QuatBetweenVectors(mgl64.Vec3{0, 0, 1}, mgl64.Vec3{1, 0, 0}),
			Strength: cfg.Run.Push,
		})
		if err := sched.AddForceProvider(s.Push); err != nil {
			s.Close()
			return nil, err
		}
	}
	log.Info("scenario ready", "name", name, "rigs", len(s.Rigs), "mode", sched.Mode(), "workers", sched.Workers())
	return s, nil
}

func (s *Scenario) build(reg *Registry, rc config.RigConfig, origin mgl64.Vec3) (*Instance, error) {
	kind := rc.Kind
	if kind == "" {
		kind = config.DefaultKind
	}
	builder, err := reg.GetBuilder(kind)
	if err != nil {
		return nil, err
	}
	preset, err := rc.Resolve()
	if err != nil {
		return nil, err
	}
	size := rc.Size
	if size <= 0 {
		size = config.DefaultRigSize
	}

	b := builder(s.Scene, rc.Name, origin, size, preset.Bone)
	setup, err := rig.Assemble(s.Scene, b.Bones, b.Colliders, s.log)
	if err != nil {
		return nil, err
	}
	r, err := rig.New(rc.Name, setup, preset.Params)
	if err != nil {
		return nil, err
	}
	if err := s.Scheduler.Register(r); err != nil {
		return nil, err
	}
	return &Instance{Rig: r, Kind: kind, Root: b.Root, Origin: origin}, nil
}

func (s *Scenario) AddMetric(m metrics.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Scenario) AddObserver(o metrics.Observer) { s.observers = append(s.observers, o) }

// Frame returns the number of frames stepped so far.
func (s *Scenario) Frame() int { return s.frame }

// Time returns the host time of the last step.
func (s *Scenario) Time() float64 { return s.time }

// Step moves every root, ticks the scheduler and feeds the observers.
func (s *Scenario) Step() error {
	s.frame++
	s.time += s.dt
	offset := s.motion(s.time)
	for _, inst := range s.Rigs {
		s.Scene.SetLocalPose(inst.Root, hierarchy.Pose{
			Position: inst.Origin.Add(offset.Position),
			Rotation: offset.Rotation,
		})
	}

	s.Scheduler.Tick(s.dt)
	if len(s.metrics) == 0 && len(s.observers) == 0 {
		return nil
	}

	for _, inst := range s.Rigs {
		var err error
		if s.states, err = s.Scheduler.States(inst.Rig, s.states); err != nil {
			return err
		}
		f := metrics.Frame{
			Index:  s.frame,
			Time:   s.time,
			Dt:     inst.Rig.Params().Step(s.dt),
			Rig:    inst.Rig.Name(),
			Bones:  inst.Rig.Setup().Bones,
			States: s.states,
		}
		for _, m := range s.metrics {
			m.Observe(f)
		}
		for _, o := range s.observers {
			o.OnFrame(f)
		}
	}
	return nil
}

// Run steps frames times or until ctx is done, then joins the scheduler.
// A cancelled run still reports what it simulated along with ctx.Err().
func (s *Scenario) Run(ctx context.Context, frames int) (*Result, error) {
	for _, m := range s.metrics {
		m.Reset()
	}
	start := time.Now()
	res := &Result{Metrics: make(map[string]float64)}

	var err error
loop:
	for i := 0; i < frames; i++ {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		default:
		}
		if err := s.Step(); err != nil {
			s.Scheduler.Flush()
			return res, err
		}
		res.Frames++
	}
	s.Scheduler.Flush()
	res.Elapsed = time.Since(start)

	for _, m := range s.metrics {
		res.Metrics[m.Name()] = m.Value()
	}
	res.Stats = s.Scheduler.Stats()
	if res.Stats.Anomalies > 0 {
		s.log.Warn("numeric anomalies during run", "scenario", s.Name, "count", res.Stats.Anomalies)
	}
	return res, err
}

// RigNames lists the rigs in build order.
func (s *Scenario) RigNames() []string {
	names := make([]string, len(s.Rigs))
	for i, inst := range s.Rigs {
		names[i] = inst.Rig.Name()
	}
	return names
}

// Close deregisters every rig.
func (s *Scenario) Close() {
	s.Scheduler.Close()
}
