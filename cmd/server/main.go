package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"idle-engine/core/content"
	"idle-engine/core/internal/automation"
	"idle-engine/core/internal/condition"
	"idle-engine/core/internal/entity"
	"idle-engine/core/internal/events"
	"idle-engine/core/internal/formula"
	enginenet "idle-engine/core/internal/net"
	"idle-engine/core/internal/prd"
	"idle-engine/core/internal/resources"
	"idle-engine/core/internal/saves"
	"idle-engine/core/internal/sim"
	"idle-engine/core/internal/telemetry"
	"idle-engine/core/internal/transform"
	"idle-engine/core/logging"
	"idle-engine/core/logging/sinks"
)

// conditionState adapts the resource ledger to the context condition
// expressions read. Generator and upgrade lookups answer zero until
// those systems exist.
type conditionState struct {
	ledger *resources.Ledger
}

func (c conditionState) ResourceAmount(id string) float64 {
	index := c.ledger.GetResourceIndex(id)
	if index < 0 {
		return 0
	}
	return c.ledger.GetAmount(index)
}

func (c conditionState) GeneratorLevel(string) int   { return 0 }
func (c conditionState) UpgradePurchases(string) int { return 0 }

func main() {
	var (
		addr      = flag.String("addr", ":8080", "listen address")
		packPath  = flag.String("pack", "", "path to the content pack file")
		savesPath = flag.String("saves", "saves.db", "path to the save database")
		tickRate  = flag.Int("tick-rate", 10, "simulation ticks per second")
		seed      = flag.Int64("seed", 0, "rng seed; 0 derives one from the clock")
	)
	flag.Parse()

	if *packPath == "" {
		log.Fatal("server: --pack is required")
	}
	pack, err := content.LoadFile(*packPath)
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	router := logging.NewRouter(nil, logging.DefaultConfig(), []logging.NamedSink{
		{Name: "console", Sink: sinks.NewConsole(os.Stdout)},
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		router.Close(ctx)
	}()

	ledger, err := resources.NewLedger(pack.CompileResources())
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	entitySystem := entity.NewSystem()
	for _, entityDoc := range pack.Entities {
		for _, instanceDoc := range entityDoc.Instances {
			if err := entitySystem.Spawn(entityDoc.ID, instanceDoc.ID, instanceDoc.Stats); err != nil {
				log.Fatalf("server: %v", err)
			}
		}
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(rngSeed))
	prdRegistry, err := prd.NewRegistry(rng.Float64)
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	metrics := telemetry.NewMetrics()
	bus := events.NewBus()
	condState := conditionState{ledger: ledger}
	stepDuration := time.Second / time.Duration(*tickRate)

	onError := func(id string, err error) {
		log.Printf("server: transform %s: %v", id, err)
	}

	transformSystem, err := transform.New(pack.CompileTransforms(), transform.Config{StepDuration: stepDuration}, transform.Deps{
		Resources:      ledger,
		Formulas:       formula.NewEvaluator(),
		Conditions:     condition.NewEvaluator(),
		ConditionState: condState,
		Entities:       entitySystem,
		PRD:            prdRegistry,
		RNG:            rng.Float64,
		Publisher:      router,
		Recorder:       metrics,
		OnError:        onError,
	})
	if err != nil {
		log.Fatalf("server: %v", err)
	}
	transformSystem.Setup(bus)
	defer transformSystem.Teardown()

	automationSystem, err := automation.New(pack.CompileAutomations(), automation.Deps{
		Bus:            bus,
		Conditions:     condition.NewEvaluator(),
		ConditionState: condState,
		Publisher:      router,
		OnError: func(id string, err error) {
			log.Printf("server: automation %s: %v", id, err)
		},
	})
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	store, err := saves.Open(*savesPath)
	if err != nil {
		log.Fatalf("server: %v", err)
	}
	defer store.Close()

	var api *enginenet.Server
	// Automations tick first so transforms consume their firings within
	// the same step.
	runner := sim.NewRunner(
		sim.Config{TickRate: *tickRate, CatchupMaxTicks: 4, StepDuration: stepDuration},
		nil,
		sim.Hooks{AfterStep: func(sim.StepResult) {
			metrics.StepCompleted()
			api.BroadcastState()
		}},
		automationSystem,
		transformSystem,
	)

	api = enginenet.NewServer(enginenet.ServerDeps{
		Runner:     runner,
		Transforms: transformSystem,
		Ledger:     ledger,
		Entities:   entitySystem,
		PRD:        prdRegistry,
		Store:      store,
		Metrics:    metrics.Handler(),
	})

	stop := make(chan struct{})
	go runner.Run(stop)
	defer close(stop)

	httpServer := &http.Server{Addr: *addr, Handler: api.Routes()}
	go func() {
		log.Printf("server: pack %q loaded, listening on %s (seed %d)", pack.Name, *addr, rngSeed)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	<-signals

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("server: shutdown: %v", err)
	}
	api.Hub().Close()
}
