// Command motionshield runs the safety shield daemon: a fixed-rate control
// loop that verifies every commanded robot motion against the human
// reachable set before it leaves the process, an HTTP admin surface for goal
// submission and monitoring, and a sqlite flight recorder.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/motionshield/internal/config"
	"github.com/banshee-data/motionshield/internal/motion"
	"github.com/banshee-data/motionshield/internal/publish"
	"github.com/banshee-data/motionshield/internal/reach"
	"github.com/banshee-data/motionshield/internal/shield"
	"github.com/banshee-data/motionshield/internal/store"
	"github.com/banshee-data/motionshield/internal/timeutil"
	"github.com/banshee-data/motionshield/internal/traj"
	"github.com/banshee-data/motionshield/internal/verify"
	"github.com/banshee-data/motionshield/internal/version"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode: motions go to the log instead of hardware")
	listen     = flag.String("listen", ":8080", "Listen address")
	configPath = flag.String("config", "", "Path to tuning config JSON (defaults apply when empty)")
	dbFile     = flag.String("db", "flight.db", "Path to the flight recorder database")
	publishTo  = flag.String("publish", "", "UDP address to publish verified motions to")
	serialPort = flag.String("serial-port", "", "Serial port to publish verified motions to")
)

func main() {
	flag.Parse()
	log.Printf("motionshield %s (%s)", version.Version, version.GitSHA)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tc := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tc, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	publisher, err := newPublisher()
	if err != nil {
		log.Fatalf("Failed to create motion publisher: %v", err)
	}
	defer publisher.Close()

	flightDB, err := store.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open flight recorder: %v", err)
	}
	defer flightDB.Close()
	recorder := store.NewRecorder(flightDB, 4096)
	defer recorder.Close()

	sh, human, err := buildShield(tc, publisher)
	if err != nil {
		log.Fatalf("Failed to build shield: %v", err)
	}
	if *devMode {
		// Seed a distant measurement so the shield has something to verify
		// against before the first POST /api/human arrives.
		human.Update([]r3.Vec{{X: 100, Y: 0, Z: 0}, {X: 100, Y: 0, Z: 1.8}})
	}

	srv := NewServer(sh, human, flightDB, tc)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Control loop goroutine. The ticker is the real-time clock; each tick
	// runs exactly one shield cycle.
	wg.Add(1)
	go func() {
		defer wg.Done()
		runControlLoop(ctx, timeutil.RealClock{}, tc.GetSampleTime(), sh, srv, recorder)
		log.Print("control loop terminated")
	}()

	// In dev mode the publisher is an in-process channel; drain it so the
	// control loop never stalls, surfacing a sample of the motions.
	if cp, ok := publisher.(*publish.ChanPublisher); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var n uint64
			for {
				select {
				case <-ctx.Done():
					return
				case m := <-cp.Motions():
					n++
					if n%250 == 0 {
						log.Printf("motion t=%.3f q=%v", m.Time, m.Q)
					}
				}
			}
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", srv.ServeMux()))

		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// runControlLoop runs one shield cycle per clock tick until the context is
// cancelled. The clock is injected so tests can drive cycles deterministically.
func runControlLoop(ctx context.Context, clk timeutil.Clock, period time.Duration, sh *shield.SafetyShield, srv *Server, recorder *store.Recorder) {
	ticker := clk.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			begin := clk.Now()
			res := sh.Step(begin)
			srv.noteCycle(res)
			recorder.Record(cycleRecord(res, begin))
		}
	}
}

// newPublisher picks the motion output boundary from the flags: serial port,
// UDP peer, or an in-process channel in dev mode.
func newPublisher() (publish.Publisher, error) {
	switch {
	case *serialPort != "":
		return publish.NewSerialPublisher(*serialPort)
	case *publishTo != "":
		return publish.NewUDPPublisher(*publishTo)
	default:
		if !*devMode {
			log.Print("no -publish or -serial-port given; motions stay in-process")
		}
		return publish.NewChanPublisher(4096), nil
	}
}

// buildShield assembles the shield and its collaborators from the tuning
// config. The returned human model is shared with the HTTP surface, which
// feeds it measurements.
func buildShield(tc *config.TuningConfig, publisher publish.Publisher) (*shield.SafetyShield, *reach.StaticHumanReach, error) {
	nb := tc.GetNbJoints()

	bx, by, bz := tc.GetBase()
	robot, err := reach.NewRobotReach(r3.Vec{X: bx, Y: by, Z: bz}, tc.GetLinkLengths(), tc.GetLinkRadii())
	if err != nil {
		return nil, nil, err
	}

	segments := make([]reach.BodySegment, 0, len(tc.GetBodySegments()))
	for _, seg := range tc.GetBodySegments() {
		segments = append(segments, reach.BodySegment{A: seg.A, B: seg.B, Radius: seg.Radius})
	}
	human := reach.NewStaticHumanReach(segments, tc.GetHumanVMax(), tc.GetMeasurementDelay().Seconds())

	verifier := newVerifier(tc, robot)

	generator := &traj.JerkLimitedGenerator{
		SampleTime: tc.GetTrajectorySampleTime().Seconds(),
		WindowK:    tc.GetWindowK(),
	}

	initial, err := standstillTrajectory(nb, tc.GetTrajectorySampleTime().Seconds())
	if err != nil {
		return nil, nil, err
	}

	scfg := shield.Config{
		ActivateShield: tc.GetActivateShield(),
		NbJoints:       nb,
		SampleTime:     tc.GetSampleTime().Seconds(),
		TBuff:          tc.GetTBuff(),
		MaxSStop:       tc.GetMaxSStop(),
		VMaxAllowed:    tc.GetVMaxAllowed(),
		AMaxAllowed:    tc.GetAMaxAllowed(),
		JMaxAllowed:    tc.GetJMaxAllowed(),
		AMaxLTT:        tc.GetAMaxLTT(),
		JMaxLTT:        tc.GetJMaxLTT(),
	}
	sh, err := shield.New(scfg, initial, robot, human, verifier, generator, publisher)
	if err != nil {
		return nil, nil, err
	}
	return sh, human, nil
}

// newVerifier builds the configured verification strategy.
func newVerifier(tc *config.TuningConfig, robot *reach.RobotReach) verify.Verifier {
	if tc.GetVerifyMode() != "ssm" {
		return verify.Verify{MinDist: tc.GetMinDist()}
	}

	// Surface speed of link i is bounded by the joint speed cap times the
	// lever arm out to the link's far end.
	vmax := tc.GetVMaxAllowed()
	lengths := tc.GetLinkLengths()
	robotSpeed := make([]float64, robot.NbJoints())
	arm := 0.0
	for i := range robotSpeed {
		arm += lengths[i]
		robotSpeed[i] = vmax[i] * arm
	}
	humanSpeed := make([]float64, len(tc.GetBodySegments()))
	for i := range humanSpeed {
		humanSpeed[i] = tc.GetHumanVMax()
	}
	return verify.VerifyISO{
		MinDist:      tc.GetMinDist(),
		ReactionTime: tc.GetReactionTime(),
		BrakeTime:    tc.GetBrakeTime(),
		RobotSpeed:   robotSpeed,
		HumanSpeed:   humanSpeed,
	}
}

// standstillTrajectory is the boot trajectory: hold the zero pose at rest
// until the first goal commits.
func standstillTrajectory(nb int, dt float64) (*motion.LongTermTrajectory, error) {
	zero := make([]float64, nb)
	samples := make([]motion.Motion, 2)
	for i := range samples {
		m, err := motion.NewFromState(float64(i)*dt, zero, zero, zero)
		if err != nil {
			return nil, err
		}
		samples[i] = m
	}
	return motion.NewLongTermTrajectory(samples, dt, 0)
}

// cycleRecord maps one cycle outcome onto a flight recorder row.
func cycleRecord(res shield.CycleResult, begin time.Time) store.CycleRecord {
	return store.CycleRecord{
		Cycle:          res.Cycle,
		Time:           begin,
		TrajectoryID:   res.TrajectoryID.String(),
		State:          string(res.State),
		Safe:           res.Safe,
		LTTCommitted:   res.LTTCommitted,
		DeadlineMissed: res.DeadlineMissed,
		PathS:          res.PathS,
		PathDS:         res.PathDS,
		Elapsed:        res.Elapsed,
		Q:              res.Motion.Q,
		DQ:             res.Motion.DQ,
	}
}
