// Pupctl is the host-side control process for the quadruped robot. It owns
// the single serial bridge, optionally records telemetry, serves localhost
// debug routes, and can execute a rotate-then-move sequence from the
// command line.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/opendog/pupbridge/internal/motion"
	"github.com/opendog/pupbridge/internal/robot"
	"github.com/opendog/pupbridge/internal/serialbridge"
	"github.com/opendog/pupbridge/internal/telemetry"
)

var (
	portPath      = flag.String("port", "/dev/ttyS0", "Serial port path")
	baudRate      = flag.Int("baud", 115200, "Serial baud rate")
	settle        = flag.Duration("settle", serialbridge.DefaultSettle, "Stabilisation delay after opening the link")
	disableSerial = flag.Bool("disable-serial", false, "Run without robot hardware")
	dbPath        = flag.String("db", "pupbridge.db", "Telemetry database path (empty to disable)")
	listen        = flag.String("listen", "", "Debug HTTP listen address (empty to disable)")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sender serialbridge.Sender
	var bridge *serialbridge.Bridge

	if *disableSerial {
		sender = serialbridge.NewDisabledBridge()
	} else {
		conn := serialbridge.NewConn(*portPath,
			serialbridge.PortOptions{BaudRate: *baudRate},
			serialbridge.RealPortFactory{}, nil)
		conn.SetSettleDelays(*settle, serialbridge.DefaultResettle)

		if err := conn.Connect(); err != nil {
			// Not fatal: the bridge reconnects per command.
			log.Printf("initial connection failed: %v", err)
		}

		bridge = serialbridge.New(conn, serialbridge.DefaultConfig(), nil)
		bridge.Start()
		sender = bridge
	}
	defer sender.Close()

	var store *telemetry.Store
	if *dbPath != "" {
		var err error
		store, err = telemetry.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open telemetry database: %v", err)
		}
		defer store.Close()
		if bridge != nil {
			bridge.SetRecorder(store)
		}
	}

	var wg sync.WaitGroup
	if *listen != "" {
		mux := http.NewServeMux()
		if bridge != nil {
			bridge.AttachDebugRoutes(mux)
		}
		if store != nil {
			store.AttachDebugRoutes(mux)
		}

		server := &http.Server{Addr: *listen, Handler: mux}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("debug routes listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("debug server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	client := robot.NewClient(sender)

	if flag.NArg() == 2 {
		if err := runSequence(client, flag.Arg(0), flag.Arg(1)); err != nil {
			log.Fatalf("sequence failed: %v", err)
		}
		return
	}

	if err := client.Ping(); err != nil {
		log.Printf("robot not responding to ping: %v", err)
	} else {
		log.Printf("robot is responding")
	}

	<-ctx.Done()
	wg.Wait()
}

// runSequence rotates by angle degrees, moves distance centimeters, then
// shakes hands, mirroring the robot's stock demo behaviour.
func runSequence(client *robot.Client, angleArg, distanceArg string) error {
	angle, err := strconv.ParseFloat(angleArg, 64)
	if err != nil {
		return err
	}
	distance, err := strconv.ParseFloat(distanceArg, 64)
	if err != nil {
		return err
	}

	mover := motion.NewMover(client, nil)

	if angle != 0 {
		res, err := mover.RotateToAngle(angle, 2.0, 20*time.Second)
		if err != nil {
			return err
		}
		log.Printf("rotated %.1f° (target %.1f°)", res.Final, res.Target)
		time.Sleep(time.Second)
	}

	if distance != 0 {
		if err := mover.MoveDistance(distance, 30*time.Second); err != nil {
			return err
		}
		time.Sleep(time.Second)
	}

	return client.HandShake()
}
