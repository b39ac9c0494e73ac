// Gyromon watches the robot's gyroscope over the serial bridge, printing
// instantaneous rates and cumulative angles until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/opendog/pupbridge/internal/robot"
	"github.com/opendog/pupbridge/internal/serialbridge"
	"github.com/opendog/pupbridge/internal/telemetry"
	"github.com/opendog/pupbridge/internal/timeutil"
)

var (
	portPath = flag.String("port", "/dev/ttyS0", "Serial port path")
	baudRate = flag.Int("baud", 115200, "Serial baud rate")
	interval = flag.Duration("interval", 100*time.Millisecond, "Poll interval")
	dbPath   = flag.String("db", "", "Telemetry database path (empty to disable)")
	doReset  = flag.Bool("reset", true, "Reset gyro angles on startup")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn := serialbridge.NewConn(*portPath,
		serialbridge.PortOptions{BaudRate: *baudRate},
		serialbridge.RealPortFactory{}, nil)
	if err := conn.Connect(); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}

	bridge := serialbridge.New(conn, serialbridge.DefaultConfig(), nil)
	bridge.Start()
	defer bridge.Close()

	var store *telemetry.Store
	if *dbPath != "" {
		var err error
		store, err = telemetry.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open telemetry database: %v", err)
		}
		defer store.Close()
	}

	client := robot.NewClient(bridge)

	if *doReset {
		if err := client.ResetGyro(); err != nil {
			log.Printf("failed to reset gyroscope angles: %v", err)
		}
	}

	clock := timeutil.RealClock{}
	start := clock.Now()
	successes, failures := 0, 0

	ticker := clock.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n%d samples, %d failures over %.1fs\n",
				successes, failures, clock.Since(start).Seconds())
			return
		case <-ticker.C():
			g, err := client.GyroData()
			if err != nil {
				failures++
				continue
			}
			successes++

			if store != nil {
				if err := store.RecordGyro(g.GyroX, g.GyroY, g.GyroZ, g.AngleX, g.AngleY, g.AngleZ); err != nil {
					log.Printf("failed to record gyro sample: %v", err)
				}
			}

			fmt.Printf("\033c") // clear the terminal
			fmt.Printf("running for %.1fs, success rate %d/%d\n\n",
				clock.Since(start).Seconds(), successes, successes+failures)
			fmt.Printf("rates (deg/s):  x %+8.4f  y %+8.4f  z %+8.4f\n", g.GyroX, g.GyroY, g.GyroZ)
			fmt.Printf("angles (deg):   x %+8.4f  y %+8.4f  z %+8.4f\n", g.AngleX, g.AngleY, g.AngleZ)
		}
	}
}
