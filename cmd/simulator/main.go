// Command simulator publishes synthetic sensor readings to the sensor topic.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sensorwatch/internal/app"
	"sensorwatch/internal/config"
	"sensorwatch/internal/logger"
	"sensorwatch/internal/simulator"
)

func main() {
	_ = godotenv.Load()

	count := flag.Int("count", 10, "number of readings per sensor")
	chance := flag.Float64("anomaly-chance", 0.3, "probability of an anomalous reading (0.0-1.0)")
	interval := flag.Duration("interval", 3*time.Second, "pause between rounds")
	sensors := flag.String("sensors", "sensor-001,sensor-002,sensor-003", "comma-separated sensor IDs")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	flag.Parse()

	os.Exit(run(*count, *chance, *interval, *sensors, *seed))
}

func run(count int, chance float64, interval time.Duration, sensorList string, seed uint64) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		return 1
	}
	logger.Init(cfg.Logging.Level, "simulator")

	if cfg.Kafka.SensorTopic == "" {
		fmt.Fprintln(os.Stderr, "❌ Error: SENSOR_TOPIC is required")
		return 1
	}

	opts := simulator.Options{
		Sensors:       splitSensors(sensorList),
		Count:         count,
		AnomalyChance: chance,
		Interval:      interval,
	}
	if err := opts.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub, err := app.NewPublisher(ctx, cfg, cfg.Kafka.SensorTopic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Error creating %s publisher: %v\n", cfg.Bus.Kind, err)
		return 1
	}
	defer pub.Close()

	fmt.Println("🚀 Starting IoT sensor simulation...")
	fmt.Printf("📡 Topic: %s\n", cfg.Kafka.SensorTopic)
	fmt.Printf("🔢 Sensors: %d\n", len(opts.Sensors))
	fmt.Printf("📊 Readings per sensor: %d\n", opts.Count)
	fmt.Printf("⚠️  Anomaly chance: %v%%\n", opts.AnomalyChance*100)
	fmt.Println(strings.Repeat("-", 60))

	if _, err := simulator.Run(ctx, pub, simulator.NewGenerator(seed), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Simulation stopped: %v\n", err)
		return 1
	}
	return 0
}

func splitSensors(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
