// Package simulator generates synthetic sensor readings, optionally
// anomalous, and publishes them to the sensor topic.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"sensorwatch/internal/bus"
)

// Payload is one simulated reading as sent on the wire. Timestamp and
// BatteryLevel are informational and ignored downstream.
type Payload struct {
	SensorID     string  `json:"sensor_id"`
	Location     string  `json:"location"`
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	Timestamp    string  `json:"timestamp"`
	BatteryLevel float64 `json:"battery_level"`
}

// Generator produces readings from its random source.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator seeds a generator; the same seed yields the same readings.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), now: time.Now}
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

// either picks one of two ranges with equal probability.
func (g *Generator) either(lo1, hi1, lo2, hi2 float64) float64 {
	if g.rng.IntN(2) == 0 {
		return g.uniform(lo1, hi1)
	}
	return g.uniform(lo2, hi2)
}

// Generate returns a reading for sensorID. Anomalous readings sit well
// outside the alert thresholds on both dimensions.
func (g *Generator) Generate(sensorID string, anomaly bool) Payload {
	var temp, hum float64
	if anomaly {
		temp = g.either(-5, 5, 35, 45)
		hum = g.either(5, 15, 85, 95)
	} else {
		temp = g.uniform(18, 28)
		hum = g.uniform(30, 70)
	}

	return Payload{
		SensorID:     sensorID,
		Location:     location(sensorID),
		Temperature:  round2(temp),
		Humidity:     round2(hum),
		Timestamp:    g.now().UTC().Format(time.RFC3339Nano),
		BatteryLevel: g.uniform(20, 100),
	}
}

// Anomaly reports whether the next reading should be anomalous.
func (g *Generator) Anomaly(chance float64) bool {
	return g.rng.Float64() < chance
}

func location(sensorID string) string {
	if sensorID == "" {
		return "Room"
	}
	last, _ := utf8.DecodeLastRuneInString(sensorID)
	return "Room " + string(last)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Options controls a simulation run.
type Options struct {
	Sensors       []string
	Count         int
	AnomalyChance float64
	Interval      time.Duration
}

// Validate checks the run options.
func (o Options) Validate() error {
	if o.Count <= 0 {
		return errors.New("count must be greater than 0")
	}
	if o.AnomalyChance < 0 || o.AnomalyChance > 1 {
		return errors.New("anomaly chance must be between 0.0 and 1.0")
	}
	if len(o.Sensors) == 0 {
		return errors.New("at least one sensor is required")
	}
	return nil
}

// Summary counts what a run sent.
type Summary struct {
	Sent      int
	Failed    int
	Anomalies int
}

// Run publishes Count rounds of one reading per sensor, waiting Interval
// between rounds. Progress lines are written to out.
func Run(ctx context.Context, pub bus.Publisher, g *Generator, opts Options, out io.Writer) (Summary, error) {
	var sum Summary
	if err := opts.Validate(); err != nil {
		return sum, err
	}

	for i := 0; i < opts.Count; i++ {
		for _, sensor := range opts.Sensors {
			anomaly := g.Anomaly(opts.AnomalyChance)
			p := g.Generate(sensor, anomaly)

			payload, err := json.Marshal(p)
			if err != nil {
				return sum, err
			}

			id, err := pub.Publish(ctx, bus.Message{
				Key:     p.SensorID,
				Subject: fmt.Sprintf("Sensor Data from %s", p.SensorID),
				Payload: payload,
			})
			if err != nil {
				sum.Failed++
				fmt.Fprintf(out, "❌ Error sending data from %s: %v\n", p.SensorID, err)
				if ctx.Err() != nil {
					return sum, ctx.Err()
				}
				continue
			}

			sum.Sent++
			fmt.Fprintf(out, "✅ Sent data from %s: Temp=%v°C, Humidity=%v%% (MessageId: %s...)\n",
				p.SensorID, p.Temperature, p.Humidity, shortID(id))
			if anomaly {
				sum.Anomalies++
				fmt.Fprintf(out, "🚨 Anomaly generated for %s\n", p.SensorID)
			}
		}

		if i < opts.Count-1 && opts.Interval > 0 {
			fmt.Fprintf(out, "💤 Waiting %s...\n", opts.Interval)
			select {
			case <-time.After(opts.Interval):
			case <-ctx.Done():
				return sum, ctx.Err()
			}
		}
	}

	fmt.Fprintf(out, "\n%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(out, "✅ Simulation complete!\n📊 Total messages sent: %d\n🚨 Anomalies generated: %d\n", sum.Sent, sum.Anomalies)
	return sum, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
