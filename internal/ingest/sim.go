package ingest

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Simulator is a dev-mode source that synthesises plausible motion and
// position readings so the whole pipeline can run on a workstation with no
// sensors attached. Motion is a noisy gravity vector with occasional shake
// bursts; position drifts along a slow circle.
type Simulator struct {
	MotionRate   time.Duration // accel/gyro/rotvec cadence, default 20ms (50 Hz)
	LocationRate time.Duration // location cadence, default 1s
	Seed         int64
}

func (s *Simulator) Name() string { return "simulator" }

func (s *Simulator) Run(ctx context.Context, sink *Serializer) error {
	motionRate := s.MotionRate
	if motionRate == 0 {
		motionRate = 20 * time.Millisecond
	}
	locationRate := s.LocationRate
	if locationRate == 0 {
		locationRate = time.Second
	}
	rng := rand.New(rand.NewSource(s.Seed))

	motion := time.NewTicker(motionRate)
	defer motion.Stop()
	location := time.NewTicker(locationRate)
	defer location.Stop()

	var (
		t     float64
		lat   = 3.139
		lon   = 101.687
		shake float64
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-motion.C:
			t += motionRate.Seconds()
			// Decaying shake bursts on top of gravity.
			if rng.Float64() < 0.01 {
				shake = 2 + rng.Float64()*3
			}
			shake *= 0.9

			sink.Offer(Reading{Channel: Accelerometer, Values: []float64{
				noise(rng, 0.1) + shake*rng.NormFloat64(),
				noise(rng, 0.1) + shake*rng.NormFloat64(),
				9.81 + noise(rng, 0.1) + shake*rng.NormFloat64(),
			}})
			sink.Offer(Reading{Channel: Gyroscope, Values: []float64{
				noise(rng, 0.05),
				noise(rng, 0.05),
				noise(rng, 0.05) + 0.2*math.Sin(t/3),
			}})

			yaw := 0.1 * math.Sin(t/5)
			sink.Offer(Reading{Channel: RotationVector, Values: []float64{
				0, 0, math.Sin(yaw / 2), math.Cos(yaw / 2),
			}})

		case <-location.C:
			lat += 1e-5 * math.Cos(t/30)
			lon += 1e-5 * math.Sin(t/30)
			speed := 10 + 3*math.Sin(t/20)
			sink.Offer(Reading{Channel: Location, Values: []float64{lat, lon, speed, 58}})
		}
	}
}

func noise(rng *rand.Rand, scale float64) float64 {
	return rng.NormFloat64() * scale
}
