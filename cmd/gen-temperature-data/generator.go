package main

import (
	"math"
	"math/rand"
	"time"
)

// profile описывает синтетический ряд уличной и комнатной температуры.
type profile struct {
	OutdoorMean      float64
	OutdoorAmplitude float64 // половина суточного размаха
	IndoorMean       float64
	IndoorAmplitude  float64
	Noise            float64 // амплитуда равномерного шума

	// Всплеск «подъём, затем спад» начинается в BumpAt (нулевое время отключает всплеск).
	BumpAt   time.Time
	BumpRise float64
	BumpDrop float64
	BumpUp   time.Duration // длительность подъёма
	BumpDown time.Duration // длительность спада
}

type sample struct {
	ts      time.Time
	indoor  float64
	outdoor float64
}

// generator выдаёт точки с шагом step от start до end (не включая end).
type generator struct {
	p    profile
	rng  *rand.Rand
	next time.Time
	end  time.Time
	step time.Duration
}

func newGenerator(p profile, start, end time.Time, step time.Duration, seed int64) *generator {
	return &generator{p: p, rng: rand.New(rand.NewSource(seed)), next: start, end: end, step: step}
}

func (g *generator) nextSample() (sample, bool) {
	if !g.next.Before(g.end) || g.step <= 0 {
		return sample{}, false
	}
	ts := g.next
	g.next = g.next.Add(g.step)

	hours := float64(ts.Hour()) + float64(ts.Minute())/60
	// минимум около 03:00, максимум около 15:00
	daily := math.Sin(2 * math.Pi * (hours - 9) / 24)
	outdoor := g.p.OutdoorMean + g.p.OutdoorAmplitude*daily + bump(g.p, ts) + g.noise()
	// в помещении суточный ход запаздывает на три часа
	indoorDaily := math.Sin(2 * math.Pi * (hours - 12) / 24)
	indoor := g.p.IndoorMean + g.p.IndoorAmplitude*indoorDaily + g.noise()/4

	return sample{ts: ts, indoor: round2(indoor), outdoor: round2(outdoor)}, true
}

func (g *generator) noise() float64 {
	if g.p.Noise == 0 {
		return 0
	}
	return (g.rng.Float64()*2 - 1) * g.p.Noise
}

// bump возвращает добавку всплеска в момент ts: линейный подъём на BumpRise,
// затем линейный спад на BumpDrop, после чего добавка держится на уровне Rise-Drop.
func bump(p profile, ts time.Time) float64 {
	if p.BumpAt.IsZero() || ts.Before(p.BumpAt) {
		return 0
	}
	since := ts.Sub(p.BumpAt)
	switch {
	case p.BumpUp > 0 && since < p.BumpUp:
		return p.BumpRise * float64(since) / float64(p.BumpUp)
	case p.BumpDown > 0 && since < p.BumpUp+p.BumpDown:
		return p.BumpRise - p.BumpDrop*float64(since-p.BumpUp)/float64(p.BumpDown)
	default:
		return p.BumpRise - p.BumpDrop
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
