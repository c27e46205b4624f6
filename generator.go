package main

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	peakIntensity      = 1000.0
	noiseFraction      = 0.10 // bounded noise of at most +/-10% of intensity
	pausePollInterval  = 10 * time.Millisecond
	spatialOffsetScale = 0.2
	sliceOffsetScale   = 0.1
)

// generatorNoise returns a multiplicative noise factor in [-noiseFraction,
// +noiseFraction], drawn from a declared Gaussian distribution (gonum's
// distuv.Normal) truncated to the bound. This replaces the source
// simulator's hash(str(time.time()+v)) noise per spec.md's flagged open
// question: the exact distribution is not part of the wire contract, only
// its boundedness and non-negativity of the final intensity are.
func generatorNoise() float64 {
	n := distuv.Normal{Mu: 0, Sigma: noiseFraction / 3}
	v := n.Rand()
	if v > noiseFraction {
		v = noiseFraction
	}
	if v < -noiseFraction {
		v = -noiseFraction
	}
	return v
}

// sampleIntensity computes one non-negative intensity value for energy
// step s and detector value v within slice z, per spec.md 4.B.
func sampleIntensity(spec *SpectrumSpec, z, s, v int) float64 {
	energy := spec.EnergyAt(s)
	spatialOffset := (float64(v) - float64(spec.ValuesPerSample)/2) * spatialOffsetScale
	sliceOffset := (float64(z) - float64(spec.NumSlices)/2) * sliceOffsetScale
	effective := energy + spatialOffset + sliceOffset

	center, sigma := spec.CenterAndSigma()
	if sigma == 0 {
		sigma = 1
	}
	intensity := peakIntensity * math.Exp(-((effective-center)*(effective-center))/(2*sigma*sigma))
	intensity += intensity * generatorNoise()
	if intensity < 0 {
		intensity = 0
	}
	return intensity
}

// runGenerator is the Engine's background producer: it fills the sample
// buffer in (z, s, v) order, sleeping ~DwellTime per energy step, and
// checking for pause/abort at energy-step and value granularity. It is
// launched as a goroutine from Engine.Start and always ends by closing
// e.genDone, whether it finished, was aborted, or errored.
func (e *Engine) runGenerator(spec *SpectrumSpec) {
	defer close(e.genDone)

	Z := spec.NumSlices
	S := spec.NumSamples()
	V := spec.ValuesPerSample

	for z := 0; z < Z; z++ {
		e.advanceProgress(0)
		for s := 0; s < S; s++ {
			if e.waitWhilePausedOrAborted() {
				return
			}
			for v := 0; v < V; v++ {
				if e.waitWhilePausedOrAborted() {
					return
				}
				value := sampleIntensity(spec, z, s, v)
				e.appendSample(value)
			}
			e.advanceProgress(s + 1)
			e.sleepDwell(spec.DwellTime)
		}
	}

	e.finishIfRunning()
}

// waitWhilePausedOrAborted blocks while the engine is Paused, and reports
// whether the generator should stop because the engine was Aborted.
func (e *Engine) waitWhilePausedOrAborted() bool {
	for {
		e.mu.Lock()
		st := e.state
		e.mu.Unlock()
		switch st {
		case EngineAborted:
			return true
		case EnginePaused:
			time.Sleep(pausePollInterval)
			continue
		default:
			return false
		}
	}
}

func (e *Engine) sleepDwell(dwellTime float64) {
	scale := e.timeScale
	if scale <= 0 {
		scale = 1
	}
	time.Sleep(time.Duration(dwellTime / scale * float64(time.Second)))
}
