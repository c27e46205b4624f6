package main

import "fmt"

// SpectrumMode is the analyzer scan mode named in a Define*/Check* command.
type SpectrumMode int

const (
	ModeFAT SpectrumMode = iota
	ModeSFAT
	ModeFRR
	ModeFE
	ModeLVS
)

func (m SpectrumMode) String() string {
	switch m {
	case ModeFAT:
		return "FAT"
	case ModeSFAT:
		return "SFAT"
	case ModeFRR:
		return "FRR"
	case ModeFE:
		return "FE"
	case ModeLVS:
		return "LVS"
	default:
		return "UNKNOWN"
	}
}

// LensMode is the analyzer lens magnification setting.
type LensMode string

const (
	LensHighMagnification   LensMode = "HighMagnification"
	LensMediumMagnification LensMode = "MediumMagnification"
	LensLowMagnification    LensMode = "LowMagnification"
	LensWideAngle           LensMode = "WideAngle"
)

// ScanRange is the analyzer detector scan-area setting.
type ScanRange string

const (
	ScanSmallArea  ScanRange = "SmallArea"
	ScanMediumArea ScanRange = "MediumArea"
	ScanLargeArea  ScanRange = "LargeArea"
)

// SpectrumSpec is the immutable description of one acquisition, as
// produced by a Define* command and echoed back by ValidateSpectrum.
type SpectrumSpec struct {
	Mode SpectrumMode

	StartEnergy float64
	EndEnergy   float64
	StepWidth   float64
	Energies    []float64 // FE mode only; replaces Start/End/Step

	DwellTime      float64
	PassEnergy     float64
	RetardingRatio float64 // FRR mode only

	LensMode  LensMode
	ScanRange ScanRange

	NumScans        int
	ValuesPerSample int
	NumSlices       int

	SetSafeStateAfter bool // not populated: Engine.Start keeps the Start flag on the Engine
}

// NumSamples returns S, the number of energy steps in the spec.
func (s *SpectrumSpec) NumSamples() int {
	if s.Mode == ModeFE {
		return len(s.Energies)
	}
	// The small tolerance keeps a quotient such as 0.4/0.2, which floating
	// point yields as 1.999..., from losing the final energy step.
	return int((s.EndEnergy-s.StartEnergy)/s.StepWidth+1e-9) + 1
}

// TotalValues returns Z*S*V, the length of a completed sample buffer.
func (s *SpectrumSpec) TotalValues() int {
	return s.NumSlices * s.NumSamples() * s.ValuesPerSample
}

// EnergyAt returns the nominal energy (eV) of sample index s, before any
// per-value spatial/slice offset is applied.
func (s *SpectrumSpec) EnergyAt(sampleIndex int) float64 {
	if s.Mode == ModeFE {
		return s.Energies[sampleIndex]
	}
	return s.StartEnergy + float64(sampleIndex)*s.StepWidth
}

// CenterAndSigma returns the Gaussian peak center and width used by the
// data generator, for either a ranged spec or a Fixed-Energies spec.
func (s *SpectrumSpec) CenterAndSigma() (center, sigma float64) {
	if s.Mode == ModeFE {
		lo, hi := s.Energies[0], s.Energies[0]
		for _, e := range s.Energies {
			if e < lo {
				lo = e
			}
			if e > hi {
				hi = e
			}
		}
		return (lo + hi) / 2, (hi - lo) / 6
	}
	return (s.StartEnergy + s.EndEnergy) / 2, (s.EndEnergy - s.StartEnergy) / 6
}

// Validate checks the local consistency rules from spec.md 4.C: step>0,
// end>=start for ranged modes, V>=1, Z>=1, non-empty energies for FE.
func (s *SpectrumSpec) Validate() error {
	if s.ValuesPerSample < 1 {
		return fmt.Errorf("ValuesPerSample must be >= 1, got %d", s.ValuesPerSample)
	}
	if s.NumSlices < 1 {
		return fmt.Errorf("NumberOfSlices must be >= 1, got %d", s.NumSlices)
	}
	if s.NumScans < 1 {
		return fmt.Errorf("NumberOfScans must be >= 1, got %d", s.NumScans)
	}
	if s.DwellTime <= 0 {
		return fmt.Errorf("DwellTime must be > 0, got %g", s.DwellTime)
	}

	switch s.Mode {
	case ModeFE:
		if len(s.Energies) == 0 {
			return fmt.Errorf("Energies array must be non-empty for FE mode")
		}
	case ModeFAT, ModeFRR, ModeSFAT:
		if s.StepWidth <= 0 {
			return fmt.Errorf("StepWidth must be > 0, got %g", s.StepWidth)
		}
		if s.EndEnergy < s.StartEnergy {
			return fmt.Errorf("EndEnergy (%g) must be >= StartEnergy (%g)", s.EndEnergy, s.StartEnergy)
		}
	case ModeLVS:
		// LVS is an acknowledged stub per spec.md 9; no shape to validate.
	}
	return nil
}
