package main

import "testing"

func TestSpectrumSpecNumSamplesAndTotalValues(t *testing.T) {
	spec := &SpectrumSpec{
		Mode:            ModeFAT,
		StartEnergy:     400,
		EndEnergy:       402,
		StepWidth:       0.5,
		DwellTime:       0.1,
		ValuesPerSample: 3,
		NumSlices:       2,
	}
	if got := spec.NumSamples(); got != 5 {
		t.Errorf("NumSamples() = %d, want 5", got)
	}
	if got := spec.TotalValues(); got != 2*5*3 {
		t.Errorf("TotalValues() = %d, want %d", got, 2*5*3)
	}
}

func TestSpectrumSpecNumSamplesFE(t *testing.T) {
	spec := &SpectrumSpec{Mode: ModeFE, Energies: []float64{10, 20, 30, 40}, ValuesPerSample: 1, NumSlices: 1}
	if got := spec.NumSamples(); got != 4 {
		t.Errorf("NumSamples() for FE = %d, want 4", got)
	}
}

func TestSpectrumSpecValidateRejectsNonPositiveStep(t *testing.T) {
	spec := &SpectrumSpec{
		Mode:            ModeFAT,
		StartEnergy:     400,
		EndEnergy:       402,
		StepWidth:       0,
		DwellTime:       0.1,
		ValuesPerSample: 1,
		NumSlices:       1,
		NumScans:        1,
	}
	if err := spec.Validate(); err == nil {
		t.Error("Validate should reject StepWidth <= 0")
	}
}

func TestSpectrumSpecValidateRejectsEndBeforeStart(t *testing.T) {
	spec := &SpectrumSpec{
		Mode:            ModeFAT,
		StartEnergy:     400,
		EndEnergy:       399,
		StepWidth:       0.5,
		DwellTime:       0.1,
		ValuesPerSample: 1,
		NumSlices:       1,
		NumScans:        1,
	}
	if err := spec.Validate(); err == nil {
		t.Error("Validate should reject EndEnergy < StartEnergy")
	}
}

func TestSpectrumSpecValidateRejectsEmptyEnergiesForFE(t *testing.T) {
	spec := &SpectrumSpec{Mode: ModeFE, DwellTime: 0.1, ValuesPerSample: 1, NumSlices: 1, NumScans: 1}
	if err := spec.Validate(); err == nil {
		t.Error("Validate should reject an empty Energies array for FE mode")
	}
}

func TestSpectrumSpecValidateAcceptsWellFormedRanged(t *testing.T) {
	spec := &SpectrumSpec{
		Mode:            ModeFAT,
		StartEnergy:     400,
		EndEnergy:       402,
		StepWidth:       0.5,
		DwellTime:       0.1,
		ValuesPerSample: 1,
		NumSlices:       1,
		NumScans:        1,
	}
	if err := spec.Validate(); err != nil {
		t.Errorf("Validate rejected a well-formed spec: %v", err)
	}
}

func TestSpectrumSpecEnergyAt(t *testing.T) {
	spec := &SpectrumSpec{Mode: ModeFAT, StartEnergy: 400, StepWidth: 0.5}
	if got := spec.EnergyAt(2); got != 401 {
		t.Errorf("EnergyAt(2) = %g, want 401", got)
	}

	fe := &SpectrumSpec{Mode: ModeFE, Energies: []float64{10, 20, 30}}
	if got := fe.EnergyAt(1); got != 20 {
		t.Errorf("EnergyAt(1) for FE = %g, want 20", got)
	}
}
