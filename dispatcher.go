package main

import (
	"fmt"
	"strconv"
	"sync"
)

func parseStoredNumber(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// Dispatcher routes one session's parsed requests to the Engine and
// Store, enforcing the "must be connected" precondition uniformly
// except for Connect itself, and mapping domain errors to wire codes
// (spec.md 4.E, 6, 7).
type Dispatcher struct {
	mu sync.Mutex

	engine     *Engine
	store      *ParameterStore
	serverName string
	connected  bool
	metrics    *Metrics // optional
}

// NewDispatcher wires an Engine and ParameterStore for one session.
func NewDispatcher(engine *Engine, store *ParameterStore, serverName string, metrics *Metrics) *Dispatcher {
	return &Dispatcher{engine: engine, store: store, serverName: serverName, metrics: metrics}
}

type handlerFunc func(d *Dispatcher, req *ParsedRequest) ([]OutParam, *ProtocolError, bool)

var commandTable = map[string]handlerFunc{
	"Connect":                      (*Dispatcher).handleConnect,
	"Disconnect":                   (*Dispatcher).handleDisconnect,
	"DefineSpectrumFAT":            handleDefineRanged(ModeFAT),
	"DefineSpectrumFRR":            handleDefineRanged(ModeFRR),
	"DefineSpectrumFE":             handleDefineFE,
	"DefineSpectrumSFAT":           handleDefineStub,
	"DefineSpectrumLVS":            handleDefineStub,
	"CheckSpectrumFAT":             handleCheckRanged(ModeFAT),
	"CheckSpectrumFRR":             handleCheckRanged(ModeFRR),
	"CheckSpectrumFE":              handleCheckFE,
	"CheckSpectrumSFAT":            handleCheckStub,
	"CheckSpectrumLVS":             handleCheckStub,
	"ValidateSpectrum":             (*Dispatcher).handleValidateSpectrum,
	"Start":                        (*Dispatcher).handleStart,
	"Pause":                        (*Dispatcher).handlePause,
	"Resume":                       (*Dispatcher).handleResume,
	"Abort":                        (*Dispatcher).handleAbort,
	"ClearSpectrum":                (*Dispatcher).handleClearSpectrum,
	"GetAcquisitionStatus":         (*Dispatcher).handleGetAcquisitionStatus,
	"GetAcquisitionData":           (*Dispatcher).handleGetAcquisitionData,
	"GetAllAnalyzerParameterNames": (*Dispatcher).handleGetAllParameterNames,
	"GetAnalyzerParameterInfo":     (*Dispatcher).handleGetParameterInfo,
	"GetAnalyzerVisibleName":       (*Dispatcher).handleGetVisibleName,
	"GetAnalyzerParameterValue":    (*Dispatcher).handleGetParameterValue,
	"SetAnalyzerParameterValue":    (*Dispatcher).handleSetParameterValue,
}

// Handle dispatches one parsed request and returns the formatted
// response line plus whether the session should close after writing it.
func (d *Dispatcher) Handle(req *ParsedRequest) (string, bool) {
	handler, ok := commandTable[req.Command]
	if !ok {
		return FormatErrorResponse(req.ID, errUnknownCommand(req.Command)), false
	}

	if req.Command != "Connect" {
		d.mu.Lock()
		connected := d.connected
		d.mu.Unlock()
		if !connected {
			return FormatErrorResponse(req.ID, errNotConnected()), false
		}
	}

	d.metrics.RecordCommand(req.Command)

	params, perr, shouldClose := handler(d, req)
	if perr != nil {
		d.metrics.RecordError(perr.Code)
		return FormatErrorResponse(req.ID, perr), false
	}
	return FormatResponse(req.ID, params), shouldClose
}

// clientAdvertisedVersion returns the raw text of whichever version
// parameter the client supplied on Connect, if any. The protocol doesn't
// fix the key name; both spellings seen across Remote In drivers are
// accepted.
func clientAdvertisedVersion(params map[string]ParamValue) (string, bool) {
	if v, ok := params["ProtocolVersion"]; ok {
		return v.AsString(), true
	}
	if v, ok := params["ClientVersion"]; ok {
		return v.AsString(), true
	}
	return "", false
}

func (d *Dispatcher) handleConnect(req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		return nil, errAlreadyConnected(), false
	}

	if raw, ok := clientAdvertisedVersion(req.Params); ok {
		clientVersion, err := ParseProtocolVersion(raw)
		if err != nil || !clientVersion.CompatibleWith(SupportedProtocolVersion()) {
			return nil, errIncompatibleProtocolVersion(raw, supportedProtocolVersion), false
		}
	}

	d.connected = true
	return []OutParam{
		outString("ServerName", d.serverName),
		outRaw("ProtocolVersion", bareValue(supportedProtocolVersion[:3])),
	}, nil, false
}

func (d *Dispatcher) handleDisconnect(req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	d.engine.Disconnect()
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
	return nil, nil, true
}

// errInvalidSpectrumParams wraps a local validation failure as 201.
func errInvalidSpectrumParams(err error) *ProtocolError {
	return newProtocolError(201, err.Error())
}

func floatParam(params map[string]ParamValue, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		if f, ok := v.AsFloat(); ok {
			return f
		}
	}
	return def
}

func intParam(params map[string]ParamValue, key string, def int) int {
	if v, ok := params[key]; ok {
		if i, ok := v.AsInt(); ok {
			return i
		}
	}
	return def
}

func stringParam(params map[string]ParamValue, key, def string) string {
	if v, ok := params[key]; ok {
		return v.AsString()
	}
	return def
}

func buildRangedSpec(mode SpectrumMode, params map[string]ParamValue) *SpectrumSpec {
	return &SpectrumSpec{
		Mode:            mode,
		StartEnergy:     floatParam(params, "StartEnergy", 0),
		EndEnergy:       floatParam(params, "EndEnergy", 0),
		StepWidth:       floatParam(params, "StepWidth", 0),
		DwellTime:       floatParam(params, "DwellTime", 0),
		PassEnergy:      floatParam(params, "PassEnergy", 0),
		RetardingRatio:  floatParam(params, "RetardingRatio", 0),
		LensMode:        LensMode(stringParam(params, "LensMode", string(LensHighMagnification))),
		ScanRange:       ScanRange(stringParam(params, "ScanRange", string(ScanMediumArea))),
		NumScans:        intParam(params, "NumberOfScans", 1),
		ValuesPerSample: intParam(params, "ValuesPerSample", 1),
		NumSlices:       intParam(params, "NumberOfSlices", 1),
	}
}

func buildFESpec(params map[string]ParamValue) *SpectrumSpec {
	spec := &SpectrumSpec{
		Mode:            ModeFE,
		DwellTime:       floatParam(params, "DwellTime", 0),
		PassEnergy:      floatParam(params, "PassEnergy", 0),
		LensMode:        LensMode(stringParam(params, "LensMode", string(LensHighMagnification))),
		ScanRange:       ScanRange(stringParam(params, "ScanRange", string(ScanMediumArea))),
		NumScans:        intParam(params, "NumberOfScans", 1),
		ValuesPerSample: intParam(params, "ValuesPerSample", 1),
		NumSlices:       intParam(params, "NumberOfSlices", 1),
	}
	if v, ok := params["Energies"]; ok {
		if list, ok := v.AsFloatList(); ok {
			spec.Energies = list
		}
	}
	return spec
}

// handleDefineRanged returns a handler for a FAT/FRR-shaped
// DefineSpectrum command: stores the spec on the engine.
func handleDefineRanged(mode SpectrumMode) handlerFunc {
	return func(d *Dispatcher, req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
		spec := buildRangedSpec(mode, req.Params)
		if err := d.engine.Define(spec); err != nil {
			return nil, errInvalidSpectrumParams(err), false
		}
		return nil, nil, false
	}
}

func handleDefineFE(d *Dispatcher, req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	spec := buildFESpec(req.Params)
	if err := d.engine.Define(spec); err != nil {
		return nil, errInvalidSpectrumParams(err), false
	}
	return nil, nil, false
}

// handleDefineStub implements the SFAT/LVS acknowledge-without-storing
// behavior decided in DESIGN.md's Open Question section: it validates
// nothing and never touches the engine's stored spec.
func handleDefineStub(d *Dispatcher, req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	return nil, nil, false
}

func handleCheckRanged(mode SpectrumMode) handlerFunc {
	return func(d *Dispatcher, req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
		spec := buildRangedSpec(mode, req.Params)
		if err := spec.Validate(); err != nil {
			return nil, errInvalidSpectrumParams(err), false
		}
		return nil, nil, false
	}
}

func handleCheckFE(d *Dispatcher, req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	spec := buildFESpec(req.Params)
	if err := spec.Validate(); err != nil {
		return nil, errInvalidSpectrumParams(err), false
	}
	return nil, nil, false
}

func handleCheckStub(d *Dispatcher, req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	return nil, nil, false
}

// errNoSpectrumDefinedWire wraps the engine's sentinel as 202.
func errNoSpectrumDefinedWire() *ProtocolError {
	return newProtocolError(202, "No spectrum defined.")
}

func (d *Dispatcher) handleValidateSpectrum(req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	spec, err := d.engine.Validate()
	if err != nil {
		return nil, errNoSpectrumDefinedWire(), false
	}

	out := []OutParam{}
	if spec.Mode == ModeFE {
		energies := make([]ParamValue, len(spec.Energies))
		for i, e := range spec.Energies {
			energies[i] = numberValue(e)
		}
		out = append(out, outRaw("Energies", listValue(energies)))
	} else {
		out = append(out,
			outFloat("StartEnergy", spec.StartEnergy),
			outFloat("EndEnergy", spec.EndEnergy),
			outFloat("StepWidth", spec.StepWidth),
		)
	}
	out = append(out, outInt("Samples", spec.NumSamples()))
	out = append(out, outFloat("DwellTime", spec.DwellTime))
	out = append(out, outFloat("PassEnergy", spec.PassEnergy))
	if spec.Mode == ModeFRR {
		out = append(out, outFloat("RetardingRatio", spec.RetardingRatio))
	}
	out = append(out,
		outString("LensMode", string(spec.LensMode)),
		outString("ScanRange", string(spec.ScanRange)),
		outInt("ValuesPerSample", spec.ValuesPerSample),
		outInt("NumberOfSlices", spec.NumSlices),
	)
	return out, nil, false
}

func (d *Dispatcher) handleStart(req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	safeStateAfter := false
	if v, ok := req.Params["SetSafeStateAfter"]; ok {
		safeStateAfter = v.AsString() == "true" || v.AsString() == "1"
	}
	err := d.engine.Start(safeStateAfter)
	switch err {
	case nil:
		return nil, nil, false
	case ErrNotValidated:
		return nil, newProtocolError(203, "Spectrum not validated."), false
	case ErrAlreadyRunning:
		return nil, newProtocolError(204, "Acquisition already running."), false
	default:
		return nil, newProtocolError(203, err.Error()), false
	}
}

func (d *Dispatcher) handlePause(req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	if err := d.engine.Pause(); err != nil {
		return nil, newProtocolError(205, "No acquisition running."), false
	}
	return nil, nil, false
}

func (d *Dispatcher) handleResume(req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	if err := d.engine.Resume(); err != nil {
		return nil, newProtocolError(206, "Acquisition not paused."), false
	}
	return nil, nil, false
}

func (d *Dispatcher) handleAbort(req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	if err := d.engine.Abort(); err != nil {
		return nil, newProtocolError(207, "No acquisition to abort."), false
	}
	return nil, nil, false
}

func (d *Dispatcher) handleClearSpectrum(req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	if err := d.engine.Clear(); err != nil {
		return nil, newProtocolError(203, "Cannot clear while acquisition is active."), false
	}
	return nil, nil, false
}

func (d *Dispatcher) handleGetAcquisitionStatus(req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	st := d.engine.Status()
	d.metrics.ObserveEngineStatus(st, d.engine.BufferLen())
	out := []OutParam{
		outString("ControllerStatus", st.State.String()),
		outInt("NumberOfAcquiredPoints", st.AcquiredSamples),
		outRaw("ElapsedTime", bareValue(fmt.Sprintf("%.2f", st.ElapsedSeconds))),
		outInt("CurrentIteration", st.CurrentIteration),
	}
	if st.ErrorMessage != "" {
		out = append(out, outString("ErrorMessage", st.ErrorMessage))
	}
	return out, nil, false
}

func (d *Dispatcher) handleGetAcquisitionData(req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	from, hasFrom := req.Params["FromIndex"]
	to, hasTo := req.Params["ToIndex"]
	if !hasFrom || !hasTo {
		return nil, newProtocolError(208, "Invalid data range."), false
	}
	fromI, ok1 := from.AsInt()
	toI, ok2 := to.AsInt()
	if !ok1 || !ok2 {
		return nil, newProtocolError(208, "Invalid data range."), false
	}

	values, err := d.engine.Read(fromI, toI)
	if err != nil {
		return nil, newProtocolError(208, "Invalid data range."), false
	}

	data := make([]ParamValue, len(values))
	for i, v := range values {
		data[i] = bareValue(formatDataValue(v))
	}
	return []OutParam{
		outInt("FromIndex", fromI),
		outInt("ToIndex", toI),
		outRaw("Data", listValue(data)),
	}, nil, false
}

func requireParameterName(req *ParsedRequest) (string, *ProtocolError) {
	v, ok := req.Params["ParameterName"]
	if !ok {
		return "", newProtocolError(301, "Unknown analyzer parameter.")
	}
	return v.AsString(), nil
}

func (d *Dispatcher) handleGetAllParameterNames(req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	names := d.store.ListNames()
	list := make([]ParamValue, len(names))
	for i, n := range names {
		list[i] = stringValue(n)
	}
	return []OutParam{outRaw("Names", listValue(list))}, nil, false
}

func (d *Dispatcher) handleGetParameterInfo(req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	name, perr := requireParameterName(req)
	if perr != nil {
		return nil, perr, false
	}
	ptype, err := d.store.Info(name)
	if err != nil {
		return nil, newProtocolError(301, "Unknown analyzer parameter: %s", name), false
	}
	return []OutParam{
		outString("Name", name),
		outString("Type", ptype.String()),
	}, nil, false
}

func (d *Dispatcher) handleGetVisibleName(req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	name, perr := requireParameterName(req)
	if perr != nil {
		return nil, perr, false
	}
	if _, err := d.store.Info(name); err != nil {
		return nil, newProtocolError(301, "Unknown analyzer parameter: %s", name), false
	}
	return []OutParam{outString("VisibleName", name)}, nil, false
}

func (d *Dispatcher) handleGetParameterValue(req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	name, perr := requireParameterName(req)
	if perr != nil {
		return nil, perr, false
	}
	value, ptype, err := d.store.Get(name)
	if err != nil {
		return nil, newProtocolError(301, "Unknown analyzer parameter: %s", name), false
	}
	out := outString("Value", value)
	if ptype == ParamInt || ptype == ParamFloat {
		if f, err := parseStoredNumber(value); err == nil {
			out = outFloat("Value", f)
		}
	}
	return []OutParam{outString("Name", name), out}, nil, false
}

func (d *Dispatcher) handleSetParameterValue(req *ParsedRequest) ([]OutParam, *ProtocolError, bool) {
	name, perr := requireParameterName(req)
	if perr != nil {
		return nil, perr, false
	}
	v, ok := req.Params["Value"]
	if !ok {
		return nil, newProtocolError(301, "Missing Value for %s.", name), false
	}
	if err := d.store.Set(name, v.AsString()); err != nil {
		return nil, newProtocolError(301, "%s: %s", name, err.Error()), false
	}
	return nil, nil, false
}
