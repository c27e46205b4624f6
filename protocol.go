package main

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// malformedReqID is the request id echoed when no valid id could be
// extracted from a frame (spec.md 4.D).
const malformedReqID = "FFFF"

// ProtocolError is a wire-level error: a numeric code plus a human
// readable message, per spec.md section 6's code table.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

func newProtocolError(code int, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Well-known protocol errors (spec.md section 6).
func errUnknownMessageFormat() *ProtocolError {
	return newProtocolError(4, "Unknown message format.")
}

func errAlreadyConnected() *ProtocolError {
	return newProtocolError(2, "Already connected to a TCP client.")
}

func errNotConnected() *ProtocolError {
	return newProtocolError(3, "You are not connected.")
}

func errUnknownCommand(name string) *ProtocolError {
	return newProtocolError(101, "Unknown command: %s", name)
}

// errIncompatibleProtocolVersion is the SPEC_FULL.md 3's domain-stack
// extension to spec.md 6's error table: code 5, raised by Connect when a
// client advertises a ProtocolVersion whose major component does not
// match this simulator's (see version.go's CompatibleWith).
func errIncompatibleProtocolVersion(client, server string) *ProtocolError {
	return newProtocolError(5, "Incompatible protocol version: client %s, server %s.", client, server)
}

// ValueKind identifies which of the four wire value grammars a ParamValue
// holds (spec.md 4.D: NUMBER | QUOTED_STRING | LIST | BARE_WORD).
type ValueKind int

const (
	KindNumber ValueKind = iota
	KindString
	KindList
	KindBare
)

// ParamValue is a parsed request parameter or response output parameter.
type ParamValue struct {
	Kind ValueKind
	Num  float64
	Str  string
	List []ParamValue
}

func numberValue(v float64) ParamValue  { return ParamValue{Kind: KindNumber, Num: v} }
func stringValue(v string) ParamValue   { return ParamValue{Kind: KindString, Str: v} }
func bareValue(v string) ParamValue     { return ParamValue{Kind: KindBare, Str: v} }
func intValue(v int) ParamValue         { return numberValue(float64(v)) }
func listValue(v []ParamValue) ParamValue { return ParamValue{Kind: KindList, List: v} }

// AsFloat returns the numeric value of v, parsing a bare word if needed.
func (v ParamValue) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindBare, KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		return f, err == nil
	}
	return 0, false
}

// AsInt truncates AsFloat.
func (v ParamValue) AsInt() (int, bool) {
	f, ok := v.AsFloat()
	if !ok {
		return 0, false
	}
	return int(f), true
}

// AsString returns the value's text form regardless of kind.
func (v ParamValue) AsString() string {
	switch v.Kind {
	case KindNumber:
		return formatFloat(v.Num)
	case KindString, KindBare:
		return v.Str
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.AsString()
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return ""
}

// AsFloatList returns the numeric contents of a KindList value.
func (v ParamValue) AsFloatList() ([]float64, bool) {
	if v.Kind != KindList {
		return nil, false
	}
	out := make([]float64, 0, len(v.List))
	for _, item := range v.List {
		f, ok := item.AsFloat()
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// asciiFold applies compatibility decomposition (NFKD, which maps
// full-width forms to their ASCII counterparts) and strips combining
// marks from a quoted string before it's stored or echoed back on the
// wire (spec.md 4.D: "strings are ASCII-safe in practice"). Characters
// with no ASCII decomposition are passed through unchanged.
func asciiFold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// ParsedRequest is one decoded request frame.
type ParsedRequest struct {
	ID      string
	Command string
	Params  map[string]ParamValue
}

// ParseRequestLine decodes one LF-terminated frame's content (the LF/CR
// already stripped by the caller) per spec.md 4.D's grammar. The request
// id is kept exactly as sent so the response can echo it unchanged. On
// failure it returns a nil request and a ProtocolError whose Code is
// always 4; the caller answers with malformedReqID.
func ParseRequestLine(line string) (*ParsedRequest, *ProtocolError) {
	if len(line) < 1 || line[0] != '?' {
		return nil, errUnknownMessageFormat()
	}
	if len(line) < 5 {
		return nil, errUnknownMessageFormat()
	}
	rawID := line[1:5]
	if !isHex4(rawID) {
		return nil, errUnknownMessageFormat()
	}
	reqID := rawID

	if len(line) < 7 || line[5] != ' ' {
		return nil, errUnknownMessageFormat()
	}
	rest := line[6:]
	tokens := strings.Fields(rest)
	if len(tokens) == 0 {
		return nil, errUnknownMessageFormat()
	}

	command := tokens[0]
	params, err := parseParamTokens(tokens[1:])
	if err != nil {
		return nil, errUnknownMessageFormat()
	}

	return &ParsedRequest{ID: reqID, Command: command, Params: params}, nil
}

func isHex4(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// parseParamTokens reassembles quoted values split by whitespace, then
// parses each key:value pair, mirroring the source simulator's
// parse_parameters reassembly rule.
func parseParamTokens(tokens []string) (map[string]ParamValue, error) {
	params := make(map[string]ParamValue)
	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		colon := strings.IndexByte(tok, ':')
		if colon < 0 {
			i++
			continue
		}
		key := tok[:colon]
		value := tok[colon+1:]

		if strings.HasPrefix(value, `"`) && !strings.HasSuffix(value, `"`) {
			parts := []string{value}
			i++
			for i < len(tokens) {
				parts = append(parts, tokens[i])
				if strings.HasSuffix(tokens[i], `"`) {
					break
				}
				i++
			}
			value = strings.Join(parts, " ")
		}

		params[key] = parseValue(value)
		i++
	}
	return params, nil
}

func parseValue(raw string) ParamValue {
	if len(raw) >= 2 && strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`) {
		return stringValue(asciiFold(raw[1 : len(raw)-1]))
	}
	if len(raw) >= 2 && strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		inner := raw[1 : len(raw)-1]
		if strings.TrimSpace(inner) == "" {
			return listValue(nil)
		}
		items := strings.Split(inner, ",")
		out := make([]ParamValue, len(items))
		for i, it := range items {
			out[i] = parseValue(strings.TrimSpace(it))
		}
		return listValue(out)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return numberValue(f)
	}
	return bareValue(raw)
}

// formatFloat renders v with enough precision to round-trip, always
// including a decimal point (spec.md 4.D and the scenario outputs in
// section 8, e.g. "StartEnergy:400.0").
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// formatDataValue renders one data-array sample with fixed precision,
// matching the source simulator's f"{v:.6f}" formatting.
func formatDataValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// OutParam is one key/value pair of a response's OUT_PARAMS.
type OutParam struct {
	Key   string
	Value ParamValue
}

func outInt(key string, v int) OutParam      { return OutParam{key, intValue(v)} }
func outFloat(key string, v float64) OutParam { return OutParam{key, numberValue(v)} }
func outString(key, v string) OutParam       { return OutParam{key, stringValue(v)} }
func outRaw(key string, v ParamValue) OutParam { return OutParam{key, v} }

// FormatResponse renders a successful response line.
func FormatResponse(reqID string, params []OutParam) string {
	if len(params) == 0 {
		return fmt.Sprintf("!%s OK", reqID)
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.Key + ":" + formatOutValue(p.Value)
	}
	return fmt.Sprintf("!%s OK: %s", reqID, strings.Join(parts, " "))
}

// FormatErrorResponse renders an error response line.
func FormatErrorResponse(reqID string, err *ProtocolError) string {
	id := reqID
	if id == "" {
		id = malformedReqID
	}
	return fmt.Sprintf("!%s Error:%d %s", id, err.Code, err.Message)
}

func formatOutValue(v ParamValue) string {
	switch v.Kind {
	case KindNumber:
		return formatFloat(v.Num)
	case KindString:
		return `"` + v.Str + `"`
	case KindBare:
		return v.Str
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = formatOutValue(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return ""
}
