package main

import "testing"

func TestParseRequestLineBasic(t *testing.T) {
	req, perr := ParseRequestLine(`?01AB Connect`)
	if perr != nil {
		t.Fatalf("ParseRequestLine: %v", perr)
	}
	if req.ID != "01AB" {
		t.Errorf("ID = %s, want 01AB", req.ID)
	}
	if req.Command != "Connect" {
		t.Errorf("Command = %s, want Connect", req.Command)
	}
	if len(req.Params) != 0 {
		t.Errorf("Params = %v, want empty", req.Params)
	}
}

func TestParseRequestLineParams(t *testing.T) {
	req, perr := ParseRequestLine(`?0001 DefineSpectrumFAT StartEnergy:400.0 EndEnergy:402.0 LensMode:"High Magnification"`)
	if perr != nil {
		t.Fatalf("ParseRequestLine: %v", perr)
	}
	start, ok := req.Params["StartEnergy"].AsFloat()
	if !ok || start != 400.0 {
		t.Errorf("StartEnergy = %v (%v), want 400.0", start, ok)
	}
	lens := req.Params["LensMode"]
	if lens.Kind != KindString || lens.Str != "High Magnification" {
		t.Errorf("LensMode = %+v, want quoted string \"High Magnification\" (reassembled across the space)", lens)
	}
}

func TestParseRequestLineList(t *testing.T) {
	req, perr := ParseRequestLine(`?0002 DefineSpectrumFE Energies:[10,20,30]`)
	if perr != nil {
		t.Fatalf("ParseRequestLine: %v", perr)
	}
	list, ok := req.Params["Energies"].AsFloatList()
	if !ok {
		t.Fatal("Energies did not parse as a float list")
	}
	want := []float64{10, 20, 30}
	if len(list) != len(want) {
		t.Fatalf("Energies has %d entries, want %d", len(list), len(want))
	}
	for i, v := range want {
		if list[i] != v {
			t.Errorf("Energies[%d] = %g, want %g", i, list[i], v)
		}
	}
}

func TestParseRequestLineMalformed(t *testing.T) {
	cases := []string{
		"",
		"no-leading-marker",
		"?XYZ1 Connect",  // non-hex id
		"?0001",          // missing command
		"?0001NoSpace",   // missing separator space
	}
	for _, line := range cases {
		if _, perr := ParseRequestLine(line); perr == nil {
			t.Errorf("ParseRequestLine(%q) should have failed", line)
		} else if perr.Code != 4 {
			t.Errorf("ParseRequestLine(%q) error code = %d, want 4", line, perr.Code)
		}
	}
}

func TestFormatResponseRoundTrip(t *testing.T) {
	got := FormatResponse("01AB", []OutParam{outFloat("StartEnergy", 400), outInt("Samples", 5)})
	want := `!01AB OK: StartEnergy:400.0 Samples:5`
	if got != want {
		t.Errorf("FormatResponse = %q, want %q", got, want)
	}
}

func TestFormatResponseNoParams(t *testing.T) {
	got := FormatResponse("01AB", nil)
	if got != "!01AB OK" {
		t.Errorf("FormatResponse with no params = %q, want \"!01AB OK\"", got)
	}
}

func TestFormatErrorResponse(t *testing.T) {
	got := FormatErrorResponse("01AB", errNotConnected())
	want := "!01AB Error:3 You are not connected."
	if got != want {
		t.Errorf("FormatErrorResponse = %q, want %q", got, want)
	}
}

func TestFormatErrorResponseEmptyIDUsesMalformed(t *testing.T) {
	got := FormatErrorResponse("", errUnknownMessageFormat())
	if got != "!FFFF Error:4 Unknown message format." {
		t.Errorf("FormatErrorResponse with empty id = %q, want FFFF fallback", got)
	}
}

func TestAsciiFoldStripsCombiningMarks(t *testing.T) {
	got := asciiFold("café") // "café" with a composed é
	if got != "cafe" {
		t.Errorf("asciiFold(café) = %q, want cafe", got)
	}
}
