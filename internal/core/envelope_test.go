package core

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSuccessCarriesData(t *testing.T) {
	env := Success("Tool invoked successfully.", map[string]int{"n": 1})
	if !env.Success {
		t.Fatal("expected success")
	}
	if env.Error != "" {
		t.Fatalf("success must not carry error, got %q", env.Error)
	}

	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"data":{"n":1}`) {
		t.Fatalf("unexpected json: %s", b)
	}
}

func TestSuccessOmitsNilData(t *testing.T) {
	b, err := json.Marshal(Success("Gateway healthy.", nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), `"data"`) {
		t.Fatalf("nil data should be omitted: %s", b)
	}
}

func TestFailureHasNoData(t *testing.T) {
	env := Failure("Backend returned 503", "tools invoke HTTP 503: down")
	if env.Success {
		t.Fatal("expected failure")
	}
	if env.Data != nil {
		t.Fatalf("failure must not carry data, got %v", env.Data)
	}

	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"success":false,"message":"Backend returned 503","error":"tools invoke HTTP 503: down"}`
	if string(b) != want {
		t.Fatalf("got %s, want %s", b, want)
	}
}

func TestEmptyMessagesGetDefaults(t *testing.T) {
	if Success("", nil).Message == "" {
		t.Fatal("success message must never be empty")
	}
	if Failure("", "").Message == "" {
		t.Fatal("failure message must never be empty")
	}
}

func TestWithMessageKeepsData(t *testing.T) {
	env := Success("OK", []int{1, 2}).WithMessage("Feed retrieved.")
	if env.Message != "Feed retrieved." {
		t.Fatalf("message = %q", env.Message)
	}
	if got, ok := env.Data.([]int); !ok || len(got) != 2 {
		t.Fatalf("data lost: %#v", env.Data)
	}
	if Success("OK", nil).WithMessage("").Message != "OK" {
		t.Fatal("empty replacement should keep the original message")
	}
}

func TestDecodeData(t *testing.T) {
	raw := Success("ok", json.RawMessage(`{"sessions":["main"]}`))
	var out struct {
		Sessions []string `json:"sessions"`
	}
	if err := raw.DecodeData(&out); err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	if len(out.Sessions) != 1 || out.Sessions[0] != "main" {
		t.Fatalf("unexpected sessions: %v", out.Sessions)
	}

	typed := Success("ok", AuditReport{Findings: []Finding{{ID: "token_set", Severity: SeverityInfo, Title: "t"}}})
	var report AuditReport
	if err := typed.DecodeData(&report); err != nil {
		t.Fatalf("decode typed: %v", err)
	}
	if len(report.Findings) != 1 || report.Findings[0].ID != "token_set" {
		t.Fatalf("unexpected findings: %+v", report.Findings)
	}
}

func TestParseSeverity(t *testing.T) {
	for _, in := range []string{"info", "MEDIUM", " high ", "critical"} {
		if _, err := ParseSeverity(in); err != nil {
			t.Fatalf("ParseSeverity(%q): %v", in, err)
		}
	}
	if _, err := ParseSeverity("low"); err == nil {
		t.Fatal("expected error for unknown severity")
	}
}

func TestSeverityAtLeast(t *testing.T) {
	tests := []struct {
		s, threshold Severity
		want         bool
	}{
		{SeverityCritical, SeverityHigh, true},
		{SeverityHigh, SeverityHigh, true},
		{SeverityMedium, SeverityHigh, false},
		{SeverityInfo, SeverityInfo, true},
		{SeverityMedium, SeverityInfo, true},
		{Severity("bogus"), SeverityInfo, false},
	}
	for _, tt := range tests {
		if got := tt.s.AtLeast(tt.threshold); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.s, tt.threshold, got, tt.want)
		}
	}
}
