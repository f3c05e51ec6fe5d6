package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAggregate_OfflineOnlyWhenAllFail(t *testing.T) {
	cases := []struct {
		name string
		in   map[CheckName]CheckResult
		want AggregateStatus
	}{
		{"empty", map[CheckName]CheckResult{}, Offline},
		{"all fail", map[CheckName]CheckResult{
			CheckSSH:   {Name: CheckSSH},
			CheckHTTP:  {Name: CheckHTTP},
			CheckHTTPS: {Name: CheckHTTPS},
			CheckPing:  {Name: CheckPing},
		}, Offline},
		{"only ping", map[CheckName]CheckResult{
			CheckSSH:   {Name: CheckSSH},
			CheckHTTP:  {Name: CheckHTTP},
			CheckHTTPS: {Name: CheckHTTPS},
			CheckPing:  {Name: CheckPing, Success: true},
		}, Online},
		{"only ssh", map[CheckName]CheckResult{
			CheckSSH:  {Name: CheckSSH, Success: true},
			CheckPing: {Name: CheckPing},
		}, Online},
		{"all up", map[CheckName]CheckResult{
			CheckSSH:   {Name: CheckSSH, Success: true},
			CheckHTTP:  {Name: CheckHTTP, Success: true},
			CheckHTTPS: {Name: CheckHTTPS, Success: true},
			CheckPing:  {Name: CheckPing, Success: true},
		}, Online},
	}
	for _, c := range cases {
		if got := Aggregate(c.in); got != c.want {
			t.Fatalf("%s: Aggregate=%s want %s", c.name, got, c.want)
		}
	}
}

// Every subset of the four checks: Offline iff no check succeeded.
func TestAggregate_Exhaustive(t *testing.T) {
	for mask := 0; mask < 16; mask++ {
		in := map[CheckName]CheckResult{}
		for i, name := range AllChecks {
			in[name] = CheckResult{Name: name, Success: mask&(1<<i) != 0}
		}
		want := Online
		if mask == 0 {
			want = Offline
		}
		if got := Aggregate(in); got != want {
			t.Fatalf("mask=%04b: got %s want %s", mask, got, want)
		}
	}
}

func TestSample_CheckMapAndNames(t *testing.T) {
	s := Sample{
		At: time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC),
		Checks: map[CheckName]CheckResult{
			CheckPing: {Name: CheckPing, Success: true},
			CheckSSH:  {Name: CheckSSH},
		},
	}
	m := s.CheckMap()
	if !m["ping"] || m["ssh"] {
		t.Fatalf("unexpected check map: %+v", m)
	}
	names := s.Names()
	if len(names) != 2 || names[0] != CheckPing || names[1] != CheckSSH {
		t.Fatalf("names not sorted: %v", names)
	}
	if s.Status() != Online {
		t.Fatalf("want Online, got %s", s.Status())
	}
}

func TestEvent_OfflineFor(t *testing.T) {
	since := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	e := Event{At: since.Add(7 * time.Minute), OfflineSince: &since}
	if got := e.OfflineFor(); got != 7*time.Minute {
		t.Fatalf("OfflineFor=%s", got)
	}
	if got := (Event{At: since}).OfflineFor(); got != 0 {
		t.Fatalf("OfflineFor without episode=%s", got)
	}
}

func TestEvent_JSONShape(t *testing.T) {
	e := Event{
		ID:     "e1",
		Kind:   EventRemediationFailed,
		Phase:  PhaseHealthy,
		Target: "192.0.2.10",
		At:     time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC),
		Attempt: &RemediationAttempt{
			Number:  1,
			Outcome: OutcomeError,
			Detail:  "timeout",
		},
	}
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["kind"] != "remediation_failed" || got["phase"] != "healthy" {
		t.Fatalf("unexpected kind/phase: %v", got)
	}
	att, _ := got["attempt"].(map[string]any)
	if att["outcome"] != "error" {
		t.Fatalf("unexpected attempt: %v", got["attempt"])
	}
	if _, ok := got["offline_since"]; ok {
		t.Fatalf("offline_since should be omitted: %v", got)
	}
}
