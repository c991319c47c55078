package transport

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/danmuck/groupctl/internal/testutil/testlog"
)

func TestParseTargetForms(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"4803@localhost":  "localhost:4803",
		"4803@10.0.0.7":   "10.0.0.7:4803",
		"4803@":           "localhost:4803",
		"daemon.lan:4804": "daemon.lan:4804",
		"4803":            "localhost:4803",
	}
	for in, want := range cases {
		got, err := ParseTarget(in)
		if err != nil || got != want {
			t.Fatalf("ParseTarget(%q) got=%q err=%v want=%q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "x@localhost", "0@localhost", "localhost:99999"} {
		if _, err := ParseTarget(bad); err == nil {
			t.Fatalf("ParseTarget(%q) expected error", bad)
		}
	}
}

func TestTargetRoundTripsThroughParse(t *testing.T) {
	testlog.Start(t)
	got, err := ParseTarget(Target("localhost", DefaultPort))
	if err != nil || got != "localhost:4803" {
		t.Fatalf("got=%q err=%v", got, err)
	}
}

func TestValidateGroupName(t *testing.T) {
	testlog.Start(t)
	for _, ok := range []string{"lobby", "ops.alerts", strings.Repeat("g", 31)} {
		if err := ValidateGroupName(ok); err != nil {
			t.Fatalf("ValidateGroupName(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "#private", "two words", "tab\tname", strings.Repeat("g", 32)} {
		err := ValidateGroupName(bad)
		if StatusOf(err) != IllegalGroup {
			t.Fatalf("ValidateGroupName(%q) status=%v", bad, StatusOf(err))
		}
	}
}

func TestStatusOfUnwrapsWrappedErrors(t *testing.T) {
	testlog.Start(t)
	base := Errorf("join", IllegalGroup, errors.New("bad"))
	wrapped := fmt.Errorf("session: %w", base)
	if got := StatusOf(wrapped); got != IllegalGroup {
		t.Fatalf("got=%v", got)
	}
	if got := StatusOf(nil); got != OK {
		t.Fatalf("nil got=%v", got)
	}
	if got := StatusOf(errors.New("plain")); got != IllegalSession {
		t.Fatalf("plain got=%v", got)
	}
	if !AcceptSession.Success() || !OK.Success() || RejectAuth.Success() {
		t.Fatalf("unexpected success classification")
	}
	if Status(-99).String() != "status(-99)" {
		t.Fatalf("unexpected unknown status name: %q", Status(-99).String())
	}
}
