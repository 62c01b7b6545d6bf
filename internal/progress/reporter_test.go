package progress

import (
	"bytes"
	"testing"
)

func TestCIReporter(t *testing.T) {
	var buf bytes.Buffer
	r := &CIReporter{Out: &buf, Description: "Processing manuals"}
	r.Start(2)
	r.Update(1, "a.pdf")
	r.Update(2, "b.pdf")
	r.Finish()

	want := "Processing manuals: 2 documents\n[1/2] a.pdf\n[2/2] b.pdf\nProcessing manuals: done\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestNewReporter(t *testing.T) {
	t.Setenv("CI", "")
	t.Setenv("GITHUB_ACTIONS", "")
	if _, ok := NewReporter("x", true).(*CIReporter); !ok {
		t.Error("quiet reporter should be a CIReporter")
	}
	if _, ok := NewReporter("x", false).(*TerminalReporter); !ok {
		t.Error("interactive reporter should be a TerminalReporter")
	}

	t.Setenv("CI", "true")
	if _, ok := NewReporter("x", false).(*CIReporter); !ok {
		t.Error("CI should select the CIReporter")
	}
}
