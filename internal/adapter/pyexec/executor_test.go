package pyexec

import (
	"context"
	"os/exec"
	"strings"
	"testing"
)

func requirePython(t *testing.T) *Executor {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("requires python3 on PATH")
	}
	return &Executor{}
}

func TestRunCapturesGlobalsAndStdout(t *testing.T) {
	e := requirePython(t)

	snap, err := e.Run(context.Background(), "x = 1\ny = 'hi'\nprint('hello')")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := snap.Globals["x"]; got != float64(1) {
		t.Errorf("x = %v (%T)", got, got)
	}
	if got := snap.Globals["y"]; got != "hi" {
		t.Errorf("y = %v", got)
	}
	if snap.Stdout != "hello\n" {
		t.Errorf("stdout = %q", snap.Stdout)
	}
}

func TestRunDropsFunctionsAndModules(t *testing.T) {
	e := requirePython(t)

	snap, err := e.Run(context.Background(), "import math\ndef f():\n    pass\nz = 3")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := snap.Globals["math"]; ok {
		t.Error("module leaked into snapshot")
	}
	if _, ok := snap.Globals["f"]; ok {
		t.Error("function leaked into snapshot")
	}
	if _, ok := snap.Globals["z"]; !ok {
		t.Error("plain variable missing from snapshot")
	}
}

func TestRunCanonicalizesNaN(t *testing.T) {
	e := requirePython(t)

	snap, err := e.Run(context.Background(), "n = float('nan')")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if snap.Globals["n"] != "__nan__" {
		t.Errorf("n = %v", snap.Globals["n"])
	}
}

func TestRunFailingScriptReturnsError(t *testing.T) {
	e := requirePython(t)

	_, err := e.Run(context.Background(), "print(undefined_name)")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "NameError") {
		t.Errorf("error = %v", err)
	}
}

func TestCaptureTraceback(t *testing.T) {
	e := requirePython(t)

	tb, err := e.CaptureTraceback(context.Background(), "print(y)")
	if err != nil {
		t.Fatalf("CaptureTraceback: %v", err)
	}
	if !strings.HasPrefix(tb, "Traceback") {
		t.Errorf("traceback = %q", tb)
	}
	if !strings.Contains(tb, "NameError") {
		t.Errorf("traceback missing final line: %q", tb)
	}
}

func TestCaptureTracebackCleanScript(t *testing.T) {
	e := requirePython(t)

	tb, err := e.CaptureTraceback(context.Background(), "x = 1")
	if err != nil {
		t.Fatalf("CaptureTraceback: %v", err)
	}
	if tb != "" {
		t.Errorf("traceback = %q, want empty", tb)
	}
}

func TestRewriteBlockingCalls(t *testing.T) {
	in := "import matplotlib.pyplot as plt\nplt.plot(xs)\nplt.show()\nx = 1"
	out := rewriteBlockingCalls(in)
	if strings.Contains(out, "plt.show()") {
		t.Errorf("show call survived: %q", out)
	}
	if !strings.Contains(out, "plt.plot(xs)") || !strings.Contains(out, "x = 1") {
		t.Errorf("rewrite dropped real code: %q", out)
	}
}

func TestCleanTracebackStripsANSI(t *testing.T) {
	raw := "noise before\n\x1b[0;31mTraceback (most recent call last):\x1b[0m\n  File ...\n\x1b[0;31mNameError\x1b[0m: name 'y' is not defined"
	tb := cleanTraceback(raw)
	if strings.Contains(tb, "\x1b") {
		t.Errorf("ANSI escapes survived: %q", tb)
	}
	if !strings.HasPrefix(tb, "Traceback") {
		t.Errorf("traceback = %q", tb)
	}
}
