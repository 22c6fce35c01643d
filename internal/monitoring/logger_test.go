package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("probe")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op, not a nil function.
	called = false
	SetLogger(nil)
	Logf("probe")
	if called {
		t.Error("no-op logger should not invoke the previous logger")
	}
}

func TestLogf_DefaultNotNil(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}
