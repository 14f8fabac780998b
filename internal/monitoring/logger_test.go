package monitoring

import (
	"fmt"
	"io"
	"testing"
)

func capture(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() { Logf = original })
	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := capture(t)
	Logf("queue depth %d", 3)
	if len(*lines) != 1 || (*lines)[0] != "queue depth 3" {
		t.Fatalf("got %q", *lines)
	}

	SetLogger(nil)
	Logf("muted")
	if len(*lines) != 1 {
		t.Errorf("no-op logger forwarded a message: %q", *lines)
	}
}

func TestWriter(t *testing.T) {
	lines := capture(t)
	w := Writer("http: ")

	n, err := io.WriteString(w, "first\n\nsecond\n")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len("first\n\nsecond\n") {
		t.Errorf("Write returned %d", n)
	}
	want := []string{"http: first", "http: second"}
	if fmt.Sprint(*lines) != fmt.Sprint(want) {
		t.Errorf("got %q, want %q", *lines, want)
	}
}
