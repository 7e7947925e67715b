package tools

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrToolUnavailable_Error(t *testing.T) {
	err := &ErrToolUnavailable{ToolName: "web_search"}
	want := `tool "web_search" is not available in this context`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrToolUnavailable_WrappedErrorsAs(t *testing.T) {
	orig := &ErrToolUnavailable{ToolName: "run_python"}
	wrapped := fmt.Errorf("tool execution: %w", orig)

	var target *ErrToolUnavailable
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to match wrapped *ErrToolUnavailable")
	}
	if target.ToolName != "run_python" {
		t.Errorf("ToolName = %q, want %q", target.ToolName, "run_python")
	}
}

func TestErrToolUnavailable_NotMatchOtherErrors(t *testing.T) {
	other := fmt.Errorf("some other error")
	var target *ErrToolUnavailable
	if errors.As(other, &target) {
		t.Error("errors.As should not match non-ErrToolUnavailable error")
	}
}

func TestResourceError(t *testing.T) {
	cause := errors.New("chrome not found")
	err := fmt.Errorf("navigate: %w", &ResourceError{Resource: "browser", Err: cause})

	var re *ResourceError
	if !errors.As(err, &re) {
		t.Fatal("errors.As failed to match *ResourceError")
	}
	if re.Resource != "browser" {
		t.Errorf("Resource = %q", re.Resource)
	}
	if !errors.Is(err, cause) {
		t.Error("ResourceError should unwrap to its cause")
	}
	if got := re.Error(); got != "acquire browser: chrome not found" {
		t.Errorf("Error() = %q", got)
	}
}
