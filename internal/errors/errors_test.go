package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestCodedError_Error(t *testing.T) {
	err := New(CodeResolveNotFound, "no session matches")
	if got := err.Error(); got != "resolve.not_found: no session matches" {
		t.Errorf("unexpected Error(): %q", got)
	}

	wrapped := Wrap(CodeTransportRequestFailed, "getUpdates request failed", stderrors.New("timeout"))
	if got := wrapped.Error(); !strings.Contains(got, "timeout") {
		t.Errorf("wrapped error should include cause, got %q", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(CodeTransportRequestFailed, "sendMessage request failed", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil error", nil, ""},
		{"coded error", New(CodeConfigUntrusted, "rejected"), CodeConfigUntrusted},
		{"wrapped coded error", fmt.Errorf("outer: %w", New(CodeDownloadTooLarge, "too big")), CodeDownloadTooLarge},
		{"plain error", stderrors.New("something"), CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	err := NotFound("70")
	if !IsCode(err, CodeResolveNotFound) {
		t.Error("IsCode should match the error's own code")
	}
	if IsCode(err, CodeResolveAmbiguous) {
		t.Error("IsCode should not match a different code")
	}
}

func TestAmbiguous_NamesAllColliders(t *testing.T) {
	err := Ambiguous("70", []string{"alpha", "beta"})
	if !strings.Contains(err.Message, "alpha") || !strings.Contains(err.Message, "beta") {
		t.Errorf("ambiguous error should name all colliding sessions, got %q", err.Message)
	}
}

func TestTooLarge_ReportsMegabytes(t *testing.T) {
	err := TooLarge(25*1024*1024, 20*1024*1024)
	if !strings.Contains(err.Message, "25MB") || !strings.Contains(err.Message, "20MB") {
		t.Errorf("unexpected message: %q", err.Message)
	}
}

func TestGetMessage(t *testing.T) {
	if got := GetMessage(New(CodeInternal, "boom")); got != "boom" {
		t.Errorf("GetMessage() = %q, want %q", got, "boom")
	}
	if got := GetMessage(stderrors.New("plain")); got != "plain" {
		t.Errorf("GetMessage() = %q, want %q", got, "plain")
	}
	if got := GetMessage(nil); got != "" {
		t.Errorf("GetMessage(nil) = %q, want empty", got)
	}
}
