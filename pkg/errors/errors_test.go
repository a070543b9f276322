package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeToHTTPStatus(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{CodeInvalidInput, http.StatusBadRequest},
		{CodeTooManyRequests, http.StatusTooManyRequests},
		{CodeUpstreamUnavailable, http.StatusBadGateway},
		{CodeMalformedUpstreamResponse, http.StatusBadGateway},
		{CodeModelKeyMissing, http.StatusServiceUnavailable},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := New(tc.code, "x").HTTPStatus; got != tc.want {
			t.Errorf("code %s: got %d want %d", tc.code, got, tc.want)
		}
	}
}

func TestIsMatchesSentinelThroughWrapping(t *testing.T) {
	err := fmt.Errorf("compose: %w", ErrPromptTooLong.WithDetail("1001 chars"))
	if !stderrors.Is(err, ErrPromptTooLong) {
		t.Fatal("expected errors.Is to match ErrPromptTooLong")
	}
	if stderrors.Is(err, ErrPromptDisallowed) {
		t.Fatal("different message must not match")
	}
	if !IsCode(err, CodeInvalidInput) {
		t.Fatal("expected InvalidInput code")
	}
	if ErrPromptTooLong.Detail != "" {
		t.Fatal("WithDetail must not mutate the sentinel")
	}
}

func TestAsAppErrorWrapsForeignErrors(t *testing.T) {
	appErr := AsAppError(stderrors.New("boom"))
	if appErr.Code != CodeUnknown || appErr.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected %+v", appErr)
	}
	if stderrors.Unwrap(appErr) == nil {
		t.Fatal("expected wrapped cause")
	}
}
