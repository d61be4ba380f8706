package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"bare", &Error{Message: "boom"}, "boom"},
		{"code", &Error{Code: CodeTransient, Message: "timed out"}, "[TRANSIENT] timed out"},
		{
			"op and cause",
			&Error{Code: CodeNotFound, Op: "resolver.extract", Message: "gone", Err: fmt.Errorf("HTTP 404")},
			"resolver.extract: [NOT_FOUND] gone: HTTP 404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNewCapturesCaller(t *testing.T) {
	err := Transient("rate limited")
	if len(err.Stack) == 0 {
		t.Fatal("expected stack")
	}
	if !strings.HasSuffix(err.Stack[0].File, "errors_test.go") {
		t.Errorf("expected first frame in the test, got %s", err.Stack[0].File)
	}
	if !strings.Contains(err.StackTrace(), "TestNewCapturesCaller") {
		t.Errorf("expected test function in trace, got %q", err.StackTrace())
	}
	if (&Error{}).StackTrace() != "" {
		t.Error("expected empty trace without frames")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "op", "msg") != nil {
		t.Error("expected nil for nil error")
	}
	if WrapWithCode(nil, CodeTransient, "op", "msg") != nil {
		t.Error("expected nil for nil error")
	}

	t.Run("plain error becomes internal", func(t *testing.T) {
		cause := fmt.Errorf("disk full")
		err := Wrap(cause, "scratch.create", "create file")
		if err.Code != CodeInternal {
			t.Errorf("expected %s, got %s", CodeInternal, err.Code)
		}
		if !errors.Is(err, cause) {
			t.Error("expected cause in chain")
		}
	})

	t.Run("classified code and fields survive", func(t *testing.T) {
		err := Wrap(fmt.Errorf("send: %w", TooLarge(60<<20, 50<<20)), "delivery.direct", "send video")
		if err.Code != CodeUnretryable {
			t.Errorf("expected %s, got %s", CodeUnretryable, err.Code)
		}
		if !IsTooLarge(err) {
			t.Error("expected too-large reason to survive wrapping")
		}
	})

	t.Run("explicit code", func(t *testing.T) {
		err := WrapWithCode(NotFound("u"), CodeTransient, "op", "retry")
		if err.Code != CodeTransient {
			t.Errorf("expected %s, got %s", CodeTransient, err.Code)
		}
	})

	t.Run("explicit code keeps inner fields", func(t *testing.T) {
		inner := TooLarge(60<<20, 50<<20)
		err := WrapWithCode(fmt.Errorf("handoff: %w", inner), CodeUnretryable, "delivery.conversion", "all endpoints failed")
		if !IsTooLarge(err) {
			t.Fatal("expected too-large reason on the outer error")
		}
		if GetFields(err)["limit"] != int64(50<<20) {
			t.Errorf("expected limit carried, got %v", GetFields(err)["limit"])
		}

		err.WithField("endpoint", "https://a")
		if _, leaked := inner.Fields["endpoint"]; leaked {
			t.Error("expected wrapper fields to be a copy")
		}
	})
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		code   Code
		status int
		field  string
		value  any
	}{
		{"not found", NotFound("https://x/1"), CodeNotFound, http.StatusNotFound, "url", "https://x/1"},
		{"unsupported", Unsupported("https://x/2"), CodeUnsupported, http.StatusBadRequest, "url", "https://x/2"},
		{"auth", AuthRequired("Instagram"), CodeAuthRequired, http.StatusUnauthorized, "provider", "Instagram"},
		{"busy", Busy("tg:42"), CodeBusy, http.StatusTooManyRequests, "principal", "tg:42"},
		{"validation", ValidationField("chat_id", "required"), CodeValidation, http.StatusBadRequest, "field", "chat_id"},
		{"too large", TooLarge(2, 1), CodeUnretryable, http.StatusUnprocessableEntity, "limit", int64(1)},
		{"transient", Transient("slow"), CodeTransient, http.StatusServiceUnavailable, "", nil},
		{"unretryable", Unretryable("no"), CodeUnretryable, http.StatusUnprocessableEntity, "", nil},
		{"internal", Internal("bug"), CodeInternal, http.StatusInternalServerError, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, tt.err.Code)
			}
			if got := GetHTTPStatus(tt.err); got != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, got)
			}
			if tt.field != "" && GetFields(tt.err)[tt.field] != tt.value {
				t.Errorf("expected %s=%v, got %v", tt.field, tt.value, GetFields(tt.err)[tt.field])
			}
		})
	}
}

func TestInspectUnclassified(t *testing.T) {
	plain := fmt.Errorf("plain")
	if GetCode(plain) != CodeInternal {
		t.Errorf("expected %s, got %s", CodeInternal, GetCode(plain))
	}
	if GetHTTPStatus(plain) != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", GetHTTPStatus(plain))
	}
	if GetFields(plain) != nil {
		t.Error("expected no fields")
	}
	if IsTooLarge(plain) || IsTransient(plain) {
		t.Error("plain error must not match a class")
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []error{NotFound("u"), Unsupported("u"), AuthRequired("X")}
	for _, err := range terminal {
		if !IsTerminal(fmt.Errorf("wrapped: %w", err)) {
			t.Errorf("expected %s to be terminal", GetCode(err))
		}
	}

	advancing := []error{Transient("t"), Unretryable("u"), Internal("i"), TooLarge(2, 1), fmt.Errorf("x")}
	for _, err := range advancing {
		if IsTerminal(err) {
			t.Errorf("expected %s to advance the chain", GetCode(err))
		}
	}
}

func TestErrorIsMatchesCode(t *testing.T) {
	err := fmt.Errorf("admit: %w", Busy("tg:1"))
	if !Is(err, New(CodeBusy, "")) {
		t.Error("expected busy to match by code")
	}
	if Is(err, New(CodeTransient, "")) {
		t.Error("expected different code not to match")
	}
	if !IsCode(err, CodeBusy) {
		t.Error("expected IsCode to see through wrapping")
	}

	var e *Error
	if !As(err, &e) || e.Fields["principal"] != "tg:1" {
		t.Errorf("expected As to extract the busy error, got %+v", e)
	}
}
