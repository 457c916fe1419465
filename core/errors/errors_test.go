package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeInvalidModuleName, "module name must not start with a digit")
	if err == nil {
		t.Fatal("New should return non-nil error")
	}

	var customErr *E
	if !errors.As(err, &customErr) {
		t.Fatal("Error should be of type *E")
	}

	if customErr.Code != CodeInvalidModuleName {
		t.Errorf("Expected code %s, got %s", CodeInvalidModuleName, customErr.Code)
	}

	want := "INVALID_MODULE_NAME: module name must not start with a digit"
	if err.Error() != want {
		t.Errorf("Expected message %q, got %q", want, err.Error())
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := fs.ErrPermission
	err := Wrapf(CodeIOWriteFailure, "projectfs.WriteFile", cause, "write %s", "src/app/main.py")

	if !errors.Is(err, fs.ErrPermission) {
		t.Error("Wrapped error should match the original cause")
	}
	if CodeOf(err) != CodeIOWriteFailure {
		t.Errorf("Expected code %s, got %s", CodeIOWriteFailure, CodeOf(err))
	}
}

func TestBuilderPath(t *testing.T) {
	err := Build(CodeUnresolvedPlaceholder).
		WithOp("rewrite").
		WithPath("domain/${context}/entities.py.tmpl").
		WithMsgf("unknown token %q", "tenant").
		WithDetails("tenant").
		Err()

	if got := PathOf(err); got != "domain/${context}/entities.py.tmpl" {
		t.Errorf("Expected path to be kept, got %q", got)
	}

	want := `UNRESOLVED_PLACEHOLDER: domain/${context}/entities.py.tmpl: unknown token "tenant"`
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}

	var e *E
	if !As(err, &e) || len(e.Details) != 1 || e.Details[0] != "tenant" {
		t.Errorf("Expected details [tenant], got %+v", e)
	}
}

func TestCodeOfThroughWrapping(t *testing.T) {
	base := New(CodeDestinationAlreadyExists, "destination is not empty")
	wrapped := fmt.Errorf("materialize: %w", base)

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), ""},
		{"direct", base, CodeDestinationAlreadyExists},
		{"wrapped", wrapped, CodeDestinationAlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsValidation(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{CodeInvalidProjectName, true},
		{CodeUnknownDB, true},
		{CodeEmptyContextList, true},
		{CodeConflictingContextInput, true},
		{CodeUnresolvedPlaceholder, false},
		{CodeIOWriteFailure, false},
		{CodeDestinationAlreadyExists, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := IsValidation(New(tt.code, "x")); got != tt.want {
				t.Errorf("IsValidation(%s) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}
