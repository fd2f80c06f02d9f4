package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeInvalidSequence, "invalid nucleotides: %s", "XY")

	if err.Code != ErrCodeInvalidSequence {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidSequence)
	}

	if err.Message != "invalid nucleotides: XY" {
		t.Errorf("Message = %v, want %v", err.Message, "invalid nucleotides: XY")
	}

	expected := "INVALID_SEQUENCE: invalid nucleotides: XY"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeInvalidFile, cause, "failed to parse counts")

	if err.Code != ErrCodeInvalidFile {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidFile)
	}

	if !errors.Is(err, cause) {
		t.Error("wrapped error should match its cause with errors.Is")
	}

	expected := "INVALID_FILE: failed to parse counts: underlying error"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("io failure")
	err := Wrap(ErrCodeGenomeIndex, cause, "build index")

	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause")
	}

	plain := New(ErrCodeNoReads, "no reads at site")
	if errors.Unwrap(plain) != nil {
		t.Error("Unwrap of an error without cause should be nil")
	}
}

func TestIs(t *testing.T) {
	err := New(ErrCodeSNPNotFound, "no SNP at chr1:100")

	if !Is(err, ErrCodeSNPNotFound) {
		t.Error("Is should match the error's own code")
	}
	if Is(err, ErrCodeRunNotFound) {
		t.Error("Is should not match a different code")
	}
	if Is(errors.New("plain"), ErrCodeSNPNotFound) {
		t.Error("Is should not match plain errors")
	}
	if Is(nil, ErrCodeSNPNotFound) {
		t.Error("Is should not match nil")
	}
}

func TestIsWrappedChain(t *testing.T) {
	inner := New(ErrCodeFileNotFound, "open counts.txt")
	outer := fmt.Errorf("load dataset: %w", inner)

	if !Is(outer, ErrCodeFileNotFound) {
		t.Error("Is should find the code through a fmt.Errorf wrap")
	}
	if GetCode(outer) != ErrCodeFileNotFound {
		t.Errorf("GetCode = %v, want %v", GetCode(outer), ErrCodeFileNotFound)
	}
}

func TestGetCode(t *testing.T) {
	err := New(ErrCodeGenomeMismatch, "expected C, genome has T")
	if GetCode(err) != ErrCodeGenomeMismatch {
		t.Errorf("GetCode = %v, want %v", GetCode(err), ErrCodeGenomeMismatch)
	}

	if GetCode(errors.New("plain")) != "" {
		t.Error("GetCode of a plain error should be empty")
	}
}

func TestUserMessage(t *testing.T) {
	err := New(ErrCodeZeroExposure, "exposure effect is zero for rs123")
	if UserMessage(err) != "exposure effect is zero for rs123" {
		t.Errorf("UserMessage = %q", UserMessage(err))
	}

	plain := errors.New("something broke")
	if UserMessage(plain) != "something broke" {
		t.Errorf("UserMessage of plain error = %q", UserMessage(plain))
	}
}
