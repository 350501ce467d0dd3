package domain

import (
	"errors"
	"testing"
)

func validDoc() Document {
	return Document{
		UID:    "pubmed:36160001",
		Source: "pubmed",
		Title:  "Effect of drug X on systolic blood pressure",
		Text:   "Background: Hypertension is common. Methods: We randomized 200 adults.",
	}
}

func TestValidateDocument_Valid(t *testing.T) {
	if err := ValidateDocument(validDoc()); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateDocument_MissingUID(t *testing.T) {
	d := validDoc()
	d.UID = "  "
	err := ValidateDocument(d)
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
}

func TestValidateDocument_MissingSource(t *testing.T) {
	d := validDoc()
	d.Source = ""
	if err := ValidateDocument(d); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
}

func TestValidateDocument_UnknownSection(t *testing.T) {
	d := validDoc()
	d.Sections = []Section{{Name: "Acknowledgements", Body: "thanks", Order: 0}}
	if err := ValidateDocument(d); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
}

func TestValidationError_Unwrap(t *testing.T) {
	ve := NewValidationError("uid", "", ErrMissingUID)
	if !errors.Is(ve, ErrMissingUID) {
		t.Fatal("expected Unwrap to reach ErrMissingUID")
	}
	if ve.Error() == "" {
		t.Fatal("expected non-empty message")
	}
}
