package domain

import (
	"fmt"
	"strings"
)

// ValidateDocument checks the caller contract for a Document entering the
// chunking pipeline. An empty UID or Source is a malformed input: the call
// fails rather than guessing defaults.
func ValidateDocument(d Document) error {
	if strings.TrimSpace(d.UID) == "" {
		return fmt.Errorf("%w: %s", ErrMalformedInput,
			NewValidationError("uid", d.UID, ErrMissingUID))
	}
	if strings.TrimSpace(d.Source) == "" {
		return fmt.Errorf("%w: %s", ErrMalformedInput,
			NewValidationError("source", d.Source, ErrMissingSource))
	}
	for _, s := range d.Sections {
		if !ValidSectionNames[s.Name] {
			return fmt.Errorf("%w: %s", ErrMalformedInput,
				NewValidationError("sections", string(s.Name), ErrUnknownSection))
		}
	}
	return nil
}
