package domain

import (
	"fmt"
	"strconv"
	"strings"
)

var documentPrefixes = map[DocumentType]string{
	DocumentTypeInvoice:        "I",
	DocumentTypeReceipt:        "R",
	DocumentTypeInvoiceReceipt: "IR",
}

// FormatDocumentNumber maps (type, year, sequence) to the canonical code,
// e.g. I-2026-7, R-2026-1, IR-2026-12.
func FormatDocumentNumber(t DocumentType, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%d", documentPrefixes[t], year, seq)
}

// ParseDocumentNumber is the inverse of FormatDocumentNumber.
func ParseDocumentNumber(s string) (DocumentType, int, int64, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("%w: malformed document number %q", ErrInvalidInput, s)
	}

	var t DocumentType
	for dt, prefix := range documentPrefixes {
		if strings.EqualFold(parts[0], prefix) {
			t = dt
			break
		}
	}
	if t == "" {
		return "", 0, 0, fmt.Errorf("%w: unknown document prefix %q", ErrInvalidInput, parts[0])
	}

	year, err := strconv.Atoi(parts[1])
	if err != nil || year < 1 {
		return "", 0, 0, fmt.Errorf("%w: bad year in %q", ErrInvalidInput, s)
	}
	seq, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || seq < 1 {
		return "", 0, 0, fmt.Errorf("%w: bad sequence in %q", ErrInvalidInput, s)
	}
	return t, year, seq, nil
}
