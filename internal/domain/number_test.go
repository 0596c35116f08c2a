package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDocumentNumber(t *testing.T) {
	tests := []struct {
		docType DocumentType
		year    int
		seq     int64
		want    string
	}{
		{DocumentTypeInvoice, 2026, 7, "I-2026-7"},
		{DocumentTypeReceipt, 2026, 1, "R-2026-1"},
		{DocumentTypeInvoiceReceipt, 2026, 12, "IR-2026-12"},
		{DocumentTypeInvoice, 2025, 1000, "I-2025-1000"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDocumentNumber(tt.docType, tt.year, tt.seq))
			// same input, same output
			assert.Equal(t, tt.want, FormatDocumentNumber(tt.docType, tt.year, tt.seq))
		})
	}
}

func TestParseDocumentNumber(t *testing.T) {
	docType, year, seq, err := ParseDocumentNumber("IR-2026-12")
	require.NoError(t, err)
	assert.Equal(t, DocumentTypeInvoiceReceipt, docType)
	assert.Equal(t, 2026, year)
	assert.Equal(t, int64(12), seq)

	docType, _, _, err = ParseDocumentNumber(" r-2026-3 ")
	require.NoError(t, err)
	assert.Equal(t, DocumentTypeReceipt, docType)

	for _, bad := range []string{"", "I-2026", "X-2026-1", "I-abc-1", "I-2026-0", "I-2026--1"} {
		_, _, _, err := ParseDocumentNumber(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}

func TestParseDocumentNumber_RoundTrip(t *testing.T) {
	for _, dt := range DocumentTypes {
		s := FormatDocumentNumber(dt, 2027, 42)
		gotType, gotYear, gotSeq, err := ParseDocumentNumber(s)
		require.NoError(t, err)
		assert.Equal(t, dt, gotType)
		assert.Equal(t, 2027, gotYear)
		assert.Equal(t, int64(42), gotSeq)
	}
}
