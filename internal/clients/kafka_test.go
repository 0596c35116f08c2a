package clients

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invofox/internal/domain"
)

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(nil, nil)
	assert.Error(t, err)
}

func TestKafkaPublisher_TopicMapping(t *testing.T) {
	p, err := NewKafkaPublisher([]string{"localhost:9092"}, map[string]string{
		domain.EventReceiptIssued: "ledger-receipts",
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "ledger-receipts", p.topic(domain.EventReceiptIssued))
	assert.Equal(t, domain.EventInvoiceIssued, p.topic(domain.EventInvoiceIssued))
}
