package clients

import (
	"context"

	ws "invofox/internal/transport/websocket"
)

// DocumentEvent is the payload of every document notification.
type DocumentEvent struct {
	ID             string `json:"id"`
	CustomerID     string `json:"customer_id"`
	DocumentNumber string `json:"document_number,omitempty"`
	Stage          string `json:"stage,omitempty"`
	URL            string `json:"url,omitempty"`
	Message        string `json:"message,omitempty"`
}

// WebSocketClient pushes document pipeline notifications through the hub.
// A nil hub turns every call into a no-op.
type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{hub: hub}
}

func (c *WebSocketClient) push(kind ws.Kind, ev DocumentEvent) error {
	if c.hub == nil {
		return nil
	}
	c.hub.Broadcast(ev.CustomerID, kind, ev)
	return nil
}

// NotifyDocumentProgress reports a pipeline stage change.
func (c *WebSocketClient) NotifyDocumentProgress(ctx context.Context, customerID, documentID, stage string) error {
	return c.push(ws.KindDocumentProgress, DocumentEvent{ID: documentID, CustomerID: customerID, Stage: stage})
}

func (c *WebSocketClient) NotifyDocumentReady(ctx context.Context, customerID, documentID, number, url string) error {
	return c.push(ws.KindDocumentReady, DocumentEvent{ID: documentID, CustomerID: customerID, DocumentNumber: number, URL: url})
}

func (c *WebSocketClient) NotifyDocumentFailed(ctx context.Context, customerID, documentID, number, errMsg string) error {
	return c.push(ws.KindDocumentFailed, DocumentEvent{ID: documentID, CustomerID: customerID, DocumentNumber: number, Message: errMsg})
}
