package domain

import (
	"encoding/json"
	"fmt"
)

// UIMessage is the inbound envelope. The canonical shape is flat; some UI builds wrap the
// same payload in "pluginMessage", which DecodeUIMessage unwraps.
type UIMessage struct {
	Type          string     `json:"type,omitempty"`
	URL           string     `json:"url,omitempty"`
	RequestID     string     `json:"request_id,omitempty"`
	PluginMessage *UIMessage `json:"pluginMessage,omitempty"`
}

// OutboundMessage is sent back to the UI for every ProgressEvent.
type OutboundMessage struct {
	Type      string `json:"type"`
	Detail    string `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}

// DecodeUIMessage normalizes a raw inbound message into the canonical envelope.
// Messages of any type other than import-image-url yield ErrIgnoredMessage.
func DecodeUIMessage(data []byte) (UIMessage, error) {
	var msg UIMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return UIMessage{}, fmt.Errorf("failed to unmarshal ui message: %w", err)
	}
	if msg.PluginMessage != nil {
		inner := *msg.PluginMessage
		if inner.RequestID == "" {
			inner.RequestID = msg.RequestID
		}
		msg = inner
		msg.PluginMessage = nil
	}
	if msg.Type != MsgTypeImportImageURL {
		return UIMessage{}, fmt.Errorf("%w: type %q", ErrIgnoredMessage, msg.Type)
	}
	return msg, nil
}

// Request extracts the import request carried by the message.
func (m UIMessage) Request() ImportRequest {
	return ImportRequest{URL: m.URL}
}

// NewOutboundMessage converts a progress event into its wire form.
func NewOutboundMessage(event ProgressEvent, requestID string) OutboundMessage {
	return OutboundMessage{
		Type:      event.Kind.MessageType(),
		Detail:    event.Message,
		RequestID: requestID,
	}
}
