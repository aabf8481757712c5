// Package transport defines the contract between inbound adapters and the
// request pipeline.
//
// A transport turns its wire format into a message.Request and renders the
// typed outcome back; the pipeline doesn't care how requests arrive.
package transport

import (
	"context"

	"github.com/nadzzz/helpline/internal/message"
	"github.com/nadzzz/helpline/internal/outcome"
)

// Handler runs one request through the pipeline.
type Handler func(ctx context.Context, req *message.Request) outcome.Result[*message.AssistantResponse]

// Transport is the interface that every inbound adapter implements.
type Transport interface {
	// Name returns the transport identifier (e.g., "http").
	Name() string

	// Listen starts accepting requests and passes them to the handler.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
