// Package audit defines the audit event model, sink implementations,
// and the buffered asynchronous dispatcher used by the account engine.
// Raw credentials and token material never appear in events.
package audit
