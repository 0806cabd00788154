// Package logging builds slog loggers for the vellum pipeline.
//
// Two output formats are supported: a single-line console format that pulls
// the component attribute into the message prefix, and plain JSON for log
// shippers. Attribute helpers and standardized field keys keep producer,
// consumer, and CLI log lines greppable by unit_id and component.
package logging
