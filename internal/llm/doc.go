// Package llm talks to the hosted model endpoints: JSON chat completions
// for chapter analysis and an image generation API for scene rendering.
//
// Calls are single-shot. Failures come back classified for the retry
// package (rate-limit, transient, fatal), and the pipeline stages decide
// how many attempts to spend on each unit.
package llm
