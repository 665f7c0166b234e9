// Package agent turns a chat request into a single agent run.
//
// It builds the model client and tool set for the request, runs the agent
// and translates provider failures into user-facing errors.
package agent
