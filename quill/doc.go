// Package quill is the model gateway of a writing assistant. It sends
// requests through a backend proxy or straight to a provider, streams
// answers, recovers JSON from free-form model text, computes word diffs and
// routes streamed text between a chat pane and a document.
package quill
