// Package llm turns conversation history into model replies.
//
// # Providers
//
// Provider is the narrow seam to a backend: a name and a Generate call.
// Hosted implementations exist for OpenAI, OpenRouter, Anthropic, and
// Google Gemini, plus a local one for an Ollama daemon. NewProvider picks
// one by its config name.
//
// # The gateway
//
// All generation flows through Gateway. It bounds each attempt with a
// timeout, classifies failures as transient or permanent via Transient,
// and retries transient ones with exponential backoff and jitter. After
// the retry budget is spent it reports ErrBackendUnavailable. At most one
// generation is in flight at a time; concurrent callers get
// ErrGenerateBusy instead of queueing.
package llm
