// Package manager orchestrates chat session lifecycles: it binds each
// session to a backend inference process, keeps the conversation context
// inside its token budget, watches the process's memory through a per-session
// monitor, and serializes prompt handling against cleanup so teardown is safe
// under concurrent activity and abrupt termination.
package manager
