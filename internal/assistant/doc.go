// Package assistant answers chat messages with a language model.
//
// Messages that mention the calendar get the user's upcoming events added
// to the system prompt. The model is reached through the Completer
// interface; AnthropicCompleter is the production implementation.
package assistant
