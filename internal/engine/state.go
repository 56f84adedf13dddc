// Package engine implements the request/confirm/execute/append loop that
// drives the agent: send the conversation to the model, run the tool calls
// it asks for, feed the results back, repeat until the model answers or
// the step budget runs out.
package engine

// State is the mutable run state threaded through the loop.
type State struct {
	History  []ChatMessage // conversation history
	Step     int           // increments only on a successful step
	Retries  int           // retry attempts, tracked separately from steps
	Done     bool          // set when the model gives a final answer
	Model    string        // model name passed to the provider
	MaxSteps int           // step budget before the run stops
	Budget   BudgetConfig  // token budget (zero value = unlimited)
	Totals   Usage         // accumulated usage across all calls
}

func (s *State) Append(msg ChatMessage) { s.History = append(s.History, msg) }
