// Package prompts holds the prompt text used by the agent.
package prompts

import (
	"fmt"
	"strings"
)

// DefaultSystem is the system prompt used when none is configured. It is
// written for a voice assistant: answers must be short and speakable.
const DefaultSystem = `You are Aria, a helpful voice assistant for a smart home.
Answer briefly and conversationally; your responses are spoken aloud, so avoid
lists, markdown, and long explanations. Use the available tools to control
devices, play music, and look things up. If you need more tools to complete a
request, call query_tools first. When the user tells you something worth
remembering about themselves or their home, store it with learn_fact.`

// factExtraction asks the model to mine a finished conversation for
// durable facts. The response must be a JSON object so it can survive
// the models' habit of wrapping output in code fences.
const factExtraction = `Review this conversation and extract any durable facts about the user or
their household: names, preferences, routines, devices, pets, important dates.
Ignore one-off requests and anything tied only to this conversation.

Conversation:
%s

Respond with only a JSON object of the form:
{"facts": {"short_key": "fact value", ...}}

Use lowercase snake_case keys. If there is nothing worth remembering, respond
with {"facts": {}}.`

// FactExtraction renders the fact-extraction prompt for a transcript of
// "Role: content" lines.
func FactExtraction(transcript []string) string {
	return fmt.Sprintf(factExtraction, strings.Join(transcript, "\n"))
}
