package agent

import (
	"fmt"
	"strings"

	"github.com/ahtavarasmus/TextAndDrive/internal/protocol"
	"github.com/ahtavarasmus/TextAndDrive/internal/tools"
)

const contextHeader = "Available chats context:\n"

func (a *Agent) buildSystemMessage() string {
	if len(a.defs) == 0 {
		return "You are a helpful voice assistant. Answer briefly in plain text."
	}

	var b strings.Builder
	b.WriteString("You are an assistant that has access to tools to send and fetch messages to different chat networks.\n\n")

	for _, def := range a.defs {
		fmt.Fprintf(&b, "Tool: %s\n", def.Name)
		fmt.Fprintf(&b, "Description: %s\n", def.Description)

		if len(def.Params) > 0 {
			b.WriteString("Parameters:\n")
			for _, p := range def.Params {
				requiredMark := ""
				if p.Required {
					requiredMark = " [required]"
				}
				fmt.Fprintf(&b, "  - %s (%s): %s%s\n", p.Name, p.Type, p.Description, requiredMark)
			}
		} else {
			b.WriteString("Parameters: none\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("When a tool can handle the user's request, respond ONLY with a function_call " +
		"(use the function_call field) specifying the tool name and JSON arguments. " +
		"Do not include regular assistant text in that case. " +
		"Only produce a text answer when no tool is applicable.")
	return b.String()
}

// decideMessages assembles the first call: instruction, prior window, chat
// context and the new transcript. A trailing copy of the transcript already
// in the window is dropped so the turn is not sent twice.
func (a *Agent) decideMessages(window []protocol.Message, chatContext, transcript string) []protocol.Message {
	if n := len(window); n > 0 && window[n-1].Role == protocol.RoleUser &&
		strings.TrimSpace(window[n-1].Content) == transcript {
		window = window[:n-1]
	}

	msgs := make([]protocol.Message, 0, len(window)+3)
	msgs = append(msgs, protocol.SystemMessage(a.buildSystemMessage()))
	msgs = append(msgs, window...)
	if chatContext != "" {
		msgs = append(msgs, protocol.SystemMessage(chatContext))
	}
	msgs = append(msgs, protocol.UserMessage(transcript))
	return msgs
}

func confirmationPrompt(sendResult, transcript string) string {
	var b strings.Builder
	b.WriteString("You are a voice assistant confirming actions to the user.\n")
	b.WriteString("Based on the action result below, create a SHORT spoken confirmation message (1-2 sentences max).\n")
	b.WriteString("Tell the user exactly what was accomplished in a natural, conversational way.\n")
	b.WriteString("Examples:\n")
	b.WriteString("- If a message was sent: 'I sent your message to [person] saying [brief summary]'\n")
	b.WriteString("- If something failed: 'I wasn't able to send the message because [brief reason]'\n")
	b.WriteString("- If data was retrieved: 'I found [brief summary of what was found]'\n")
	b.WriteString("\n")
	b.WriteString("Action result to confirm:\n")
	b.WriteString(sendResult + "\n")
	b.WriteString("\n")
	fmt.Fprintf(&b, "User's original request was: %s\n", transcript)
	b.WriteString("\n")
	b.WriteString("Return ONLY the spoken confirmation message, nothing else. No JSON, no explanations.")
	return b.String()
}

func confirmMessages(window []protocol.Message, prompt string) []protocol.Message {
	msgs := make([]protocol.Message, 0, len(window)+2)
	msgs = append(msgs, protocol.SystemMessage("You are a voice assistant. Reply with plain spoken text only."))
	msgs = append(msgs, window...)
	msgs = append(msgs, protocol.UserMessage(prompt))
	return msgs
}

// knownTool maps names the model invents onto one label so metrics stay bounded.
func knownTool(defs []tools.Definition, name string) string {
	for _, d := range defs {
		if d.Name == name {
			return name
		}
	}
	return "unknown"
}
