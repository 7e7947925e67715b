package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/llm"
)

// leniencyThreshold is the iteration after which the evaluator is told
// to accept work that is reasonably complete.
const leniencyThreshold = 15

func workerSystemPrompt(s *State, now time.Time, extra string) string {
	var b strings.Builder
	b.WriteString(`You are a helpful assistant that can use tools to complete tasks.
You keep working on a task until either you have a question or clarification for the user, or the success criteria is met.
You have many tools to help you, including tools to browse the internet, navigate and retrieve web pages, search, read and write files, and run Python code.
When you run Python code, include a print() statement to receive output.
`)
	fmt.Fprintf(&b, "The current date and time is %s\n\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "This is the success criteria:\n%s\n\n", s.SuccessCriteria)
	fmt.Fprintf(&b, "This is iteration %d. Work efficiently and be decisive. If you have enough information to reasonably complete the task, do so rather than searching for perfect information.\n\n", s.Iteration)
	b.WriteString(`You should reply either with a question for the user about this assignment, or with your final response.
If you have a question for the user, reply by clearly stating your question. For example:

Question: please clarify whether you want a summary or a detailed answer

If you've finished, reply with the final answer and don't ask a question; simply reply with the answer.
`)

	if s.FeedbackOnWork != "" {
		fmt.Fprintf(&b, `
Previously you thought you completed the assignment, but your reply was rejected because the success criteria was not met.
Here is the feedback on why it was rejected:
%s
With this feedback, continue the assignment, ensuring that you meet the success criteria or have a question for the user.
If you are repeating the same actions after %d iterations, try a different approach or ask for clarification.
`, s.FeedbackOnWork, s.Iteration)
	}

	if extra != "" {
		b.WriteString("\n")
		b.WriteString(extra)
		b.WriteString("\n")
	}
	return b.String()
}

func evaluatorSystemPrompt(iteration int) string {
	return fmt.Sprintf(`You are an evaluator that determines if a task has been completed successfully by an Assistant.
Assess the Assistant's last response based on the given criteria. Respond with your feedback, with your decision on whether the success criteria has been met, and whether more input is needed from the user.

This is iteration %d. If the iteration count is getting high (>%d), be more lenient and consider accepting the work if it is reasonably complete, even if not perfect.

Reply with a single JSON object and nothing else:
{"feedback": "<your feedback>", "success_criteria_met": true|false, "user_input_needed": true|false}`, iteration, leniencyThreshold)
}

func evaluatorUserPrompt(s *State, lastResponse string) string {
	var b strings.Builder
	b.WriteString("You are evaluating a conversation between the User and Assistant. You decide what action to take based on the last response from the Assistant.\n\n")
	b.WriteString("The entire conversation with the assistant, with the user's original request and all replies, is:\n")
	b.WriteString(formatConversation(s.Messages))
	fmt.Fprintf(&b, "\nThe success criteria for this assignment is:\n%s\n\n", s.SuccessCriteria)
	fmt.Fprintf(&b, "And the final response from the Assistant that you are evaluating is:\n%s\n\n", lastResponse)
	if s.Iteration > leniencyThreshold {
		fmt.Fprintf(&b, "This is iteration %d, a high iteration count. Be more forgiving and accept work that is reasonably complete.\n\n", s.Iteration)
	}
	b.WriteString(`Respond with your feedback, and decide if the success criteria is met by this response.
Also decide if more user input is required, either because the assistant has a question, needs clarification, or seems to be stuck and unable to answer without help.

The Assistant has access to a tool to write files. If the Assistant says they have written a file, you can assume they have done so.
Give the Assistant the benefit of the doubt if they say they've done something, but reject if more work should go into this.
`)
	if s.FeedbackOnWork != "" {
		fmt.Fprintf(&b, "\nIn a prior attempt from the Assistant, you provided this feedback: %s\n", s.FeedbackOnWork)
		fmt.Fprintf(&b, "If the Assistant is repeating the same mistakes after %d iterations, consider responding that user input is required.\n", s.Iteration)
	}
	return b.String()
}

// formatConversation renders user and assistant turns for the evaluator.
// Tool results and feedback are omitted; an assistant turn with no text
// is shown as [Tools use].
func formatConversation(msgs []llm.Message) string {
	var b strings.Builder
	b.WriteString("Conversation history:\n\n")
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleUser:
			if strings.HasPrefix(m.Content, FeedbackPrefix) {
				continue
			}
			fmt.Fprintf(&b, "User: %s\n", m.Content)
		case llm.RoleAssistant:
			text := m.Content
			if strings.TrimSpace(text) == "" {
				text = "[Tools use]"
			}
			fmt.Fprintf(&b, "Assistant: %s\n", text)
		}
	}
	return b.String()
}
