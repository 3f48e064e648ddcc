// Package answergen implements the Answer Generator (C6): at the end of a
// run it appends a fixed summarize instruction to the conversation, makes
// one final LLM call with tool-calling disabled, and extracts the boxed
// final answer (main role) or a structured free-text report (agent-browsing
// role, consumed by the Sub-Agent Runner rather than boxed).
package answergen

import (
	"context"
	"fmt"

	"github.com/agentrt/miroflow-go/agent/model"
)

const mainSummarizeTemplate = `Summarize the above conversation, and output the FINAL ANSWER to the original question.

If a clear answer has already been provided earlier in the conversation, do not rethink or recalculate it — simply extract that answer and reformat it to match the required format below.
If a definitive answer could not be determined, make a well-informed educated guess based on the conversation.

The original question is repeated here for reference:

%q

Wrap your final answer in \boxed{}.
Your final answer should be:
- a number, OR
- as few words as possible, OR
- a comma-separated list of numbers and/or strings.

ADDITIONALLY, your final answer MUST strictly follow any formatting instructions in the original question — such as alphabetization, sequencing, units, rounding, decimal places, etc.
If you are asked for a number, express it numerically (i.e., with digits rather than words), don't use commas, and DO NOT INCLUDE UNITS such as $ or USD or percent signs unless specified otherwise.
If you are asked for a string, don't use articles or abbreviations (e.g. for cities), unless specified otherwise. Don't output any final sentence punctuation such as '.', '!', or '?'.
If you are asked for a comma-separated list, apply the above rules depending on whether the elements are numbers or strings.
Do NOT include any punctuation such as '.', '!', or '?' at the end of the answer.
Do NOT include any invisible or non-printable characters in the answer output.`

const agentBrowsingSummarizeTemplate = `This is a direct instruction to you (the assistant), not the result of a tool call.

We are now ending this session, and your conversation history will be deleted. You must NOT initiate any further tool use. This is your final opportunity to report *all* of the information gathered during the session.

The original task is repeated here for reference:

%q

Summarize the above search and browsing history. Output the FINAL RESPONSE and detailed supporting information of the task given to you.

If you found any useful facts, data, quotes, or answers directly relevant to the original task, include them clearly and completely.
If you reached a conclusion or answer, include it as part of the response.
If the task could not be fully answered, do NOT make up any content. Instead, return all partially relevant findings, search results, quotes, and observations that might help a downstream agent solve the problem.
If partial, conflicting, or inconclusive information was found, clearly indicate this in your response.

Your final response should be a clear, complete, and structured report.
Organize the content into logical sections with appropriate headings.
Do NOT include any tool call instructions, speculative filler, or vague summaries.
Focus on factual, specific, and well-organized information.`

// SummarizeInstruction returns the fixed summarize-instruction text for
// roleName and the given task description. "agent-browsing"/"browsing-agent"
// get the structured-report instruction; any other role name gets the
// main-role boxed-answer instruction. The sub-agent runner maps every
// sub-agent name to "agent-browsing" before calling Generate, so only the
// main agent reaches the boxed-answer instruction in a pipeline run.
func SummarizeInstruction(roleName, taskDescription string) string {
	switch roleName {
	case "agent-browsing", "browsing-agent":
		return fmt.Sprintf(agentBrowsingSummarizeTemplate, taskDescription)
	default:
		return fmt.Sprintf(mainSummarizeTemplate, taskDescription)
	}
}

// Generate appends the summarize instruction for roleName to history, makes
// one final LLM call with tools disabled, and returns the raw response text
// plus, for the main role, the extracted boxed answer (empty for the browsing
// roles, which report free text instead). When the model returns no response,
// rawText is empty and boxedAnswer is FormatErrorMessage for every role.
func Generate(ctx context.Context, client model.Client, systemPrompt string, history []model.Message, roleName, taskDescription string) (rawText, boxedAnswer string, err error) {
	req := model.Request{
		SystemPrompt:   systemPrompt,
		History:        append(append([]model.Message{}, history...), model.Message{Role: model.RoleUser, Content: SummarizeInstruction(roleName, taskDescription)}),
		KeepToolResult: -1,
		DisableTools:   true,
	}
	resp, _, err := client.CreateMessage(ctx, req)
	if err != nil {
		return "", "", err
	}
	if resp == nil {
		return "", FormatErrorMessage, nil
	}
	if roleName == "agent-browsing" || roleName == "browsing-agent" {
		return resp.RawText, "", nil
	}
	return resp.RawText, ExtractBoxedAnswer(resp.RawText), nil
}
