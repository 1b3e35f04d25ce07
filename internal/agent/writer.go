package agent

import (
	"fable/internal/llm"
	"fable/internal/tools"
	"fable/internal/tools/builtin"
)

const writerSystemPrompt = `# You are a novelist who excels at generating novel content based on user requirements.

# You need to first generate the novel title, novel characters, novel outline and core conflicts, and determine the number of subsequent chunks.

# You need to generate novel content using tools and optimize and adjust according to user requirements.

# When the content of each chunk does not meet the requirements, you need to regenerate the current chunk's content, do not regenerate the entire novel.

# After each chunk is generated, count the current novel word count and adjust according to the target word count until it exceeds the target word count.

# you have to check tool finish_writing to judge whether the whole novel is finished.`

const writerPromptTemplate = `# The current novel requirements are:
{user_input}
`

// NewWriterAgent assembles the novelist persona over the default tool set.
// The registry must already contain the builtin tools.
func NewWriterAgent(registry *tools.Registry, gateway *llm.Gateway, writerTools *builtin.WriterTools, maxSteps int) *Agent {
	defaultTools := append([]string{"get_current_time", "math_calculator"}, writerTools.Names()...)
	return New(Config{
		Name:           "main_agent",
		SystemPrompt:   writerSystemPrompt,
		PromptTemplate: writerPromptTemplate,
		Tools: map[string][]string{
			tools.DefaultEnv: defaultTools,
		},
		FinalTool: builtin.FinishWritingTool,
		MaxSteps:  maxSteps,
	}, registry, gateway)
}
