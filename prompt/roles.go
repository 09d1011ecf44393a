package prompt

import "fmt"

// Template names registered by Defaults.
const (
	QueryAgent    = "query_agent"
	CodePlanner   = "code_planner"
	CodeRunner    = "code_runner"
	AnalysisAgent = "analysis_agent"
	DataContext   = "data_context"
	Welcome       = "welcome"
	SelectSpeaker = "select_speaker"
	SelectNext    = "select_next"
)

const queryAgentPrompt = `Manager. Administrate the agents on a plan. Communicate with the Code_Planner to plan the code.
Communicate with the Analysis_Agent when we want to analyse the data. Reply TERMINATE at the end of your sentence if the task has been solved at full satisfaction.
Otherwise, reply CONTINUE, or the reason why the task is not solved yet.`

const codePlannerPrompt = `Engineer. You follow an approved plan. You write python/shell code to solve tasks. Wrap the code in a code block that specifies the script type.
The user can't modify your code. So do not suggest incomplete code which requires others to modify. Don't use a code block if it's not intended to be executed by the Code_Runner.
Don't include multiple code blocks in one response. Do not ask others to copy and paste the result. Check the execution result returned by the Code_Runner.
If the result indicates there is an error, fix the error and output the code again. Suggest the full code instead of partial code.
{{.Context}}`

const codeRunnerPrompt = `A Coding Engineer. Use python to run code. Interact with the Code_Planner to run code. Report the result.
You are an AI model capable of executing code.`

const analysisAgentPrompt = `Analysis agent. You analyse the data outputted by Code_Runner when necessary. Be concise and always summarize the data when possible.
Communicate with the Query_Agent when the data is analyzed.`

// The planner gets the document location and shape up front so it reads
// instead of generating exploratory code.
const dataContextPrompt = `Access the XML data from the following link: {{.URL}}. Utilize the libraries 'urllib.request' and 'xml.etree.ElementTree' for sending a GET request and parsing the XML data, respectively.
{{if .Preview}}
The document looks like this: {{.Preview}}
{{end}}
Ensure to always check the length of the context to avoid hitting the context limit. Do not express gratitude in responses. If "Thank you" or "You're welcome" are said in the conversation, send a final response. Your final response is just "TERMINATE", do not add other sentences.`

const welcomePrompt = `Datascience Agent Team 👾


What can we do for you today?`

const selectSpeakerPrompt = `You are in a role play game. The following roles are available:
{{.Roles}}.

Read the following conversation.
Then select the next role from {{.Names}} to play. Only return the role.`

const selectNextPrompt = `Read the above conversation. Then select the next role from {{.Names}} to play. Only return the role.`

// Defaults returns a manager holding every built-in template.
func Defaults() *Manager {
	m := NewManager()
	for name, content := range map[string]string{
		QueryAgent:    queryAgentPrompt,
		CodePlanner:   codePlannerPrompt,
		CodeRunner:    codeRunnerPrompt,
		AnalysisAgent: analysisAgentPrompt,
		DataContext:   dataContextPrompt,
		Welcome:       welcomePrompt,
		SelectSpeaker: selectSpeakerPrompt,
		SelectNext:    selectNextPrompt,
	} {
		if err := m.RegisterString(name, content); err != nil {
			panic(fmt.Sprintf("prompt: built-in template %s: %v", name, err))
		}
	}
	return m
}

// PlannerPrompt renders the planner system prompt with the data-source context.
func (m *Manager) PlannerPrompt(url, preview string) (string, error) {
	ctx, err := m.Render(DataContext, map[string]any{"URL": url, "Preview": preview})
	if err != nil {
		return "", err
	}
	return m.Render(CodePlanner, map[string]any{"Context": ctx})
}
