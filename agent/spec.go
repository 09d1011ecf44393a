package agent

import (
	"fmt"

	"github.com/sweetpotato0/ai-groupchat/message"
)

// Role is the closed set of agent kinds a session is built from.
type Role int

const (
	// RoleUserProxy stands in for the human at the chat UI.
	RoleUserProxy Role = iota
	// RolePlanner writes code for the runner to execute.
	RolePlanner
	// RoleRunner executes code blocks and reports the result.
	RoleRunner
	// RoleAnalyzer summarises execution output.
	RoleAnalyzer
)

func (r Role) String() string {
	switch r {
	case RoleUserProxy:
		return "user_proxy"
	case RolePlanner:
		return "planner"
	case RoleRunner:
		return "runner"
	case RoleAnalyzer:
		return "analyzer"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// MessageRole is the model-facing role of messages this agent authors.
func (r Role) MessageRole() message.Role {
	switch r {
	case RolePlanner, RoleAnalyzer:
		return message.RoleAssistant
	default:
		return message.RoleUser
	}
}

// HumanInputMode controls when an agent asks the human before replying.
type HumanInputMode string

const (
	HumanInputAlways    HumanInputMode = "ALWAYS"
	HumanInputTerminate HumanInputMode = "TERMINATE"
	HumanInputNever     HumanInputMode = "NEVER"
)

// Capabilities are the feature flags of an agent handle.
type Capabilities struct {
	ExecuteCode       bool
	RequestHumanInput bool
	CallModel         bool
}

// Spec captures the immutable configuration of an agent handle.
type Spec struct {
	Name           string
	Role           Role
	SystemPrompt   string
	Description    string
	Capabilities   Capabilities
	HumanInputMode HumanInputMode
}

// defaultSpec returns the capabilities and input mode a role starts with.
func defaultSpec(name string, role Role) Spec {
	spec := Spec{Name: name, Role: role, HumanInputMode: HumanInputNever}
	switch role {
	case RoleUserProxy:
		spec.Capabilities = Capabilities{RequestHumanInput: true}
		spec.HumanInputMode = HumanInputAlways
	case RolePlanner, RoleAnalyzer:
		spec.Capabilities = Capabilities{CallModel: true}
	case RoleRunner:
		spec.Capabilities = Capabilities{ExecuteCode: true, CallModel: true}
	}
	return spec
}

// Validate ensures the spec is well formed before the agent is used.
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("agent: name is required")
	}
	if s.Role < RoleUserProxy || s.Role > RoleAnalyzer {
		return fmt.Errorf("agent %s: unknown role %s", s.Name, s.Role)
	}
	switch s.HumanInputMode {
	case HumanInputAlways, HumanInputTerminate, HumanInputNever:
	default:
		return fmt.Errorf("agent %s: unknown human input mode %q", s.Name, s.HumanInputMode)
	}
	if s.Capabilities.CallModel && s.SystemPrompt == "" {
		return fmt.Errorf("agent %s: system prompt is required for model access", s.Name)
	}
	return nil
}
