package quill

// ExecutionMode selects where provider calls are issued from.
type ExecutionMode int

const (
	// ModeBackendProxy sends every call to the backend's /generate contract,
	// which holds the provider credentials.
	ModeBackendProxy ExecutionMode = iota + 1
	// ModeFrontendDirect talks to the provider from this process using the
	// credential carried in ProviderConfig.
	ModeFrontendDirect
)

func (m ExecutionMode) String() string {
	switch m {
	case ModeBackendProxy:
		return "backend-proxy"
	case ModeFrontendDirect:
		return "frontend-direct"
	default:
		return "unknown"
	}
}

// TransportKind identifies how a provider is reached in frontend-direct mode.
type TransportKind string

const (
	// TransportNative uses the provider's own SDK (Gemini via genai).
	TransportNative TransportKind = "native"
	// TransportRESTCompatible speaks the OpenAI chat-completions dialect.
	TransportRESTCompatible TransportKind = "restCompatible"
)

// ProviderConfig describes one provider for one call. It is supplied by the
// caller on every invocation and never retained by the Client.
type ProviderConfig struct {
	ID        string        `mapstructure:"id" json:"id"`
	Transport TransportKind `mapstructure:"transport" json:"transport"`
	APIKey    string        `mapstructure:"api_key" json:"-"`
	// Endpoint is the base URL of a REST-compatible provider, e.g.
	// https://api.deepseek.com/v1. A trailing /chat/completions is tolerated.
	// For native providers it optionally overrides the SDK base URL.
	Endpoint string `mapstructure:"endpoint" json:"endpoint,omitempty"`
	Model    string `mapstructure:"model" json:"model"`
}

// Role is the speaker of a ChatTurn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatTurn is one message of a conversation.
type ChatTurn struct {
	Role    Role
	Content string
	// Synthetic marks turns produced by the application itself (greetings,
	// hints). They are never sent to a provider.
	Synthetic bool
}

// Image is an attachment sent alongside the user prompt.
type Image struct {
	Data     []byte
	MIMEType string
}

// InvocationRequest is the provider-agnostic description of one model call.
type InvocationRequest struct {
	System  string
	Prompt  string
	History []ChatTurn

	// StructuredJSON asks the provider for a JSON answer.
	StructuredJSON bool
	// ResponseSchema optionally constrains the JSON shape (native transport only).
	ResponseSchema map[string]any

	Images []Image

	// Task is forwarded as the backend's "mode" field (e.g. "audit", "chat").
	Task string
	// ThinkingBudget is forwarded to the backend stream contract and to the
	// native thinking config when set.
	ThinkingBudget *int
}

// providerHistory returns the turns that should reach a provider: every
// non-synthetic turn, in the original order.
func providerHistory(turns []ChatTurn) []ChatTurn {
	out := make([]ChatTurn, 0, len(turns))
	for _, t := range turns {
		if t.Synthetic {
			continue
		}
		out = append(out, t)
	}
	return out
}
