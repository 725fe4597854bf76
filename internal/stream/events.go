package stream

// EventKind classifies a structured event derived from terminal output.
type EventKind string

const (
	KindToolStart     EventKind = "tool_start"
	KindToolEnd       EventKind = "tool_end"
	KindThinkingStart EventKind = "thinking_start"
	KindThinkingEnd   EventKind = "thinking_end"
	KindError         EventKind = "error"
	KindWarning       EventKind = "warning"
	KindPromptReady   EventKind = "prompt_ready"
	KindCostUpdate    EventKind = "cost_update"
	KindTokensUpdate  EventKind = "tokens_update"
	KindAgentSpawn    EventKind = "agent_spawn"
	KindAgentComplete EventKind = "agent_complete"
	KindAgentActivity EventKind = "agent_activity"
	KindRawOutput     EventKind = "raw_output"
)

// Channel names a bus topic. One channel per concern; subscribers attach
// to the channels they care about.
type Channel string

const (
	ChannelToolStart     Channel = "tool:start"
	ChannelToolEnd       Channel = "tool:end"
	ChannelThinkingStart Channel = "thinking:start"
	ChannelThinkingEnd   Channel = "thinking:end"
	ChannelError         Channel = "error:detected"
	ChannelWarning       Channel = "warning:detected"
	ChannelPromptReady   Channel = "prompt:ready"
	ChannelCostUpdate    Channel = "cost:update"
	ChannelTokensUpdate  Channel = "tokens:update"
	ChannelAgentSpawn    Channel = "agent:spawn"
	ChannelAgentComplete Channel = "agent:complete"
	ChannelAgentActivity Channel = "agent:activity"
	ChannelRawOutput     Channel = "stream:output"
)

// kindChannels maps event kinds to their bus channel.
var kindChannels = map[EventKind]Channel{
	KindToolStart:     ChannelToolStart,
	KindToolEnd:       ChannelToolEnd,
	KindThinkingStart: ChannelThinkingStart,
	KindThinkingEnd:   ChannelThinkingEnd,
	KindError:         ChannelError,
	KindWarning:       ChannelWarning,
	KindPromptReady:   ChannelPromptReady,
	KindCostUpdate:    ChannelCostUpdate,
	KindTokensUpdate:  ChannelTokensUpdate,
	KindAgentSpawn:    ChannelAgentSpawn,
	KindAgentComplete: ChannelAgentComplete,
	KindAgentActivity: ChannelAgentActivity,
	KindRawOutput:     ChannelRawOutput,
}

// BusChannel returns the bus channel events of this kind are published on.
func (k EventKind) BusChannel() Channel {
	return kindChannels[k]
}

// AllChannels returns every known bus channel.
func AllChannels() []Channel {
	return []Channel{
		ChannelToolStart, ChannelToolEnd,
		ChannelThinkingStart, ChannelThinkingEnd,
		ChannelError, ChannelWarning,
		ChannelPromptReady,
		ChannelCostUpdate, ChannelTokensUpdate,
		ChannelAgentSpawn, ChannelAgentComplete, ChannelAgentActivity,
		ChannelRawOutput,
	}
}

// Event is a structured observation derived from one pattern match on one
// chunk. Events are transient: constructed by the analyzer, handed to
// subscribers, never persisted here.
type Event struct {
	Kind        EventKind `json:"kind"`
	TerminalID  int       `json:"terminal_id"`
	TimestampMs int64     `json:"ts"`
	Payload     Payload   `json:"payload"`
}

// Payload carries the extracted fields of an event. Which fields are set
// depends on the event kind.
type Payload struct {
	ToolName      string  `json:"tool_name,omitempty"`
	Input         string  `json:"input,omitempty"`
	Success       bool    `json:"success,omitempty"`
	ResultPreview string  `json:"result_preview,omitempty"`
	AgentName     string  `json:"agent_name,omitempty"`
	Task          string  `json:"task,omitempty"`
	IsRealAgent   bool    `json:"is_real_agent,omitempty"`
	Message       string  `json:"message,omitempty"`
	CostUSD       float64 `json:"cost_usd,omitempty"`
	Tokens        int     `json:"tokens,omitempty"`
	Raw           string  `json:"raw,omitempty"`
}
