package mqtt

import (
	"fmt"
	"strings"
)

// Topic naming conventions for actor modules.
// Format: {prefix}/actor/{actorKey}/{module}/{action}[/{resource}]
const (
	// DefaultTopicPrefix is the root prefix used when none is configured
	DefaultTopicPrefix = "hub"

	// SegmentActor marks actor-scoped topics
	SegmentActor = "actor"

	// Actions
	ActionCall     = "call"
	ActionResponse = "response"
	ActionEvent    = "event"
	ActionSpec     = "spec"
	ActionHealth   = "health"
)

// TopicBuilder helps construct topic strings following conventions.
type TopicBuilder struct {
	parts []string
}

// NewTopicBuilder creates a new topic builder rooted at prefix.
func NewTopicBuilder(prefix string) *TopicBuilder {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &TopicBuilder{
		parts: []string{prefix},
	}
}

// Actor adds the actor segment and key.
func (tb *TopicBuilder) Actor(key string) *TopicBuilder {
	tb.parts = append(tb.parts, SegmentActor, key)
	return tb
}

// Module adds a module segment.
func (tb *TopicBuilder) Module(module string) *TopicBuilder {
	tb.parts = append(tb.parts, module)
	return tb
}

// Action adds an action segment.
func (tb *TopicBuilder) Action(action string) *TopicBuilder {
	tb.parts = append(tb.parts, action)
	return tb
}

// Resource adds a resource segment.
func (tb *TopicBuilder) Resource(resource string) *TopicBuilder {
	tb.parts = append(tb.parts, resource)
	return tb
}

// Build constructs the final topic string.
func (tb *TopicBuilder) Build() string {
	return strings.Join(tb.parts, "/")
}

// ModuleTopics holds every topic one actor module speaks on.
type ModuleTopics struct {
	Call     string
	Response string
	Spec     string
	Health   string

	eventPrefix string
}

// NewModuleTopics derives the topics for module on actor key under prefix.
func NewModuleTopics(prefix, key, module string) ModuleTopics {
	base := func() *TopicBuilder { return NewTopicBuilder(prefix).Actor(key).Module(module) }
	return ModuleTopics{
		Call:        base().Action(ActionCall).Build(),
		Response:    base().Action(ActionResponse).Build(),
		Spec:        base().Action(ActionSpec).Build(),
		Health:      NewTopicBuilder(prefix).Actor(key).Action(ActionHealth).Build(),
		eventPrefix: base().Action(ActionEvent).Build(),
	}
}

// Event returns the topic for the named event.
func (t ModuleTopics) Event(name string) string {
	return t.eventPrefix + "/" + name
}

// Events returns a wildcard matching every event of the module.
func (t ModuleTopics) Events() string {
	return t.eventPrefix + "/#"
}

// ParseTopic splits an actor topic into actor key, module and the remaining segments.
func ParseTopic(prefix, topic string) (key, module string, rest []string, err error) {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != prefix || parts[1] != SegmentActor {
		return "", "", nil, fmt.Errorf("invalid topic format: must start with %s/%s", prefix, SegmentActor)
	}
	return parts[2], parts[3], parts[4:], nil
}

// ValidateTopic checks if a topic follows actor conventions.
func ValidateTopic(prefix, topic string) bool {
	_, _, _, err := ParseTopic(prefix, topic)
	return err == nil
}
