package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming conventions for exported realtime events.
const (
	// ChannelProjectEvents carries every domain event of one project.
	ChannelProjectEvents = "realm:project:%s:events"

	// TopicProjectEvents is the Kafka topic all project channels map onto.
	TopicProjectEvents = "realm-project-events"
)

// ProjectEventsChannel returns the channel name for a project's events.
func ProjectEventsChannel(projectID string) string {
	return fmt.Sprintf(ChannelProjectEvents, projectID)
}

// channelToTopicAndKey converts a Redis-style channel to a Kafka topic and
// message key, so every event of one project lands on one partition.
//
//	"realm:project:P1:events" → topic: "realm-project-events", key: "P1"
func channelToTopicAndKey(channel string) (topic, key string, err error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[0] != "realm" || parts[1] != "project" || parts[2] == "" {
		return "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	return strings.Join([]string{parts[0], parts[1], parts[3]}, "-"), parts[2], nil
}
