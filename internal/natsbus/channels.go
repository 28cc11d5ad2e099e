package natsbus

// Channel naming. All channels carry the configured prefix; responses
// and events are scoped to one conversation so independent threads never
// share a key.

// ChannelRequest carries inbound conversation work.
func ChannelRequest(prefix string) string {
	return prefix + "request"
}

// ChannelControl carries ping/pong and stop signals.
func ChannelControl(prefix string) string {
	return prefix + "control"
}

// ChannelResponse carries direct responses for one conversation.
func ChannelResponse(prefix, conversationID string) string {
	return prefix + "response:" + conversationID
}

// ChannelEvents carries every other event type for one conversation.
func ChannelEvents(prefix, conversationID string) string {
	return prefix + "events:" + conversationID
}

// ChannelFirehose mirrors every published envelope on a single channel.
// Conversation ids live inside one subject token, so subscribers that
// want everything cannot use a wildcard; they subscribe here instead.
func ChannelFirehose(prefix string) string {
	return prefix + "firehose"
}
