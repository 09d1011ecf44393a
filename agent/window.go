package agent

import "github.com/sweetpotato0/ai-groupchat/message"

// perMessageOverhead approximates role and separator tokens per chat message.
const perMessageOverhead = 4

// fitWindow drops the oldest messages until the system prompt plus history
// fits within limit tokens. The newest message is always kept.
func fitWindow(counter TokenCounter, limit int, system string, msgs []*message.Message) []*message.Message {
	if counter == nil || limit <= 0 || len(msgs) == 0 {
		return msgs
	}

	total := counter.CountTokens(system)
	sizes := make([]int, len(msgs))
	for i, m := range msgs {
		sizes[i] = counter.CountTokens(m.Content) + perMessageOverhead
		total += sizes[i]
	}

	start := 0
	for total > limit && start < len(msgs)-1 {
		total -= sizes[start]
		start++
	}
	return msgs[start:]
}
