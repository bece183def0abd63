package chat

import "errors"

// ErrChatNotFound covers a chat that is absent, soft-deleted, or owned by
// someone else. The three cases are deliberately indistinguishable to the
// caller.
var ErrChatNotFound = errors.New("chat: not found")

// ErrSequenceContended is returned when the sequence-number retry budget is
// exhausted under extreme write contention on one chat.
var ErrSequenceContended = errors.New("chat: sequence number contention")
