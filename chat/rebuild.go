package chat

// Rebuild derives the next turn's request from the original configuration and
// the current ledger. Every field other than Messages is copied from original,
// hooks and cancellation included.
func Rebuild(original Request, ledger *Ledger) Request {
	next := original.clone()
	next.Messages = ledger.Messages()
	return next
}
