package wa

import (
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// Translate maps a raw whatsmeow event onto the client event alphabet.
// resolve rewrites chat and sender JIDs (LID to phone number); it may be nil.
// The second result is false for events the daemon does not care about.
func Translate(raw any, resolve func(string) string) (Event, bool) {
	if resolve == nil {
		resolve = NormalizeJID
	}
	switch evt := raw.(type) {
	case *events.Connected:
		return Event{Kind: KindReady}, true
	case *events.PairSuccess:
		return Event{Kind: KindAuthenticated}, true
	case *events.LoggedOut:
		return Event{Kind: KindAuthFailure, Reason: "logged out: " + evt.Reason.String()}, true
	case *events.TemporaryBan:
		return Event{Kind: KindAuthFailure, Reason: evt.String()}, true
	case *events.ClientOutdated:
		return Event{Kind: KindAuthFailure, Reason: "client outdated"}, true
	case *events.Disconnected:
		return Event{Kind: KindDisconnected, Reason: "connection lost"}, true
	case *events.StreamReplaced:
		return Event{Kind: KindDisconnected, Reason: "stream replaced by another client"}, true
	case *events.ConnectFailure:
		return Event{Kind: KindDisconnected, Reason: "connect failure: " + evt.Reason.String()}, true
	case *events.Message:
		msg := ParseLiveMessage(evt)
		msg.ChatID = resolve(msg.ChatID)
		msg.Sender = resolve(msg.Sender)
		return Event{Kind: KindMessage, Message: msg}, true
	case *events.HistorySync:
		batch := parseHistorySync(evt, resolve)
		if len(batch) == 0 {
			return Event{}, false
		}
		return Event{Kind: KindHistory, History: batch}, true
	}
	return Event{}, false
}

func parseHistorySync(evt *events.HistorySync, resolve func(string) string) []*InboundMessage {
	if evt.Data == nil {
		return nil
	}
	var out []*InboundMessage
	for _, conv := range evt.Data.GetConversations() {
		chatID := resolve(NormalizeJID(conv.GetID()))
		for _, hm := range conv.GetMessages() {
			web := hm.GetMessage()
			if web == nil || web.GetMessage() == nil {
				continue
			}
			key := web.GetKey()
			msg := ParseHistoryMessage(chatID, web.GetMessage(), key.GetID(), key.GetParticipant(), key.GetFromMe(), web.GetMessageTimestamp())
			msg.ChatName = conv.GetName()
			msg.SenderName = web.GetPushName()
			if msg.Sender != "" {
				msg.Sender = resolve(msg.Sender)
			}
			out = append(out, msg)
		}
	}
	return out
}

// isLID reports whether jid uses the hidden-user (LID) server.
func isLID(jid types.JID) bool {
	return jid.Server == types.HiddenUserServer || jid.Server == types.HostedLIDServer
}
