package phoenix

// addToInbox files msg in the local identity's inbox.
func (s *State) addToInbox(msg *Message) {
	s.inbox.Insert(msg.Timestamp, msg.Key)
}

// applyAdvert indexes an advert with non-empty text.
func (s *State) applyAdvert(msg *Message) bool {
	if empty(msg.Content.Text) {
		return false
	}
	return s.adverts.Insert(msg.Timestamp, msg.Key)
}
