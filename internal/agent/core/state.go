package core

// State is the unit of work threaded through every pipeline stage. A run owns
// its State exclusively; stages mutate it one at a time.
type State struct {
	Messages []Turn                 `json:"messages"`
	Metadata map[string]interface{} `json:"metadata"`
	Category Category               `json:"category"`
}

// NewState builds the initial state for a raw inbound message.
func NewState(raw string) *State {
	return &State{
		Messages: []Turn{{Role: RoleHuman, Content: raw}},
		Metadata: make(map[string]interface{}),
		Category: CategoryGeneral,
	}
}

// Latest returns the last turn, which is the item currently being acted on.
func (s *State) Latest() Turn {
	if len(s.Messages) == 0 {
		return Turn{}
	}
	return s.Messages[len(s.Messages)-1]
}

// LatestHuman returns the most recent human turn.
func (s *State) LatestHuman() Turn {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleHuman {
			return s.Messages[i]
		}
	}
	return Turn{}
}

// Append extends the message log. Turns are never edited in place.
func (s *State) Append(role Role, content string) {
	s.Messages = append(s.Messages, Turn{Role: role, Content: content})
}

// Set writes a metadata key.
func (s *State) Set(key string, value interface{}) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]interface{})
	}
	s.Metadata[key] = value
}

// Has reports whether key is present in metadata.
func (s *State) Has(key string) bool {
	_, ok := s.Metadata[key]
	return ok
}

// String returns a metadata value as a string, or "" when absent.
func (s *State) String(key string) string {
	v, _ := s.Metadata[key].(string)
	return v
}

// Snapshot returns a copy that shares no mutable containers with s.
func (s *State) Snapshot() *State {
	if s == nil {
		return nil
	}
	cp := &State{
		Messages: append([]Turn(nil), s.Messages...),
		Metadata: make(map[string]interface{}, len(s.Metadata)),
		Category: s.Category,
	}
	for k, v := range s.Metadata {
		cp.Metadata[k] = v
	}
	return cp
}
