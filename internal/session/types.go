package session

// Progress is the server's view of a session.
type Progress struct {
	SessionID       string `json:"session_id"`
	CurrentFloor    int    `json:"current_floor"`
	CompletedFloors []int  `json:"completed_floors"`
	TotalFloors     int    `json:"total_floors,omitempty"`
}

type ChatReply struct {
	SessionID     string `json:"session_id"`
	FloorID       int    `json:"floor_id"`
	Response      string `json:"response"`
	CharacterName string `json:"character_name"`
	CodeDetected  bool   `json:"code_detected"`
}

type VerifyResult struct {
	SessionID    string `json:"session_id"`
	Correct      bool   `json:"correct"`
	Message      string `json:"message"`
	FloorID      int    `json:"floor_id"`
	NextFloor    *int   `json:"next_floor"`
	WingCleared  bool   `json:"wing_cleared"`
	WingName     string `json:"wing_name"`
	GameComplete bool   `json:"game_complete"`
}

type HintResult struct {
	SessionID string `json:"session_id"`
	Available bool   `json:"available"`
	Hint      string `json:"hint"`
	Message   string `json:"message"`
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	FloorID   int    `json:"floor_id,omitempty"`
}

type verifyRequest struct {
	Code      string `json:"code"`
	SessionID string `json:"session_id,omitempty"`
	FloorID   int    `json:"floor_id,omitempty"`
}

type resetRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

type resetResponse struct {
	SessionID       string `json:"session_id"`
	Message         string `json:"message"`
	CurrentFloor    int    `json:"current_floor"`
	CompletedFloors []int  `json:"completed_floors"`
}

type errorBody struct {
	Detail any `json:"detail"`
}

type tokenCarrier interface {
	token() string
}

func (p *Progress) token() string      { return p.SessionID }
func (r *ChatReply) token() string     { return r.SessionID }
func (r *VerifyResult) token() string  { return r.SessionID }
func (r *HintResult) token() string    { return r.SessionID }
func (r *resetResponse) token() string { return r.SessionID }
