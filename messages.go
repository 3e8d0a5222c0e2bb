package server

// Diagnostics is the snapshot served on the diagnostics endpoint.
type Diagnostics struct {
	UptimeMillis   int64            `json:"uptimeMillis"`
	Received       uint64           `json:"received"`
	Emitted        uint64           `json:"emitted"`
	Rejected       uint64           `json:"rejected"`
	Absorbed       uint64           `json:"absorbed"`
	Decimated      uint64           `json:"decimated"`
	ActiveTouches  int              `json:"activeTouches"`
	ActivePens     int              `json:"activePens"`
	ActiveGestures int              `json:"activeGestures"`
	Subscribers    int              `json:"subscribers"`
	LastHeartbeat  int64            `json:"lastHeartbeat,omitempty"`
	RTTMillis      int64            `json:"rtt,omitempty"`
	EventTotals    map[string]int64 `json:"eventTotals,omitempty"`
}
