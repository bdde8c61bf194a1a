package domain

type RoomName string

// ConnectionDetails is what a token provider hands out for one room join.
type ConnectionDetails struct {
	ServerURL        string   `json:"serverUrl"`
	RoomName         RoomName `json:"roomName"`
	ParticipantName  string   `json:"participantName"`
	ParticipantToken string   `json:"participantToken"`
}

// Permissions mirrors what the room lets the local participant publish.
type Permissions struct {
	Microphone  bool `json:"microphone" msgpack:"microphone"`
	Camera      bool `json:"camera" msgpack:"camera"`
	ScreenShare bool `json:"screenShare" msgpack:"screen_share"`
	Data        bool `json:"data" msgpack:"data"`
}

// AllPermissions is what a room grants when it does not say otherwise.
func AllPermissions() Permissions {
	return Permissions{Microphone: true, Camera: true, ScreenShare: true, Data: true}
}
