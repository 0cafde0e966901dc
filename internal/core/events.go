package core

// Wire event names shared by the room and lobby channels.
const (
	EventUserConnected         = "userConnection"
	EventUserDisconnected      = "userDisconnected"
	EventJoinRoom              = "joinRoom"
	EventLobbyUpdated          = "lobbyUpdated"
	EventUpgradeUserPermission = "upgradeUserPermission"
	EventSpeakRequest          = "speakRequest"
	EventSpeakAnswer           = "speakAnswer"
	EventError                 = "error"
)
