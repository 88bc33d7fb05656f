package chat

// Store layout. Room ownership records live under the identity's
// namespace; the room container and its message collection live in the
// global chatrooms namespace keyed by the same id.
//
//	users/{uid}/chatrooms/{roomID} -> {name}
//	chatrooms/{roomID}             -> {name}
//	chatrooms/{roomID}/messages/*  -> {user, text}

func userRoomsPath(uid string) string {
	return "users/" + uid + "/chatrooms"
}

func userRoomPath(uid, roomID string) string {
	return userRoomsPath(uid) + "/" + roomID
}

func roomPath(roomID string) string {
	return "chatrooms/" + roomID
}

func roomMessagesPath(roomID string) string {
	return roomPath(roomID) + "/messages"
}

// roomRecord is the stored value of a room, both in the ownership
// record and the container.
type roomRecord struct {
	Name string `json:"name"`
}

// messageRecord is the stored value of a message; its id is the push key.
type messageRecord struct {
	User string `json:"user"`
	Text string `json:"text"`
}
