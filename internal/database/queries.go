package database

const (
	insertRoomQuery = "INSERT INTO rooms (id, name, created_by, status, created_at) " +
		"VALUES ($1, $2, $3, 'active', $4)"
	insertParticipantQuery = "INSERT INTO participants (room_id, id, type, name, avatar, pseudonym, joined_at) " +
		"VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (room_id, id) DO NOTHING"
	insertMessageQuery = "INSERT INTO messages (id, room_id, sender, type, content, created_at) " +
		"VALUES ($1, $2, $3, $4, $5, $6)"

	selectRoomQuery         = "SELECT name, created_by, created_at FROM rooms WHERE id = $1"
	roomExistsQuery         = "SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)"
	lockRoomQuery           = "SELECT id FROM rooms WHERE id = $1 FOR UPDATE"
	participantExistsQuery  = "SELECT EXISTS (SELECT 1 FROM participants WHERE room_id = $1 AND id = $2)"
	selectParticipantsQuery = "SELECT id, type, name, avatar, joined_at FROM participants " +
		"WHERE room_id = $1 ORDER BY seq ASC"
	selectParticipantQuery = "SELECT id, type, name, avatar, joined_at FROM participants " +
		"WHERE room_id = $1 AND id = $2"
	selectMessagesQuery = "SELECT id, sender, content, created_at FROM messages " +
		"WHERE room_id = $1 ORDER BY created_at ASC NULLS LAST, seq ASC"
	selectMessageQuery = "SELECT id, sender, content, created_at FROM messages " +
		"WHERE room_id = $1 AND id = $2"
	lastMessageTimeQuery = "SELECT max(created_at) FROM messages WHERE room_id = $1"
)
