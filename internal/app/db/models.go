package db

import "database/sql"

// Membership statuses.
const (
	MembershipOnline  = "online"
	MembershipOffline = "offline"
	MembershipLeft    = "left"
)

// File statuses.
const (
	FileActive  = "active"
	FileExpired = "expired"
)

type Principal struct {
	UID       string
	Kind      string
	Nickname  string
	AvatarRef string
	Active    bool
	JoinTime  int64
	MuteUntil int64
	CreatedAt int64
}

type Room struct {
	RoomID       string
	Name         string
	PasswordHash sql.NullString
	CreatorUID   string
	Active       bool
	CreatedAt    int64
}

type Membership struct {
	RoomID     string
	UID        string
	Status     string
	JoinTime   int64
	LastActive int64
}

// MemberRow is a membership joined with the principal's display fields.
type MemberRow struct {
	Membership
	Nickname  string
	AvatarRef string
	Kind      string
}

type Message struct {
	ID         string
	RoomID     string
	SenderUID  string
	SenderKind string
	Variant    string
	Payload    string
	SearchText string
	ReplyToID  sql.NullString
	FileID     sql.NullString
	CreatedAt  int64
	DeletedAt  sql.NullInt64
}

// MessageRow is a message joined with its sender's display fields.
type MessageRow struct {
	Message
	SenderNickname string
	SenderAvatar   string
}

type Mute struct {
	ID        string
	RoomID    string
	TargetUID string
	MutedBy   string
	Reason    string
	MuteUntil int64
	Active    bool
	CreatedAt int64
}

type AdminGrant struct {
	RoomID    string
	UID       string
	GrantedBy string
	CreatedAt int64
}

type File struct {
	ID         string
	OwnerUID   string
	RoomID     string
	StorageKey string
	Name       string
	MimeType   string
	Size       int64
	Status     string
	MessageID  sql.NullString
	CreatedAt  int64
	ExpiresAt  int64
	RemovedAt  sql.NullInt64
}
