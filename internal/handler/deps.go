package handler

import (
	"roomchat/internal/app/chat"
	"roomchat/internal/app/identity"
	"roomchat/internal/app/moderation"
	"roomchat/internal/app/room"
	"roomchat/internal/app/storage"
	"roomchat/internal/configs"
	"roomchat/internal/pkg/pow"
)

// AppDeps are the collaborators shared by every handler.
type AppDeps struct {
	Config     *configs.AppConfig
	Hub        *chat.Hub
	Identity   *identity.Service
	Rooms      *room.Service
	Moderation *moderation.Service
	Files      *storage.Files
	Pow        *pow.PoWManager
}
