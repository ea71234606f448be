package handler

import (
	"trocchat/internal/app/hub"
	"trocchat/internal/app/notify"
	"trocchat/internal/configs"
	"trocchat/internal/pkg/token"
)

// AppDeps bundles the services the HTTP handlers depend on.
type AppDeps struct {
	Hub      *hub.Hub
	Notify   *notify.Service
	Config   *configs.AppConfig
	Verifier *token.Verifier
}
