package main

import (
	"context"
	"log/slog"

	"dev.acmcsuf.com/opcled"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"libdb.so/hrt"
)

type adminHandler struct {
	*chi.Mux
	server  *opcled.Server
	preview *previewDriver
}

func newAdminHandler(server *opcled.Server, preview *previewDriver, logger *slog.Logger) *adminHandler {
	h := &adminHandler{
		Mux:     chi.NewRouter(),
		server:  server,
		preview: preview,
	}

	h.Use(httplog.RequestLogger(&httplog.Logger{
		Logger: logger,
		Options: httplog.Options{
			LogLevel: slog.LevelDebug,
			Concise:  true,
		},
	}))

	h.Use(hrt.Use(hrt.Opts{
		Encoder: hrt.CombinedEncoder{
			Encoder: hrt.JSONEncoder,
			Decoder: hrt.URLDecoder,
		},
		ErrorWriter: hrt.TextErrorWriter,
	}))

	h.Get("/colors", hrt.Wrap(h.getColors))
	h.Get("/sessions", hrt.Wrap(h.getSessions))
	h.Post("/kick-all", hrt.Wrap(h.kickAll))
	h.Get("/preview", preview.ServeHTTP)

	return h
}

type colorsResponse struct {
	Colors opcled.ColorSet `json:"colors"`
}

func (h *adminHandler) getColors(ctx context.Context, _ hrt.None) (colorsResponse, error) {
	return colorsResponse{Colors: h.server.Colors()}, nil
}

type sessionsResponse struct {
	Sessions []string `json:"sessions"`
	// Previews is the number of connected preview clients.
	Previews int `json:"previews"`
}

func (h *adminHandler) getSessions(ctx context.Context, _ hrt.None) (sessionsResponse, error) {
	sessions := h.server.Sessions()
	if sessions == nil {
		sessions = []string{}
	}

	return sessionsResponse{
		Sessions: sessions,
		Previews: h.preview.Subscribers(),
	}, nil
}

type kickAllRequest struct {
	Reason string `query:"reason"`
}

func (h *adminHandler) kickAll(ctx context.Context, req kickAllRequest) (hrt.None, error) {
	reason := req.Reason
	if reason == "" {
		reason = "kicked by admin"
	}
	h.server.KickAllConnections(reason)
	return hrt.Empty, nil
}
