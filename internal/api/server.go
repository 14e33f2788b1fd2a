// Package api exposes the connector over HTTP: a JSON API for files, sync,
// and watch management, the webhook endpoint for Drive push notifications,
// a websocket event stream, and Prometheus metrics. Errors are rendered as
// RFC 7807 problem details.
package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driveconnect/driveconnect/internal/config"
	"github.com/driveconnect/driveconnect/internal/drive"
	"github.com/driveconnect/driveconnect/internal/store"
	"github.com/driveconnect/driveconnect/internal/syncer"
	"github.com/driveconnect/driveconnect/internal/transfer"
	"github.com/driveconnect/driveconnect/internal/watch"
)

// Page sizes used when a request does not specify one.
const (
	defaultListPageSize = 100
	defaultSyncPageSize = 100
)

// Options wires the server's collaborators.
type Options struct {
	Client     *drive.Client
	Engine     *syncer.Engine
	Watches    *watch.Manager
	Downloader *transfer.Downloader
	Webhook    config.WebhookConfig
	Origins    []string
	Logger     *slog.Logger
}

// Server is the HTTP surface of the connector.
type Server struct {
	client     *drive.Client
	engine     *syncer.Engine
	watches    *watch.Manager
	downloader *transfer.Downloader
	webhookCfg config.WebhookConfig
	hub        *Hub
	logger     *slog.Logger
	router     chi.Router
}

// NewServer builds the router and returns a ready-to-serve Server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		client:     opts.Client,
		engine:     opts.Engine,
		watches:    opts.Watches,
		downloader: opts.Downloader,
		webhookCfg: opts.Webhook,
		hub:        NewHub(opts.Logger),
		logger:     opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if len(opts.Origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.Origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/webhook", s.handleWebhook)
	r.Get("/v1/events", s.hub.handleEvents)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/files", s.handleListFiles)
		r.Get("/files/{fileID}", s.handleGetFile)
		r.Get("/files/{fileID}/content", s.handleDownload)
		r.Get("/files/{fileID}/permissions", s.handleListPermissions)
		r.Post("/sync", s.handleSync)
		r.Get("/watch", s.handleListChannels)
		r.Post("/watch", s.handleRegisterChannel)
		r.Delete("/watch/{channelID}", s.handleDeleteChannel)
		r.Post("/watch/renew", s.handleRenewChannels)
		r.Get("/drives", s.handleListDrives)
	})

	s.router = r

	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the event hub so other components can publish.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	if pageSize <= 0 {
		pageSize = defaultListPageSize
	}

	list, err := s.client.ListFiles(r.Context(), drive.ListFilesOptions{
		PageSize:  pageSize,
		PageToken: q.Get("pageToken"),
		Query:     q.Get("q"),
		DriveID:   q.Get("driveId"),
	})
	if err != nil {
		writeProblem(w, s.logger, err)
		return
	}

	writeJSON(w, s.logger, http.StatusOK, list)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	f, err := s.client.GetFile(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		writeProblem(w, s.logger, err)
		return
	}

	writeJSON(w, s.logger, http.StatusOK, f)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	f, err := s.client.GetFile(r.Context(), fileID)
	if err != nil {
		writeProblem(w, s.logger, err)
		return
	}

	stream, size, err := s.downloader.Open(r.Context(), transfer.FileMeta{
		ID:       f.ID,
		Name:     f.Name,
		MimeType: f.MimeType,
		Checksum: f.MD5Checksum,
	})
	if err != nil {
		writeProblem(w, s.logger, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+f.Name+`"`)

	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}

	if _, err := io.Copy(w, stream); err != nil {
		// Headers are gone; the broken transfer is already in the audit log.
		s.logger.Warn("download stream interrupted",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := s.client.ListPermissions(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		writeProblem(w, s.logger, err)
		return
	}

	writeJSON(w, s.logger, http.StatusOK, perms)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	resource := q.Get("resource")
	if resource == "" {
		resource = "changes"
	}

	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	if pageSize <= 0 {
		pageSize = defaultSyncPageSize
	}

	result, err := s.engine.Sync(r.Context(), resource, pageSize)
	if err != nil {
		writeProblem(w, s.logger, err)
		return
	}

	if len(result.Changes) > 0 {
		s.hub.Broadcast("sync.completed", map[string]any{
			"resource": resource,
			"changes":  len(result.Changes),
			"has_more": result.HasMore,
		})
	}

	writeJSON(w, s.logger, http.StatusOK, result)
}

// channelJSON is the outward view of a channel. The shared secret is never
// serialized.
type channelJSON struct {
	ChannelID   string     `json:"channel_id"`
	ResourceID  string     `json:"resource_id"`
	ResourceURI string     `json:"resource_uri"`
	Expiration  *time.Time `json:"expiration"`
	AccountID   string     `json:"account_id"`
	Kind        string     `json:"kind"`
	CreatedAt   time.Time  `json:"created_at"`
}

func channelView(ch *store.Channel) channelJSON {
	return channelJSON{
		ChannelID:   ch.ChannelID,
		ResourceID:  ch.ResourceID,
		ResourceURI: ch.ResourceURI,
		Expiration:  ch.Expiration,
		AccountID:   ch.AccountID,
		Kind:        ch.Kind,
		CreatedAt:   ch.CreatedAt,
	}
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.watches.List(r.Context())
	if err != nil {
		writeProblem(w, s.logger, err)
		return
	}

	views := make([]channelJSON, 0, len(channels))
	for i := range channels {
		views = append(views, channelView(&channels[i]))
	}

	writeJSON(w, s.logger, http.StatusOK, views)
}

func (s *Server) handleRegisterChannel(w http.ResponseWriter, r *http.Request) {
	ttl := config.Duration(r.URL.Query().Get("ttl"),
		config.Duration(s.webhookCfg.ChannelTTL, 24*time.Hour))

	ch, err := s.watches.Register(r.Context(), ttl)
	if err != nil {
		writeProblem(w, s.logger, err)
		return
	}

	writeJSON(w, s.logger, http.StatusCreated, channelView(ch))
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.watches.Delete(r.Context(), chi.URLParam(r, "channelID")); err != nil {
		writeProblem(w, s.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenewChannels(w http.ResponseWriter, r *http.Request) {
	threshold := config.Duration(s.webhookCfg.RenewThreshold, time.Hour)
	ttl := config.Duration(s.webhookCfg.ChannelTTL, 24*time.Hour)

	renewed, err := s.watches.Renew(r.Context(), threshold, ttl)
	if err != nil {
		writeProblem(w, s.logger, err)
		return
	}

	writeJSON(w, s.logger, http.StatusOK, map[string][]string{"renewed": renewed})
}

func (s *Server) handleListDrives(w http.ResponseWriter, r *http.Request) {
	drives, err := s.client.ListSharedDrives(r.Context())
	if err != nil {
		writeProblem(w, s.logger, err)
		return
	}

	writeJSON(w, s.logger, http.StatusOK, drives)
}
