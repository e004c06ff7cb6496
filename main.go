package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	bookingx "github.com/waritk/frontdesk/agent/booking"
	contractx "github.com/waritk/frontdesk/agent/contract"
	llmx "github.com/waritk/frontdesk/agent/llm"
	memoryx "github.com/waritk/frontdesk/agent/memory"
	sessionx "github.com/waritk/frontdesk/agent/session"
	toolx "github.com/waritk/frontdesk/agent/tool"
	variantx "github.com/waritk/frontdesk/agent/variant"
	configx "github.com/waritk/frontdesk/pkg/config"
	_ "github.com/waritk/frontdesk/pkg/logger/autoload"
	rtcx "github.com/waritk/frontdesk/pkg/rtc"
	sttx "github.com/waritk/frontdesk/pkg/stt"
	ttsx "github.com/waritk/frontdesk/pkg/tts"
)

type AppConfig struct {
	Variant     string `envconfig:"AGENT_VARIANT" default:"hospital"`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8089"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
}

type dispatchRequest struct {
	RoomID string `json:"room_id"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("")

	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("llm configuration")
	}

	rtcCfg := configx.MustNew[rtcx.Config]("RTC")
	sttCfg := configx.MustNew[sttx.Config]("STT")
	ttsCfg := configx.MustNew[ttsx.Config]("TTS")

	registry, err := variantx.NewBuiltinRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("variant registry")
	}
	variant, err := registry.Resolve(appCfg.Variant)
	if err != nil {
		log.Fatal().Err(err).Str("tag", appCfg.Variant).Msg("unknown agent variant")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	memory, booking, cleanup, err := buildStores(ctx, appCfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("store wiring")
	}
	defer cleanup()

	replyCfg := llmCfg.OpenRouterReply()
	replyModel, err := replyCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("reply model")
	}
	summaryCfg := llmCfg.OpenRouterSummary()
	summaryModel, err := summaryCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("summary model")
	}
	summarizer, err := llmx.NewSummarizer(ctx, summaryModel)
	if err != nil {
		log.Fatal().Err(err).Msg("summarizer")
	}

	synthesizer := ttsx.MustNew(*ttsCfg)
	toolInfos := toolx.InfosFor(variant.ToolSet)

	server := &callServer{
		rtcCfg:      *rtcCfg,
		sttCfg:      *sttCfg,
		variant:     variant,
		memory:      memory,
		booking:     booking,
		summarizer:  summarizer,
		synthesizer: synthesizer,
		newReplier: func(ctx context.Context, instructions string) (contractx.Replier, error) {
			return llmx.NewReplier(ctx, replyModel, instructions, toolInfos)
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /calls", server.handleDispatch)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	httpServer := &http.Server{Addr: appCfg.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", appCfg.ListenAddr).
		Str("variant", variant.TypeTag).
		Msg("frontdesk agent listening")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server")
	}

	server.wait()
	log.Info().Msg("frontdesk agent stopped")
}

// buildStores wires postgres when a DSN is configured and falls back to the
// in-memory stores otherwise, so the agent can run without persistence.
func buildStores(ctx context.Context, dsn string) (memoryx.Store, bookingx.Engine, func(), error) {
	if strings.TrimSpace(dsn) == "" {
		log.Warn().Msg("no database configured, caller memory will not survive restarts")
		return memoryx.NewMemStore(), bookingx.NewMemEngine(), func() {}, nil
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	memory, err := memoryx.NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	booking, err := bookingx.NewPostgresEngine(db)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := memory.EnsureSchema(schemaCtx); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	if err := booking.EnsureSchema(schemaCtx); err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("database close")
		}
	}
	return memory, booking, cleanup, nil
}

// callServer turns dispatch requests into running sessions, one per room.
type callServer struct {
	rtcCfg      rtcx.Config
	sttCfg      sttx.Config
	variant     variantx.Variant
	memory      memoryx.Store
	booking     bookingx.Engine
	summarizer  contractx.Summarizer
	synthesizer contractx.Synthesizer
	newReplier  sessionx.ReplierFactory

	calls sync.WaitGroup
}

func (s *callServer) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.RoomID) == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}
	roomID := strings.TrimSpace(req.RoomID)

	sess, err := s.newSession()
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("session construction failed")
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	s.calls.Add(1)
	go func() {
		defer s.calls.Done()
		if err := sess.Run(context.Background(), roomID); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("call failed")
		}
		<-sess.Done()
	}()

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"session_id": sess.ID()})
}

func (s *callServer) newSession() (*sessionx.Session, error) {
	transport, err := rtcx.NewRoom(s.rtcCfg)
	if err != nil {
		return nil, err
	}
	recognizer, err := sttx.NewClient(s.sttCfg)
	if err != nil {
		return nil, err
	}

	return sessionx.New(sessionx.Deps{
		Transport:   transport,
		Recognizer:  recognizer,
		Synthesizer: s.synthesizer,
		NewReplier:  s.newReplier,
		Summarizer:  s.summarizer,
		Memory:      s.memory,
		Booking:     s.booking,
		Variant:     s.variant,
	})
}

func (s *callServer) wait() { s.calls.Wait() }
