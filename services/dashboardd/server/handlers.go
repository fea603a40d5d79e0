package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"lendboard/gateway/middleware"
	"lendboard/lending/view"
	"lendboard/services/dashboardd/storage"
)

// errStrict wraps evaluation failures that only strict mode produces.
var errStrict = errors.New("snapshot rejected")

func (s *Server) account(w http.ResponseWriter, r *http.Request) (string, bool) {
	account, err := view.NormalizeAccount(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return account, true
}

func (s *Server) chainParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("chainId"))
	if raw == "" {
		return s.catalog.DefaultChain(), true
	}
	chainID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid chainId")
		return 0, false
	}
	if _, err := s.catalog.Chain(chainID); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return 0, false
	}
	return chainID, true
}

// evaluate decodes a stored or posted payload and renders its view.
func (s *Server) evaluate(account string, payload []byte) (view.View, error) {
	snap, err := view.ReadSnapshot(bytes.NewReader(payload))
	if err != nil {
		return view.View{}, err
	}
	records, warnings, err := snap.Resolve(s.catalog)
	if err != nil {
		return view.View{}, err
	}
	annualizer, err := s.catalog.Annualizer(snap.ChainID)
	if err != nil {
		return view.View{}, err
	}
	started := s.now()
	eval, err := view.Evaluate(records, annualizer, s.cfg.Strict)
	if err != nil {
		return view.View{}, errors.Join(errStrict, err)
	}
	s.metrics.ObserveEvaluation(snap.ChainID, eval.Totals, eval.Health, s.now().Sub(started))
	return eval.Render(account, snap.ChainID, warnings), nil
}

func attach(v *view.View, snap storage.Snapshot) {
	v.SnapshotID = snap.ID.String()
	received := snap.ReceivedAt
	v.AsOf = &received
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(w, r)
	if !ok {
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSnapshotBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "snapshot too large")
		return
	}
	snap, err := view.ReadSnapshot(bytes.NewReader(payload))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if snap.Account != "" {
		claimed, err := view.NormalizeAccount(snap.Account)
		if err != nil || claimed != account {
			s.writeError(w, http.StatusBadRequest, "snapshot account does not match path")
			return
		}
	}
	rendered, err := s.evaluate(account, payload)
	switch {
	case errors.Is(err, errStrict):
		s.metrics.RecordSnapshot(snap.ChainID, "rejected")
		s.logger.Warn("strict evaluation rejected snapshot",
			slog.String("account", account), slog.Uint64("chain_id", snap.ChainID), slog.Any("error", err))
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.metrics.RecordSnapshot(snap.ChainID, "invalid")
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, duplicate, err := s.store.Save(r.Context(), snap.ChainID, account, payload, len(snap.Records))
	if err != nil {
		s.logger.Error("persist snapshot", slog.String("account", account), slog.Any("error", err))
		s.writeError(w, http.StatusInternalServerError, "persist snapshot")
		return
	}
	attach(&rendered, stored)
	status := http.StatusCreated
	if duplicate {
		s.metrics.RecordSnapshot(snap.ChainID, "duplicate")
		status = http.StatusOK
	} else {
		s.metrics.RecordSnapshot(snap.ChainID, "accepted")
		s.broadcast(snap.ChainID, account, rendered)
	}
	s.logger.Info("snapshot ingested",
		slog.String("account", account),
		slog.Uint64("chain_id", snap.ChainID),
		slog.String("snapshot_id", stored.ID.String()),
		slog.Bool("duplicate", duplicate),
		slog.Int("warnings", len(rendered.Warnings)),
		slog.String("subject", middleware.Subject(r.Context())))
	s.writeJSON(w, status, rendered)
}

func (s *Server) broadcast(chainID uint64, account string, v view.View) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode view", slog.Any("error", err))
		return
	}
	if dropped := s.hub.publish(topicFor(chainID, account), payload); dropped > 0 {
		s.logger.Debug("dropped stale views", slog.String("account", account), slog.Int("dropped", dropped))
	}
}

// latestView recomputes the newest stored snapshot.
func (s *Server) latestView(ctx context.Context, chainID uint64, account string) (view.View, error) {
	stored, err := s.store.Latest(ctx, chainID, account)
	if err != nil {
		return view.View{}, err
	}
	rendered, err := s.evaluate(account, stored.Payload)
	if err != nil {
		return view.View{}, err
	}
	attach(&rendered, stored)
	return rendered, nil
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(w, r)
	if !ok {
		return
	}
	chainID, ok := s.chainParam(w, r)
	if !ok {
		return
	}
	rendered, err := s.latestView(r.Context(), chainID, account)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "no snapshot for account")
	case errors.Is(err, errStrict):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		s.logger.Error("recompute view", slog.String("account", account), slog.Any("error", err))
		s.writeError(w, http.StatusInternalServerError, "recompute view")
	default:
		s.writeJSON(w, http.StatusOK, rendered)
	}
}

type historyItem struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Records     int       `json:"records"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(w, r)
	if !ok {
		return
	}
	chainID, ok := s.chainParam(w, r)
	if !ok {
		return
	}
	limit := s.cfg.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if limit <= 0 || parsed < limit {
			limit = parsed
		}
	}
	snaps, err := s.store.History(r.Context(), chainID, account, limit)
	if err != nil {
		s.logger.Error("snapshot history", slog.String("account", account), slog.Any("error", err))
		s.writeError(w, http.StatusInternalServerError, "snapshot history")
		return
	}
	out := make([]historyItem, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, historyItem{
			ID:          snap.ID.String(),
			Fingerprint: snap.Fingerprint,
			Records:     snap.RecordCount,
			ReceivedAt:  snap.ReceivedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"account": account, "chainId": chainID, "snapshots": out})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(w, r)
	if !ok {
		return
	}
	chainID, ok := s.chainParam(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns(s.cfg.CORS.AllowedOrigins)})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	sub, cancel := s.hub.subscribe(topicFor(chainID, account))
	defer cancel()
	ctx := conn.CloseRead(r.Context())

	if err := s.streamViews(ctx, conn, chainID, account, sub); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
			s.logger.Debug("stream ended", slog.String("account", account), slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

// originPatterns converts CORS origins into the host patterns the websocket
// handshake matches against.
func originPatterns(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if _, host, ok := strings.Cut(origin, "://"); ok {
			origin = host
		}
		out = append(out, strings.TrimRight(origin, "/"))
	}
	return out
}

func (s *Server) streamViews(ctx context.Context, conn *websocket.Conn, chainID uint64, account string, sub *subscriber) error {
	current, err := s.latestView(ctx, chainID, account)
	switch {
	case err == nil:
		payload, err := json.Marshal(current)
		if err != nil {
			return err
		}
		if err := s.write(ctx, conn, payload); err != nil {
			return err
		}
	case !errors.Is(err, storage.ErrNotFound):
		s.logger.Warn("initial stream view", slog.String("account", account), slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-sub.ch:
			if err := s.write(ctx, conn, payload); err != nil {
				return err
			}
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}
