package httpapi

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/simonfrey/jsonl"
	"go.uber.org/zap"

	"github.com/GianmarcoBramucci/cri/index"
	"github.com/GianmarcoBramucci/cri/llm"
	"github.com/GianmarcoBramucci/cri/memory"
	"github.com/GianmarcoBramucci/cri/metrics"
	"github.com/GianmarcoBramucci/cri/rag"
	"github.com/GianmarcoBramucci/cri/session"
)

const (
	msgQueryFailed      = "Si è verificato un errore durante l'elaborazione della richiesta: "
	msgResetFailed      = "Si è verificato un errore durante il reset della conversazione: "
	msgTranscriptFailed = "Si è verificato un errore durante il recupero della trascrizione: "
	msgResetOK          = "Conversazione resettata con successo."
	msgMissingSession   = "Il campo session_id è obbligatorio."
	msgEmptyQuery       = "La domanda non può essere vuota."
	msgUnavailable      = "Il servizio di risposta non è al momento disponibile. Riprova più tardi."

	excerptRunes = 240
)

// QueryRequest is the body of POST /query. A nil ConversationHistory
// leaves session memory untouched; an empty one resets it.
type QueryRequest struct {
	Query               string                  `json:"query"`
	SessionID           string                  `json:"session_id"`
	ConversationHistory []memory.RawHistoryItem `json:"conversation_history"`
}

// Source is a passage cited by an answer.
type Source struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	Source     string  `json:"source,omitempty"`
	Passage    int     `json:"passage"`
	Score      float64 `json:"score"`
	Excerpt    string  `json:"excerpt"`
}

// QueryMetadata carries diagnostics about one answer.
type QueryMetadata struct {
	Condensed  bool               `json:"condensed"`
	DurationMS int64              `json:"duration_ms"`
	Usage      llm.TokenUsage     `json:"usage"`
	History    *memory.LoadReport `json:"history,omitempty"`
	Ephemeral  bool               `json:"ephemeral"`
}

// QueryResponse is the body returned by POST /query.
type QueryResponse struct {
	Answer             string        `json:"answer"`
	SessionID          string        `json:"session_id"`
	StandaloneQuestion string        `json:"standalone_question"`
	Sources            []Source      `json:"sources"`
	IsFollowUp         bool          `json:"is_follow_up"`
	Metadata           QueryMetadata `json:"metadata"`
}

// ResetRequest is the body of POST /reset.
type ResetRequest struct {
	SessionID string `json:"session_id"`
}

// ResetResponse is the body returned by POST /reset.
type ResetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TranscriptResponse is the body returned by GET /transcript.
type TranscriptResponse struct {
	Transcript []memory.Record `json:"transcript"`
}

// ContactResponse is the body returned by GET /contact.
type ContactResponse struct {
	Name         string `json:"name"`
	Website      string `json:"website"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Headquarters string `json:"headquarters"`
	Description  string `json:"description"`
}

func detail(msg string) gin.H { return gin.H{"detail": msg} }

func (s *Server) observeQuery(outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveQuery(outcome, time.Since(start))
	}
}

func (s *Server) handleQuery(c *gin.Context) {
	start := time.Now()

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.observeQuery(metrics.OutcomeBadRequest, start)
		c.JSON(http.StatusBadRequest, detail("Richiesta non valida: "+err.Error()))
		return
	}
	// Rejected before the session is resolved so memory is left untouched.
	if strings.TrimSpace(req.Query) == "" {
		s.observeQuery(metrics.OutcomeBadRequest, start)
		c.JSON(http.StatusBadRequest, detail(msgEmptyQuery))
		return
	}
	logger := s.logger.With(zap.String("session_id", req.SessionID))
	logger.Info("query received", zap.Int("query_len", len(req.Query)), zap.Bool("history", req.ConversationHistory != nil))

	sess, err := s.resolveSession(req.SessionID)
	if err != nil {
		s.observeQuery(metrics.OutcomeError, start)
		c.JSON(http.StatusInternalServerError, detail(msgQueryFailed+err.Error()))
		return
	}

	release, err := sess.Acquire(c.Request.Context())
	if err != nil {
		s.observeQuery(metrics.OutcomeError, start)
		c.JSON(http.StatusServiceUnavailable, detail(msgQueryFailed+err.Error()))
		return
	}
	defer release()

	mem := sess.Memory()
	var report *memory.LoadReport
	if req.ConversationHistory != nil {
		r := mem.LoadHistory(req.ConversationHistory)
		report = &r
		if s.metrics != nil {
			s.metrics.ObserveHistory(r)
		}
		if !r.Clean() {
			logger.Warn("client history had anomalies",
				zap.Int("items", r.Items),
				zap.Int("pairs", r.Pairs),
				zap.Stringers("anomalies", r.Anomalies))
		}
	}

	isFollowUp := mem.IsFollowUp()
	answer, err := s.engine.Answer(c.Request.Context(), req.Query, mem.History())
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion):
		s.observeQuery(metrics.OutcomeBadRequest, start)
		c.JSON(http.StatusBadRequest, detail(msgEmptyQuery))
		return
	case errors.Is(err, rag.ErrEngineUnavailable):
		s.observeQuery(metrics.OutcomeUnavailable, start)
		logger.Error("engine unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, detail(msgUnavailable))
		return
	case err != nil:
		s.observeQuery(metrics.OutcomeError, start)
		logger.Error("query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, detail(msgQueryFailed+err.Error()))
		return
	}

	mem.AddExchange(req.Query, answer.Text)
	s.observeQuery(metrics.OutcomeOK, start)
	if s.metrics != nil {
		s.metrics.ObserveRetrieval(len(answer.Sources))
	}

	sessionID := sess.ID()
	if sess.Ephemeral() {
		sessionID = ""
	}
	c.JSON(http.StatusOK, QueryResponse{
		Answer:             answer.Text,
		SessionID:          sessionID,
		StandaloneQuestion: answer.StandaloneQuestion,
		Sources:            lo.Map(answer.Sources, func(h index.Hit, _ int) Source { return toSource(h) }),
		IsFollowUp:         isFollowUp,
		Metadata: QueryMetadata{
			Condensed:  answer.Condensed,
			DurationMS: time.Since(start).Milliseconds(),
			Usage:      answer.Usage,
			History:    report,
			Ephemeral:  sess.Ephemeral(),
		},
	})
}

func (s *Server) resolveSession(id string) (*session.Session, error) {
	if id == "" {
		return s.sessions.Ephemeral(), nil
	}
	return s.sessions.GetOrCreate(id)
}

func (s *Server) handleReset(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, detail(msgMissingSession))
		return
	}
	logger := s.logger.With(zap.String("session_id", req.SessionID))

	if sess, ok := s.sessions.Get(req.SessionID); ok {
		release, err := sess.Acquire(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, detail(msgResetFailed+err.Error()))
			return
		}
		sess.Memory().Reset()
		s.sessions.Delete(req.SessionID)
		release()
		logger.Info("conversation reset")
	}
	if s.metrics != nil {
		s.metrics.ObserveReset()
	}
	c.JSON(http.StatusOK, ResetResponse{Success: true, Message: msgResetOK})
}

func (s *Server) handleTranscript(c *gin.Context) {
	var records []memory.Record
	if id := c.Query("session_id"); id != "" {
		if sess, ok := s.sessions.Get(id); ok {
			records = sess.Memory().Transcript()
		}
	}
	if records == nil {
		records = []memory.Record{}
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		c.JSON(http.StatusOK, TranscriptResponse{Transcript: records})
	case "jsonl":
		c.Header("Content-Type", "application/x-ndjson")
		c.Status(http.StatusOK)
		w := jsonl.NewWriter(c.Writer)
		for _, r := range records {
			if err := w.Write(r); err != nil {
				s.logger.Warn("transcript write failed", zap.Error(err))
				return
			}
		}
	default:
		c.JSON(http.StatusBadRequest, detail(msgTranscriptFailed+"formato non supportato"))
	}
}

func (s *Server) handleContact(c *gin.Context) {
	c.JSON(http.StatusOK, ContactResponse{
		Name:         "Croce Rossa Italiana",
		Website:      s.contact.Website,
		Email:        s.contact.Email,
		Phone:        s.contact.Phone,
		Headquarters: "Via Bernardino Ramazzini, 31, 00151 Roma RM",
		Description: "La Croce Rossa Italiana, fondata il 15 giugno 1864, è un'associazione " +
			"di soccorso volontario, parte integrante del Movimento Internazionale " +
			"della Croce Rossa e della Mezzaluna Rossa. Opera in Italia nei campi " +
			"sanitario, sociale e umanitario, secondo i sette Principi Fondamentali " +
			"del Movimento: Umanità, Imparzialità, Neutralità, Indipendenza, " +
			"Volontariato, Unità e Universalità.",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":       "ok",
		"engine_ready": s.engine.Ready(),
		"sessions":     s.sessions.Len(),
	}
	if !s.engine.Ready() {
		body["status"] = "degraded"
	}
	if s.index != nil {
		body["index"] = s.index.Stats()
	}
	c.JSON(http.StatusOK, body)
}

func toSource(h index.Hit) Source {
	return Source{
		DocumentID: h.DocumentID,
		Title:      h.Title,
		Source:     h.Source,
		Passage:    h.Ordinal,
		Score:      h.Score,
		Excerpt:    excerpt(h.Text, excerptRunes),
	}
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
