package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/patchcore/scanengine/internal/audit"
	"github.com/patchcore/scanengine/internal/canon"
	"github.com/patchcore/scanengine/internal/pipeline"
	"github.com/patchcore/scanengine/internal/scanner"
	"github.com/patchcore/scanengine/internal/ssot"
	"github.com/patchcore/scanengine/pkg/models"
)

// APIHandler holds every collaborator the HTTP surface needs: the
// session pipeline, the trace emitter, the bound profile and its drift
// detector, the provenance-replay scanner, and the websocket hub. One
// struct owning its whole dependency set and exposing gin.HandlerFuncs
// as methods.
type APIHandler struct {
	pipeline *pipeline.Pipeline
	emitter  *audit.Emitter
	profile  ssot.Profile
	drift    *ssot.DriftDetector
	scanner  *scanner.ChainScanner
	wsHub    *Hub
}

// NewAPIHandler wires a handler around its collaborators. scanner is nil
// when no persistence backend is configured, and emitter is nil when no
// audit sink could be opened; the corresponding endpoints report 503
// rather than panicking.
func NewAPIHandler(p *pipeline.Pipeline, emitter *audit.Emitter, profile ssot.Profile, drift *ssot.DriftDetector, sc *scanner.ChainScanner, hub *Hub) *APIHandler {
	return &APIHandler{pipeline: p, emitter: emitter, profile: profile, drift: drift, scanner: sc, wsHub: hub}
}

// SetupRouter builds the gin engine with auth, rate limiting, and every
// route this handler serves.
func SetupRouter(h *APIHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.handleHealth)
	r.GET("/stream", h.wsHub.Subscribe)

	apiGroup := r.Group("/api/v1")
	apiGroup.Use(AuthMiddleware())
	apiGroup.Use(NewRateLimiter(120, 20).Middleware())
	{
		apiGroup.POST("/candidates", h.handleSubmitCandidate)
		apiGroup.POST("/tick", h.handleTick)
		apiGroup.GET("/capacity", h.handleCapacity)
		apiGroup.GET("/profile", h.handleProfile)

		trace := apiGroup.Group("/trace/:traceId")
		{
			trace.POST("/start", h.handleTraceStart)
			trace.POST("/step", h.handleTraceStep)
			trace.POST("/end", h.handleTraceEnd)
			trace.POST("/fail", h.handleTraceFail)
		}

		apiGroup.GET("/provenance", h.handleProvenance)
		apiGroup.POST("/provenance/verify", h.handleStartVerify)
		apiGroup.GET("/provenance/verify", h.handleVerifyProgress)
	}
	return r
}

// handleHealth reports liveness plus the bound profile's drift state,
// the one check an operator needs before trusting anything else this
// process reports.
func (h *APIHandler) handleHealth(c *gin.Context) {
	resp := gin.H{"status": "ok", "profile": h.profile.Name}
	if h.drift != nil {
		intact, err := h.drift.CheckDrift(h.profile)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp["profileDriftIntact"] = intact
	}
	c.JSON(http.StatusOK, resp)
}

// handleSubmitCandidate runs one candidate through the pipeline and
// returns its AdmissionDecision.
func (h *APIHandler) handleSubmitCandidate(c *gin.Context) {
	var candidate models.PatchCandidate
	if err := c.ShouldBindJSON(&candidate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if candidate.ID == "" {
		candidate.ID = models.NewPatchCandidateID()
	}

	decision, err := h.pipeline.Submit(candidate)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	if h.wsHub != nil {
		if raw, jerr := canon.CanonicalJSON(decisionToJSONValue(decision)); jerr == nil {
			h.wsHub.Broadcast(raw)
		}
	}
	c.JSON(http.StatusOK, decision)
}

func decisionToJSONValue(d models.AdmissionDecision) canon.JSONValue {
	return map[string]canon.JSONValue{
		"candidateId":     d.CandidateID,
		"classification":  string(d.Classification),
		"reason":          string(d.Reason),
		"eebDelta":        d.EEBDelta,
		"buildMode":       string(d.BuildMode),
		"guidanceSignal":  string(d.GuidanceSignal),
		"hardFuseTrigger": string(d.HardFuseTrigger),
		"decisionHash":    d.DecisionHash,
	}
}

// handleTick advances the coverage estimator by the body's deltaSeconds
// and returns the freshly emitted coverage value.
func (h *APIHandler) handleTick(c *gin.Context) {
	var body struct {
		DeltaSeconds float64 `json:"deltaSeconds"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	coverage := h.pipeline.Tick(body.DeltaSeconds)
	c.JSON(http.StatusOK, gin.H{"coverage": coverage})
}

// handleCapacity returns the tracker's current CapacityMetrics snapshot.
func (h *APIHandler) handleCapacity(c *gin.Context) {
	c.JSON(http.StatusOK, h.pipeline.Tracker().Snapshot())
}

// handleProfile reports the bound configuration profile and whether it
// has drifted from its session-start binding.
func (h *APIHandler) handleProfile(c *gin.Context) {
	hash, err := h.profile.Hash()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"profile": h.profile.Name, "profileHash": hash}
	if h.drift != nil {
		resp["boundHash"] = h.drift.BoundHash()
	}
	c.JSON(http.StatusOK, resp)
}

// handleTraceStart, handleTraceStep, handleTraceEnd, and handleTraceFail
// forward one event of the matching type to the audit emitter. The
// emitter itself enforces the schema and the v7.1.0 terminal-commit rule;
// these handlers only translate HTTP <-> models.TraceEvent.
func (h *APIHandler) handleTraceStart(c *gin.Context) { h.emitTrace(c, h.emitter.EmitStart) }
func (h *APIHandler) handleTraceStep(c *gin.Context)  { h.emitTrace(c, h.emitter.EmitStep) }
func (h *APIHandler) handleTraceEnd(c *gin.Context)   { h.emitTrace(c, h.emitter.EmitEnd) }
func (h *APIHandler) handleTraceFail(c *gin.Context)  { h.emitTrace(c, h.emitter.EmitFail) }

func (h *APIHandler) emitTrace(c *gin.Context, emit func(models.TraceEvent) error) {
	if h.emitter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
		return
	}
	var event models.TraceEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event.TraceID = c.Param("traceId")
	if err := emit(event); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"traceId": event.TraceID, "accepted": true})
}

// handleProvenance returns the session's full provenance chain.
func (h *APIHandler) handleProvenance(c *gin.Context) {
	c.JSON(http.StatusOK, h.pipeline.Chain())
}

// handleStartVerify kicks off an async replay of the persisted
// provenance chain via internal/scanner.
func (h *APIHandler) handleStartVerify(c *gin.Context) {
	if h.scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provenance scanner not configured"})
		return
	}
	h.scanner.ReplayAndVerify(context.Background())
	c.JSON(http.StatusAccepted, gin.H{"started": true})
}

// handleVerifyProgress reports the running replay's progress.
func (h *APIHandler) handleVerifyProgress(c *gin.Context) {
	if h.scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provenance scanner not configured"})
		return
	}
	c.JSON(http.StatusOK, h.scanner.GetProgress())
}
