package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"TraceLens/internal/config"
	"TraceLens/internal/engine"
	"TraceLens/internal/model"
)

// TokenizeRequest asks for the display-token view of a text.
type TokenizeRequest struct {
	Text             string `json:"text"`
	AddSpecialTokens *bool  `json:"add_special_tokens,omitempty"`
}

// TokenizeResponse carries display tokens aligned with their ids.
type TokenizeResponse struct {
	Tokens    []string `json:"tokens"`
	TokenIDs  []int    `json:"token_ids"`
	NumTokens int      `json:"num_tokens"`
}

// TokenIDsResponse carries just the id sequence of a text.
type TokenIDsResponse struct {
	TokenIDs []int `json:"token_ids"`
}

// GenerateRequest configures one recorded generation run. Zero-valued fields
// fall back to the configured defaults.
type GenerateRequest struct {
	Prompt            string   `json:"prompt"`
	MaxNewTokens      int      `json:"max_new_tokens,omitempty"`
	TopK              int      `json:"top_k,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	ApplyChatTemplate *bool    `json:"apply_chat_template,omitempty"`
}

// TrainingRequest configures one teacher-forced run.
type TrainingRequest struct {
	Text      string `json:"text"`
	Source    string `json:"source,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// LoadModelRequest switches the runner to another model.
type LoadModelRequest struct {
	Model string `json:"model"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Uptime      string `json:"uptime"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes the trace engine over HTTP.
type Server struct {
	addr    string
	manager *model.Manager
	cfg     config.Config

	httpServer *http.Server
	mu         sync.RWMutex
	startTime  time.Time
}

// New creates a server bound to the configured address.
func New(cfg config.Config, manager *model.Manager) *Server {
	return &Server{
		addr:      cfg.ServerAddr(),
		manager:   manager,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// Handler builds the route table. Split out from Start so tests can drive the
// mux without opening a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/model_info", s.handleModelInfo)
	mux.HandleFunc("/tokenize", s.handleTokenize)
	mux.HandleFunc("/token_ids", s.handleTokenIDs)
	mux.HandleFunc("/generate", s.handleGenerate)
	mux.HandleFunc("/process_training", s.handleTraining)
	mux.HandleFunc("/load_model", s.handleLoadModel)
	return mux
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}
	s.mu.Unlock()

	go func() {
		log.Printf("trace server starting on %s", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("trace server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown trace server: %w", err)
	}
	log.Printf("trace server on %s stopped", s.addr)
	s.httpServer = nil
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "TraceLens trace service",
		"endpoints": []string{
			"GET /health",
			"GET /model_info",
			"POST /tokenize",
			"POST /token_ids",
			"POST /generate",
			"POST /process_training",
			"POST /load_model",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		ModelLoaded: s.manager.Loaded(),
		Uptime:      time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	info, err := s.manager.Info()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTokenize(w http.ResponseWriter, r *http.Request) {
	var req TokenizeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	addSpecials := true
	if req.AddSpecialTokens != nil {
		addSpecials = *req.AddSpecialTokens
	}

	var resp TokenizeResponse
	err := s.manager.Use(func(sess *model.Session) error {
		ids, err := sess.Tokenizer.Encode(r.Context(), req.Text, addSpecials)
		if err != nil {
			return err
		}
		resp.TokenIDs = ids
		resp.NumTokens = len(ids)
		resp.Tokens = make([]string, 0, len(ids))
		for _, id := range ids {
			resp.Tokens = append(resp.Tokens, engine.DisplayToken(r.Context(), sess.Tokenizer, id))
		}
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTokenIDs(w http.ResponseWriter, r *http.Request) {
	var req TokenizeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	addSpecials := true
	if req.AddSpecialTokens != nil {
		addSpecials = *req.AddSpecialTokens
	}

	var resp TokenIDsResponse
	err := s.manager.Use(func(sess *model.Session) error {
		ids, err := sess.Tokenizer.Encode(r.Context(), req.Text, addSpecials)
		if err != nil {
			return err
		}
		resp.TokenIDs = ids
		return nil
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	params := engine.InferenceParams{
		Prompt:            req.Prompt,
		MaxNewTokens:      req.MaxNewTokens,
		TopK:              req.TopK,
		Temperature:       s.cfg.Generation.Temperature,
		ApplyChatTemplate: s.cfg.ApplyChatTemplate(),
	}
	if params.MaxNewTokens <= 0 {
		params.MaxNewTokens = s.cfg.Generation.MaxNewTokens
	}
	if params.TopK <= 0 {
		params.TopK = s.cfg.Generation.TopK
	}
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}
	if req.ApplyChatTemplate != nil {
		params.ApplyChatTemplate = *req.ApplyChatTemplate
	}

	var trace *engine.InferenceTrace
	err := s.manager.Use(func(sess *model.Session) error {
		var err error
		trace, err = engine.Infer(r.Context(), sess, params)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

func (s *Server) handleTraining(w http.ResponseWriter, r *http.Request) {
	var req TrainingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	params := engine.TrainingParams{
		Text:      req.Text,
		Source:    req.Source,
		MaxTokens: req.MaxTokens,
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = s.cfg.Training.MaxTokens
	}

	var trace *engine.TrainingTrace
	err := s.manager.Use(func(sess *model.Session) error {
		var err error
		trace, err = engine.TeacherForce(r.Context(), sess, params)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

func (s *Server) handleLoadModel(w http.ResponseWriter, r *http.Request) {
	var req LoadModelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}

	info, err := s.manager.Load(r.Context(), req.Model)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "loaded",
		"model_info": info,
	})
}

// decodeBody rejects non-POST methods and malformed JSON. Returns false when
// a response has already been written.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return false
	}
	return true
}

// writeEngineError maps a missing session to 503 and everything else to 500,
// preserving the error text (which names the failing step mid-generation).
func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrNotLoaded) {
		writeError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
