package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cr8z/taskvoice/assistant"
)

// maxAudioBytes caps a decoded speech-to-text upload.
const maxAudioBytes = 50 << 20

// commandRequest is the body of POST /api/command.
type commandRequest struct {
	Command        string `json:"command"`
	SessionID      string `json:"session_id,omitempty"`
	IsConfirmation bool   `json:"is_confirmation,omitempty"`
}

// commandResponse extends the assistant result with the synthesized
// speech as a data URI. Audio is omitted when synthesis failed; the
// client falls back to showing the text.
type commandResponse struct {
	assistant.Result
	Audio string `json:"audio,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		writeJSONError(w, http.StatusBadRequest, "command is required")
		return
	}

	res, err := s.assistant.HandleCommand(r.Context(), req.Command, req.SessionID, req.IsConfirmation)
	if err != nil {
		s.logger.Error("handle command", slog.Any("err", err))
		status := http.StatusInternalServerError
		if errors.Is(err, assistant.ErrSessionExpired) {
			status = http.StatusGone
		}
		// The apology is still spoken to the user.
		writeJSON(w, status, commandResponse{Result: *res, Audio: s.speak(r, res.Text)})
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{Result: *res, Audio: s.speak(r, res.Text)})
}

// speak synthesizes text into a data:audio/wav URI. A synthesis failure
// degrades to text-only and is only logged.
func (s *Server) speak(r *http.Request, text string) string {
	if s.synthesizer == nil || text == "" {
		return ""
	}
	audio, err := s.synthesizer.Speak(r.Context(), text)
	if err != nil {
		s.logger.Warn("speech synthesis failed, replying text-only", slog.Any("err", err))
		return ""
	}
	return "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(audio)
}

// speechRequest is the body of POST /api/speech-to-text. Audio is
// base64, optionally wrapped in a data URI.
type speechRequest struct {
	Audio  string `json:"audio"`
	Format string `json:"format,omitempty"`
}

func (s *Server) handleSpeechToText(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Audio == "" {
		writeJSONError(w, http.StatusBadRequest, "audio is required")
		return
	}

	payload := req.Audio
	if i := strings.Index(payload, "base64,"); strings.HasPrefix(payload, "data:") && i >= 0 {
		payload = payload[i+len("base64,"):]
	}
	audio, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid base64 audio: "+err.Error())
		return
	}
	if len(audio) > maxAudioBytes {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "audio exceeds 50MB limit")
		return
	}

	format := req.Format
	if format == "" {
		format = "webm"
	}
	text, err := s.transcriber.Transcribe(r.Context(), audio, format)
	if err != nil {
		s.logger.Error("transcribe", slog.Any("err", err))
		writeJSONError(w, http.StatusBadGateway, "transcription failed")
		return
	}
	if strings.TrimSpace(text) == "" {
		writeJSONError(w, http.StatusBadRequest, "no speech recognized")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.assistant.HandleSync(r.Context())
	if err != nil {
		s.logger.Error("sync", slog.Any("err", err))
		writeJSONError(w, http.StatusBadGateway, "sync failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"projects": report.ProjectCount,
		"tasks":    report.TaskCount,
	})
}

// settingsPayload is the wire shape of GET and POST /api/settings.
type settingsPayload struct {
	LLMModel string `json:"llm_model"`
}

func (s *Server) getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, settingsPayload{LLMModel: s.cfg.LLMModel()})
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.LLMModel) == "" {
		writeJSONError(w, http.StatusBadRequest, "llm_model is required")
		return
	}
	if err := s.cfg.SetLLMModel(req.LLMModel); err != nil {
		s.logger.Error("persist settings", slog.Any("err", err))
		writeJSONError(w, http.StatusInternalServerError, "failed to persist settings")
		return
	}
	writeJSON(w, http.StatusOK, settingsPayload{LLMModel: s.cfg.LLMModel()})
}
