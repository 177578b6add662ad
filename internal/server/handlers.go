package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/54b3r/pdfchat-go/internal/engine"
	"github.com/54b3r/pdfchat-go/internal/logging"
	"github.com/54b3r/pdfchat-go/internal/session"
)

// multipartMemory is the in-memory threshold for parsed multipart forms;
// larger parts spill to temporary files.
const multipartMemory = 32 << 20

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// handleCreateSession handles POST /api/session/create.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.engine.CreateSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, createSessionResponse{SessionID: id})
}

// handleUpload handles POST /api/upload. The body is multipart/form-data with
// a session_id field and one or more "files" parts. Only .pdf files are
// accepted. Limits, all answered with 413:
//   - each file is capped at UploadMaxBytes;
//   - a request carries at most UploadMaxFiles files;
//   - the body is capped at UploadMaxFiles*UploadMaxBytes + multipartMemory.
//
// The server's ReadTimeout applies to the whole body, so large uploads on slow
// links need a longer PDFCHAT_READ_TIMEOUT.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	bodyCap := int64(s.cfg.UploadMaxFiles)*s.cfg.UploadMaxBytes + multipartMemory
	r.Body = http.MaxBytesReader(w, r.Body, bodyCap)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSON(w, r, http.StatusRequestEntityTooLarge, errorResponse{Error: "upload too large"})
			return
		}
		badRequest(w, r, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	id := strings.TrimSpace(r.FormValue("session_id"))
	if id == "" {
		badRequest(w, r, "session_id is required")
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		badRequest(w, r, "at least one file is required")
		return
	}
	if len(headers) > s.cfg.UploadMaxFiles {
		writeJSON(w, r, http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("at most %d files per upload", s.cfg.UploadMaxFiles),
		})
		return
	}

	files := make([]engine.File, 0, len(headers))
	for _, fh := range headers {
		name := filepath.Base(fh.Filename)
		if !strings.EqualFold(filepath.Ext(name), ".pdf") {
			badRequest(w, r, fmt.Sprintf("%s: only .pdf files are accepted", name))
			return
		}
		if fh.Size > s.cfg.UploadMaxBytes {
			writeJSON(w, r, http.StatusRequestEntityTooLarge, errorResponse{
				Error: fmt.Sprintf("%s exceeds the %d byte limit", name, s.cfg.UploadMaxBytes),
			})
			return
		}
		data, err := readPart(fh, s.cfg.UploadMaxBytes)
		if err != nil {
			log.Warn("failed to read upload part", slog.String("file", name), slog.Any("error", err))
			badRequest(w, r, fmt.Sprintf("%s: unreadable upload", name))
			return
		}
		files = append(files, engine.File{Name: name, Data: data})
	}

	n, err := s.engine.Upload(r.Context(), id, files)
	if err != nil {
		writeError(w, r, err)
		return
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	writeJSON(w, r, http.StatusOK, uploadResponse{SessionID: id, FilesUploaded: n, Documents: names})
}

// readPart reads one uploaded file, refusing anything larger than limit.
func readPart(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds %d bytes", limit)
	}
	return data, nil
}

// handleProcess handles POST /api/process.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		badRequest(w, r, "session_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	n, err := s.engine.Process(ctx, req.SessionID, engine.ProcessOptions{
		ChunkSize:    req.ChunkSize,
		ChunkOverlap: req.ChunkOverlap,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, processResponse{SessionID: req.SessionID, ChunksCreated: n})
}

// handleChat handles POST /api/chat. The answer is returned in one JSON body
// once generation completes.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		badRequest(w, r, "session_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	resp, err := s.engine.Chat(ctx, req.SessionID, engine.ChatRequest{
		Mode:         req.Type,
		Question:     req.Question,
		NumQuestions: req.NumQuestions,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, chatResponse{
		Type:     resp.Mode.String(),
		Question: req.Question,
		Answer:   resp.Answer,
	})
}

// handleSessionInfo handles GET /api/session/{id}.
func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.Info(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	docs := info.DocumentNames
	if docs == nil {
		docs = []string{}
	}
	writeJSON(w, r, http.StatusOK, sessionResponse{
		SessionID:      info.ID,
		State:          info.State.String(),
		Processed:      info.State == session.StateProcessed,
		Documents:      docs,
		Pending:        info.Pending,
		Chunks:         info.Chunks,
		CreatedAt:      info.CreatedAt,
		LastAccessedAt: info.LastAccessedAt,
	})
}

// handleDeleteSession handles DELETE /api/session/{id}.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHistory handles GET /api/session/{id}/history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, r, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	id := r.PathValue("id")
	turns, err := s.engine.History(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := historyResponse{SessionID: id, Turns: make([]turnResponse, len(turns))}
	for i, t := range turns {
		out.Turns[i] = turnResponse{Type: t.Mode, Question: t.Question, Answer: t.Answer, CreatedAt: t.CreatedAt}
	}
	writeJSON(w, r, http.StatusOK, out)
}

// decodeJSON decodes the request body into v, writing a 400 and returning
// false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		badRequest(w, r, "invalid request body")
		return false
	}
	return true
}
