package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dgallion1/cpextract/internal/document"
	"github.com/dgallion1/cpextract/internal/latex"
	"github.com/dgallion1/cpextract/internal/problem"
)

// readMarkdown reads a raw Markdown request body.
func (s *Server) readMarkdown(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "body exceeds max size", http.StatusRequestEntityTooLarge)
		} else {
			jsonError(w, "failed to read body", http.StatusBadRequest)
		}
		return "", false
	}
	if len(data) == 0 {
		jsonError(w, "markdown body is required", http.StatusBadRequest)
		return "", false
	}
	return string(data), true
}

// handleValidate reports LaTeX issues in the posted Markdown.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	text, ok := s.readMarkdown(w, r)
	if !ok {
		return
	}
	issues := latex.Validate(text)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"valid":  len(issues) == 0,
		"issues": issues,
	})
}

type splitProblem struct {
	problem.Problem
	FileName string `json:"file_name"`
}

// handleSplit splits posted Markdown into problems without writing files.
// Page markers from an aggregated document are ignored.
func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	text, ok := s.readMarkdown(w, r)
	if !ok {
		return
	}

	problems, err := s.splitter.Split(document.Body(text))
	if errors.Is(err, problem.ErrNoProblemsFound) {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	title := r.URL.Query().Get("title")
	names := problem.FileNames(problems)
	out := make([]splitProblem, len(problems))
	for i, p := range problems {
		out[i] = splitProblem{Problem: p, FileName: names[i]}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"problems": out,
		"index":    problem.Index(title, problem.Entries(problems, "problems")),
		"stats":    problem.ContestStats(problems),
	})
}
