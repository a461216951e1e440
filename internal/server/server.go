package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ryabkov82/gstr2b-merger/internal/config"
	"github.com/ryabkov82/gstr2b-merger/internal/inputset"
	"github.com/ryabkov82/gstr2b-merger/internal/merger"
	"github.com/ryabkov82/gstr2b-merger/internal/session"
)

const (
	OutputFileName = "merged_GSTR2B.xlsx"
	XLSXMediaType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type handler struct {
	store          *session.Store
	sheets         []config.SheetConfig
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewServer собирает роутер: сессии, загрузка файлов, перестановка и объединение.
func NewServer(cfg *config.Config, store *session.Store, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{
		store:          store,
		sheets:         cfg.Sheets,
		maxUploadBytes: cfg.Server.MaxUploadBytes,
		logger:         logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/sessions", h.createSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.listFiles)
		r.Delete("/", h.deleteSession)
		r.Post("/files", h.addFiles)
		r.Delete("/files", h.mutate((*inputset.Set).Clear))
		r.Delete("/files/last", h.mutate((*inputset.Set).RemoveLast))
		r.Post("/rotate-forward", h.mutate((*inputset.Set).RotateForward))
		r.Post("/rotate-backward", h.mutate((*inputset.Set).RotateBackward))
		r.Post("/merge", h.merge)
	})

	return r
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("запрос",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

type filesResponse struct {
	ID    string   `json:"id"`
	Files []string `json:"files"`
	Added []string `json:"added,omitempty"`
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	s := h.store.Create()
	h.logger.Info("создана сессия", zap.String("session", s.ID))
	writeJSON(w, http.StatusCreated, filesResponse{ID: s.ID, Files: []string{}})
}

// withSession находит сессию из URL и выполняет fn под её блокировкой.
func (h *handler) withSession(w http.ResponseWriter, r *http.Request, fn func(s *session.Session, files *inputset.Set) error) {
	s, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.Do(func(files *inputset.Set) error { return fn(s, files) }); err != nil {
		h.writeMergeError(w, err)
	}
}

func (h *handler) listFiles(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session, files *inputset.Set) error {
		writeJSON(w, http.StatusOK, filesResponse{ID: s.ID, Files: files.Names()})
		return nil
	})
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) addFiles(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("ошибка разбора формы: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "не передано ни одного файла в поле files")
		return
	}

	// Читаем все файлы до изменения набора, чтобы ошибка не оставила его наполовину обновлённым
	type upload struct {
		name    string
		content []byte
	}
	uploads := make([]upload, 0, len(headers))
	for _, fh := range headers {
		name := filepath.Base(fh.Filename)
		if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("файл %s: поддерживается только формат .xlsx", name))
			return
		}
		content, err := readUpload(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("ошибка чтения файла %s: %v", name, err))
			return
		}
		uploads = append(uploads, upload{name: name, content: content})
	}

	h.withSession(w, r, func(s *session.Session, files *inputset.Set) error {
		added := []string{}
		for _, u := range uploads {
			if files.Add(u.name, u.content) {
				added = append(added, u.name)
			}
		}
		h.logger.Info("файлы добавлены", zap.String("session", s.ID), zap.Strings("added", added))
		writeJSON(w, http.StatusOK, filesResponse{ID: s.ID, Files: files.Names(), Added: added})
		return nil
	})
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// mutate применяет команду к набору файлов сессии и возвращает новый порядок.
func (h *handler) mutate(op func(*inputset.Set)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.withSession(w, r, func(s *session.Session, files *inputset.Set) error {
			op(files)
			writeJSON(w, http.StatusOK, filesResponse{ID: s.ID, Files: files.Names()})
			return nil
		})
	}
}

func (h *handler) merge(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session, files *inputset.Set) error {
		m := merger.NewWorkbookMerger(h.logger.With(zap.String("session", s.ID)))
		res, err := m.Merge(h.sheets, files.Snapshot())
		if err != nil {
			return err
		}

		w.Header().Set("Content-Type", XLSXMediaType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", OutputFileName))
		w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(res.Data); err != nil {
			h.logger.Warn("ошибка отправки результата", zap.String("session", s.ID), zap.Error(err))
		}
		return nil
	})
}

// writeMergeError переводит ошибки объединения в HTTP-статусы.
func (h *handler) writeMergeError(w http.ResponseWriter, err error) {
	var readErr *merger.ReadError
	switch {
	case errors.Is(err, merger.ErrNoInputFiles):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &readErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), File: readErr.Name})
	default:
		h.logger.Error("ошибка объединения", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
	File  string `json:"file,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
