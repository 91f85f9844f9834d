package server

import (
	"net/http"
	"strconv"
	"strings"

	"pianolearn/internal/admintoken"
	"pianolearn/internal/app"
	"pianolearn/pkg/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.Authenticate(req.Email, req.Password); err != nil {
		s.audit(r, "admin.login", "fail", "email", req.Email)
		s.writeAppError(w, r, err)
		return
	}
	token, err := s.tokens.Issue(req.Email)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.login", "success", "email", req.Email)
	writeSuccess(w, http.StatusOK, "login successful", map[string]any{
		"token": token,
		"user":  map[string]string{"email": strings.TrimSpace(req.Email), "role": "admin"},
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, _ admintoken.Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.GetDashboardStats(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{"stats": stats})
}

func (s *Server) handleAdminProducts(w http.ResponseWriter, r *http.Request, _ admintoken.Principal) {
	switch r.Method {
	case http.MethodGet:
		products, err := s.app.ListProducts()
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, "", map[string]any{
			"products": products,
			"count":    len(products),
		})
	case http.MethodPost:
		input, file, cleanup, err := s.parseProductForm(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		defer cleanup()
		product, createErr := s.app.CreateProduct(r.Context(), input, file)
		if createErr != nil {
			s.writeAppError(w, r, createErr)
			return
		}
		writeSuccess(w, http.StatusCreated, "product created", map[string]any{"product": product})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAdminProductByID(w http.ResponseWriter, r *http.Request, _ admintoken.Principal) {
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/products/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		input, file, cleanup, err := s.parseProductForm(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		defer cleanup()
		product, updateErr := s.app.UpdateProduct(r.Context(), id, input, file)
		if updateErr != nil {
			s.writeAppError(w, r, updateErr)
			return
		}
		writeSuccess(w, http.StatusOK, "product updated", map[string]any{"product": product})
	case http.MethodDelete:
		if err := s.app.DeleteProduct(r.Context(), id); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, "product deleted", nil)
	default:
		methodNotAllowed(w)
	}
}

// parseProductForm reads the multipart product form. The PDF arrives in the
// "pdf" field and is optional; metadata comes as plain form values. The
// returned cleanup closes the file handle and must always be deferred.
func (s *Server) parseProductForm(w http.ResponseWriter, r *http.Request) (app.ProductInput, *app.FileUpload, func(), error) {
	noop := func() {}
	if max := s.app.MaxUploadBytes(); max > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, max)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return app.ProductInput{}, nil, noop, errInvalidForm
	}
	input := app.ProductInput{
		Title:         r.FormValue("title"),
		Subtitle:      r.FormValue("subtitle"),
		Description:   r.FormValue("description"),
		Price:         parseFloat(r.FormValue("price")),
		OriginalPrice: parseFloat(r.FormValue("originalPrice")),
		Rating:        parseFloat(r.FormValue("rating")),
		Pages:         parseInt(r.FormValue("pages")),
		Badge:         r.FormValue("badge"),
		BadgeColor:    r.FormValue("badgeColor"),
		Image:         r.FormValue("image"),
		Status:        domain.ProductStatus(strings.TrimSpace(r.FormValue("status"))),
	}
	file, header, err := r.FormFile("pdf")
	if err == http.ErrMissingFile {
		return input, nil, noop, nil
	}
	if err != nil {
		return app.ProductInput{}, nil, noop, errInvalidForm
	}
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/pdf" {
		_ = file.Close()
		return app.ProductInput{}, nil, noop, errNotPDFUpload
	}
	upload := &app.FileUpload{
		Filename: header.Filename,
		Size:     header.Size,
		Reader:   file,
	}
	return input, upload, func() { _ = file.Close() }, nil
}

func (s *Server) handleAdminMessages(w http.ResponseWriter, r *http.Request, _ admintoken.Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	messages, err := s.app.ListContactMessages()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}

// /api/admin/messages/{id}/read
func (s *Server) handleAdminMessageByID(w http.ResponseWriter, r *http.Request, _ admintoken.Principal) {
	path := strings.TrimPrefix(r.URL.Path, "/api/admin/messages/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "read" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	msg, err := s.app.MarkMessageRead(parts[0])
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "message marked read", map[string]any{"message": msg})
}

func (s *Server) handleAdminPurchases(w http.ResponseWriter, r *http.Request, _ admintoken.Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	purchases, err := s.app.ListPurchases()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"purchases": purchases,
		"count":     len(purchases),
	})
}

func (s *Server) handleAdminSubscribers(w http.ResponseWriter, r *http.Request, _ admintoken.Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	subscribers, err := s.app.ListSubscribers()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"subscribers": subscribers,
		"count":       len(subscribers),
	})
}

func (s *Server) handleNewsletterStats(w http.ResponseWriter, r *http.Request, _ admintoken.Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.GetNewsletterStats()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{"stats": stats})
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}
