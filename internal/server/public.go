package server

import (
	"io"
	"net/http"
	"strings"

	"pianolearn/internal/app"
	"pianolearn/pkg/domain"
)

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	products, err := s.app.ListCatalog()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"products": products,
		"count":    len(products),
	})
}

func (s *Server) handleProductByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/products/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	product, err := s.app.GetCatalogProduct(id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{"product": product})
}

type intentRequest struct {
	Email         string `json:"email"`
	ProductID     string `json:"productId"`
	PaymentMethod string `json:"paymentMethod"`
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req intentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.app.CreateIntent(r.Context(), app.IntentInput{
		Email:     req.Email,
		ProductID: req.ProductID,
		Method:    domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	fields := map[string]any{
		"purchaseId":    result.Purchase.ID,
		"downloadToken": result.Purchase.DownloadToken,
		"amount":        result.Purchase.Price,
	}
	if result.Payment.RazorpayOrderID != "" {
		fields["razorpayOrderId"] = result.Payment.RazorpayOrderID
		fields["razorpayKeyId"] = result.Payment.RazorpayKeyID
	}
	if result.Payment.UPIString != "" {
		fields["upiString"] = result.Payment.UPIString
		fields["upiQRCode"] = result.Payment.UPIQRCode
	}
	writeSuccess(w, http.StatusCreated, "purchase intent created", fields)
}

type confirmRequest struct {
	PurchaseID        string `json:"purchaseId"`
	RazorpayPaymentID string `json:"razorpayPaymentId"`
	RazorpaySignature string `json:"razorpaySignature"`
	UPITransactionID  string `json:"upiTransactionId"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req confirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.app.Confirm(r.Context(), app.ConfirmInput{
		PurchaseID:        req.PurchaseID,
		RazorpayPaymentID: req.RazorpayPaymentID,
		RazorpaySignature: req.RazorpaySignature,
		UPITransactionID:  req.UPITransactionID,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "payment confirmed", map[string]any{
		"downloadToken": result.Purchase.DownloadToken,
		"downloadUrl":   result.DownloadURL,
		"expiresAt":     result.Purchase.ExpiresAt,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	token := strings.TrimPrefix(r.URL.Path, "/api/purchase/download/")
	if token == "" || strings.Contains(token, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	result, err := s.app.Download(r.Context(), token)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	defer result.Content.Close()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	_, _ = io.Copy(w, result.Content)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	email := strings.TrimPrefix(r.URL.Path, "/api/purchase/history/")
	if email == "" || strings.Contains(email, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	purchases, err := s.app.History(email)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"purchases": purchases,
		"count":     len(purchases),
	})
}

type paymentEmailRequest struct {
	Email     string `json:"email"`
	ProductID string `json:"productId"`
}

func (s *Server) handleSendPaymentEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req paymentEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.SendPaymentEmail(r.Context(), req.Email, req.ProductID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "payment details sent", nil)
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	msg, err := s.app.SubmitContact(r.Context(), app.ContactInput{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "message received", map[string]any{"id": msg.ID})
}

type newsletterRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req newsletterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sub, err := s.app.Subscribe(r.Context(), req.Email)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "subscribed", map[string]any{"subscriber": sub})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req newsletterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sub, err := s.app.Unsubscribe(req.Email)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "unsubscribed", map[string]any{"subscriber": sub})
}
