package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"pianolearn/internal/admintoken"
	"pianolearn/internal/app"
	"pianolearn/pkg/domain"
	"pianolearn/pkg/mail"
	"pianolearn/pkg/notify"
	"pianolearn/pkg/payment"
	"pianolearn/pkg/storage"
	"pianolearn/pkg/store"
)

type captureQueue struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (q *captureQueue) Enqueue(_ context.Context, msg mail.Message) (notify.EmailJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return notify.EmailJob{ID: "job", To: msg.To, Status: notify.StatusQueued}, nil
}

type testEnv struct {
	srv    *httptest.Server
	store  *store.MemoryStore
	blobs  *storage.DiskStore
	emails *captureQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	blobs, err := storage.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("disk store: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2!"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	memStore := store.NewMemoryStore()
	emails := &captureQueue{}
	core, err := app.New(app.Config{
		Store:             memStore,
		Blobs:             blobs,
		Payments:          payment.New(payment.Config{UPIID: "piano@ybl"}),
		Emails:            emails,
		BaseURL:           "http://shop.test",
		AdminEmails:       "admin@pianolearn.com",
		AdminPasswordHash: string(hash),
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	tokens, err := admintoken.New(admintoken.Options{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	s, err := New(Config{App: core, Tokens: tokens, Static: blobs, CORSOrigin: "*"})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: memStore, blobs: blobs, emails: emails}
}

func (e *testEnv) seedProduct(t *testing.T, id string, status domain.ProductStatus) domain.Product {
	t.Helper()
	p := domain.Product{
		ID:        id,
		Title:     "Sight Reading Drills",
		Price:     500,
		Status:    status,
		FilePath:  "products/" + id + "/drills.pdf",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := e.store.SaveProduct(p); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := e.blobs.Save(context.Background(), p.FilePath, strings.NewReader("%PDF-bytes"), 10, "application/pdf"); err != nil {
		t.Fatalf("seed blob: %v", err)
	}
	return p
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp, decodeBody(t, resp)
}

func getJSON(t *testing.T, url string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return payload
}

func login(t *testing.T, e *testEnv) string {
	t.Helper()
	resp, body := postJSON(t, e.srv.URL+"/api/admin/login", map[string]string{
		"email": "admin@pianolearn.com", "password": "hunter2!",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d body = %v", resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("no token in %v", body)
	}
	return token
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	resp, body := getJSON(t, e.srv.URL+"/api/health", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
}

func TestPublicCatalogHidesInactive(t *testing.T) {
	e := newTestEnv(t)
	e.seedProduct(t, "p1", domain.ProductActive)
	e.seedProduct(t, "p2", domain.ProductInactive)

	resp, body := getJSON(t, e.srv.URL+"/api/products", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["count"].(float64) != 1 {
		t.Fatalf("count = %v", body["count"])
	}
	products, _ := body["products"].([]any)
	if len(products) != 1 {
		t.Fatalf("products = %v", body["products"])
	}
	if fields, _ := products[0].(map[string]any); fields["id"] != "p1" || fields["filePath"] != nil {
		t.Fatalf("public product = %v", fields)
	}

	resp, _ = getJSON(t, e.srv.URL+"/api/products/p2", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("inactive product status = %d", resp.StatusCode)
	}
}

func TestAdminLogin(t *testing.T) {
	e := newTestEnv(t)

	resp, body := postJSON(t, e.srv.URL+"/api/admin/login", map[string]string{
		"email": "admin@pianolearn.com", "password": "wrong",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", resp.StatusCode)
	}
	if body["success"] != false {
		t.Fatalf("envelope = %v", body)
	}

	token := login(t, e)
	resp, _ = getJSON(t, e.srv.URL+"/api/admin/dashboard", bearer(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard with token = %d", resp.StatusCode)
	}
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{
		"/api/admin/dashboard",
		"/api/admin/products",
		"/api/admin/messages",
		"/api/admin/purchases",
		"/api/admin/subscribers",
		"/api/newsletter/stats",
	} {
		resp, _ := getJSON(t, e.srv.URL+path, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s without token = %d", path, resp.StatusCode)
		}
		resp, _ = getJSON(t, e.srv.URL+path, bearer("garbage"))
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s with garbage token = %d", path, resp.StatusCode)
		}
	}
}

func TestPurchaseFlowOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	e.seedProduct(t, "p1", domain.ProductActive)

	resp, body := postJSON(t, e.srv.URL+"/api/purchase/create-intent", map[string]string{
		"email": "buyer@example.com", "productId": "p1", "paymentMethod": "upi",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("intent status = %d body = %v", resp.StatusCode, body)
	}
	purchaseID, _ := body["purchaseId"].(string)
	token, _ := body["downloadToken"].(string)
	if purchaseID == "" || token == "" {
		t.Fatalf("body = %v", body)
	}
	if upi, _ := body["upiString"].(string); !strings.Contains(upi, "am=500") {
		t.Fatalf("upiString = %v", body["upiString"])
	}

	// token not yet downloadable while pending
	dlResp, err := http.Get(e.srv.URL + "/api/purchase/download/" + token)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	dlResp.Body.Close()
	if dlResp.StatusCode != http.StatusNotFound {
		t.Fatalf("pending download status = %d", dlResp.StatusCode)
	}

	resp, body = postJSON(t, e.srv.URL+"/api/purchase/confirm", map[string]string{
		"purchaseId": purchaseID, "upiTransactionId": "txn-9",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm status = %d body = %v", resp.StatusCode, body)
	}
	if body["downloadUrl"] != "http://shop.test/api/purchase/download/"+token {
		t.Fatalf("downloadUrl = %v", body["downloadUrl"])
	}

	dlResp, err = http.Get(e.srv.URL + "/api/purchase/download/" + token)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", dlResp.StatusCode)
	}
	if ct := dlResp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type = %q", ct)
	}
	if cd := dlResp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("content disposition = %q", cd)
	}
	data, _ := io.ReadAll(dlResp.Body)
	if string(data) != "%PDF-bytes" {
		t.Fatalf("payload = %q", data)
	}
}

func TestDownloadExpiredReturns410(t *testing.T) {
	e := newTestEnv(t)
	e.seedProduct(t, "p1", domain.ProductActive)
	now := time.Now().UTC()
	if err := e.store.SavePurchase(domain.Purchase{
		ID:            "pur-1",
		Email:         "buyer@example.com",
		ProductID:     "p1",
		ProductTitle:  "Sight Reading Drills",
		PaymentMethod: domain.MethodUPI,
		PaymentStatus: domain.PaymentCompleted,
		DownloadToken: "old-token",
		ExpiresAt:     now.Add(-time.Minute),
		CreatedAt:     now.Add(-31 * 24 * time.Hour),
		UpdatedAt:     now,
	}); err != nil {
		t.Fatalf("seed purchase: %v", err)
	}

	resp, body := getJSON(t, e.srv.URL+"/api/purchase/download/old-token", nil)
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
	if body["success"] != false {
		t.Fatalf("envelope = %v", body)
	}
}

func TestContactValidation(t *testing.T) {
	e := newTestEnv(t)
	resp, body := postJSON(t, e.srv.URL+"/api/contact", map[string]string{
		"name": "A", "email": "not-an-email", "subject": "s", "message": "m",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest || body["success"] != false {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}

	resp, _ = postJSON(t, e.srv.URL+"/api/contact", map[string]string{
		"name": "A", "email": "a@b.com", "subject": "s", "message": "m",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("valid submission status = %d", resp.StatusCode)
	}
}

func TestNewsletterDuplicateSubscribe(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := postJSON(t, e.srv.URL+"/api/newsletter/subscribe", map[string]string{"email": "fan@example.com"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first subscribe = %d", resp.StatusCode)
	}
	resp, body := postJSON(t, e.srv.URL+"/api/newsletter/subscribe", map[string]string{"email": "fan@example.com"}, nil)
	if resp.StatusCode != http.StatusBadRequest || body["success"] != false {
		t.Fatalf("duplicate subscribe = %d body = %v", resp.StatusCode, body)
	}
}

func TestAdminProductUploadRejectsNonPDF(t *testing.T) {
	e := newTestEnv(t)
	token := login(t, e)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", "Broken Upload")
	_ = mw.WriteField("description", "A file that claims to be a PDF.")
	_ = mw.WriteField("price", "100")
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="pdf"; filename="junk.pdf"`)
	header.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	fmt.Fprint(part, "this is not a pdf at all")
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/admin/products", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusBadRequest || body["success"] != false {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
	products, _ := e.store.ListProducts()
	if len(products) != 0 {
		t.Fatalf("product persisted: %+v", products)
	}
}

func TestAdminMessageRead(t *testing.T) {
	e := newTestEnv(t)
	token := login(t, e)

	resp, body := postJSON(t, e.srv.URL+"/api/contact", map[string]string{
		"name": "Asha", "email": "asha@example.com", "subject": "Hi", "message": "Hello",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("contact = %d", resp.StatusCode)
	}
	msgID, _ := body["id"].(string)

	req, err := http.NewRequest(http.MethodPut, e.srv.URL+"/api/admin/messages/"+msgID+"/read", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	readResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	readBody := decodeBody(t, readResp)
	if readResp.StatusCode != http.StatusOK {
		t.Fatalf("mark read = %d body = %v", readResp.StatusCode, readBody)
	}
}

func TestStaticPreviewServing(t *testing.T) {
	e := newTestEnv(t)
	p := e.seedProduct(t, "p1", domain.ProductActive)

	resp, err := http.Get(e.srv.URL + "/uploads/" + p.FilePath)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "%PDF-bytes" {
		t.Fatalf("payload = %q", data)
	}
}
