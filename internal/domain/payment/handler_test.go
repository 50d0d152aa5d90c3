package payment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hospital/hms/internal/platform/auth"
)

func newTestHandler() (*Handler, *Service, *mockRepo, *VNPay) {
	svc, repo, _, vnp := newTestService()
	return NewHandler(svc, zerolog.Nop()), svc, repo, vnp
}

func newRequest(method, target, body string, p *auth.Principal) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

var receptionist = &auth.Principal{UserID: 4, Roles: []string{auth.RoleReceptionist}}

func TestHandler_Create(t *testing.T) {
	h, _, _, _ := newTestHandler()
	c, rec := newRequest(http.MethodPost, "/", `{"patient_id":2,"amount":"350000","description":"Lab tests"}`, receptionist)
	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"status":"Pending"`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	c, _ = newRequest(http.MethodPost, "/", `{"patient_id":2,"amount":"0"}`, receptionist)
	if code := statusOf(t, h.Create(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_Get_PatientScope(t *testing.T) {
	h, svc, _, _ := newTestHandler()
	mustCreate(svc, 9, 1000)

	other := int64(8)
	c, _ := newRequest(http.MethodGet, "/", "", &auth.Principal{UserID: 30, Roles: []string{auth.RolePatient}, PatientID: &other})
	c.SetParamNames("id")
	c.SetParamValues("1")
	if code := statusOf(t, h.Get(c)); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}

	own := int64(9)
	c, rec := newRequest(http.MethodGet, "/", "", &auth.Principal{UserID: 31, Roles: []string{auth.RolePatient}, PatientID: &own})
	c.SetParamNames("id")
	c.SetParamValues("1")
	if err := h.Get(c); err != nil || rec.Code != http.StatusOK {
		t.Errorf("own payment: err=%v code=%d", err, rec.Code)
	}
}

func TestHandler_MoMoIPN(t *testing.T) {
	h, svc, repo, _ := newTestHandler()
	p := mustCreate(svc, 1, 150000)

	body, _ := json.Marshal(momoIPN(p, 0))
	c, rec := newRequest(http.MethodPost, "/", string(body), nil)
	if err := h.MoMoIPN(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if repo.get(p.ID).Status != StatusPaid {
		t.Error("payment should be Paid")
	}

	forged := momoIPN(p, 0)
	forged.Signature = "forged"
	body, _ = json.Marshal(forged)
	c, _ = newRequest(http.MethodPost, "/", string(body), nil)
	if code := statusOf(t, h.MoMoIPN(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_VNPayIPN(t *testing.T) {
	h, svc, _, vnp := newTestHandler()
	p := mustCreate(svc, 1, 150000)

	q := vnpayCallback(vnp, p, 150000, "00")
	c, rec := newRequest(http.MethodGet, "/?"+q.Encode(), "", nil)
	if err := h.VNPayIPN(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res VNPayIPNResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if rec.Code != http.StatusOK || res.RspCode != VNPayRspOK {
		t.Errorf("unexpected answer %d %+v", rec.Code, res)
	}
}

func TestHandler_StartVNPay_AfterMoMoCheckout(t *testing.T) {
	h, svc, _, _ := newTestHandler()
	p := mustCreate(svc, 1, 150000)

	c, rec := newRequest(http.MethodPost, "/", "", receptionist)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if err := h.StartMoMo(c); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("start momo: err=%v code=%d", err, rec.Code)
	}

	c, _ = newRequest(http.MethodPost, "/", "", receptionist)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if code := statusOf(t, h.StartVNPay(c)); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
	if got, _ := svc.Get(c.Request().Context(), p.ID); got.Method != MethodMoMo {
		t.Errorf("method changed to %s", got.Method)
	}
}

func TestHandler_StartMoMo_Disabled(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, repo, nil, nil)
	mustCreate(svc, 1, 1000)
	h := NewHandler(svc, zerolog.Nop())

	c, _ := newRequest(http.MethodPost, "/", "", receptionist)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if code := statusOf(t, h.StartMoMo(c)); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
}
