package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hospital/hms/internal/platform/db"
)

// MoMoGateway is the part of MoMoClient the service depends on.
type MoMoGateway interface {
	CreatePayment(ctx context.Context, o MoMoOrder) (string, error)
	VerifyIPN(n *MoMoIPN) bool
}

// VNPayGateway is the part of VNPay the service depends on.
type VNPayGateway interface {
	PaymentURL(o VNPayOrder) string
	Verify(params url.Values) bool
}

type Service struct {
	tx    db.Transactor
	repo  Repository
	momo  MoMoGateway
	vnpay VNPayGateway
	now   func() time.Time
}

// NewService wires the payment service. A nil gateway disables that method.
func NewService(tx db.Transactor, repo Repository, momo MoMoGateway, vnpay VNPayGateway) *Service {
	return &Service{tx: tx, repo: repo, momo: momo, vnpay: vnpay, now: time.Now}
}

func (s *Service) Create(ctx context.Context, p *Payment) error {
	if p.PatientID <= 0 {
		return invalid("patient_id is required")
	}
	if !p.Amount.IsPositive() {
		return invalid("amount must be positive")
	}
	if !p.Amount.Round(2).Equal(p.Amount) {
		return invalid("amount has more than 2 decimal places")
	}
	p.Method = strings.ToUpper(strings.TrimSpace(p.Method))
	switch p.Method {
	case "":
		p.Method = MethodCash
	case MethodCash, MethodMoMo, MethodVNPay:
	default:
		return invalid("method must be CASH, MOMO or VNPAY")
	}
	p.Description = strings.TrimSpace(p.Description)
	p.Status = StatusPending
	p.OrderRef = uuid.NewString()
	p.GatewayTxnID, p.PayURL, p.PaidAt = nil, nil, nil
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id int64) (*Payment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Payment, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, invalid("unknown status %q", f.Status)
	}
	return s.repo.List(ctx, f, limit, offset)
}

// PayCash settles a pending payment at the cashier desk.
func (s *Service) PayCash(ctx context.Context, id int64) (*Payment, error) {
	var out *Payment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != StatusPending {
			return ErrNotPending
		}
		if err := checkedOutElsewhere(p, MethodCash); err != nil {
			return err
		}
		if ok, err := s.repo.SetCheckout(ctx, id, MethodCash, nil); err != nil {
			return err
		} else if !ok {
			return s.checkoutRefused(ctx, id, MethodCash)
		}
		now := s.now()
		ok, err := s.repo.Settle(ctx, id, StatusPaid, nil, &now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotPending
		}
		p.Method, p.PayURL, p.Status, p.PaidAt = MethodCash, nil, StatusPaid, &now
		out = p
		return nil
	})
	return out, err
}

// wholeVND returns the amount as an integer, which both gateways require.
func wholeVND(p *Payment) (int64, error) {
	if !p.Amount.Equal(p.Amount.Truncate(0)) {
		return 0, invalid("gateway payments need a whole VND amount, got %s", p.Amount)
	}
	return p.Amount.IntPart(), nil
}

func orderInfo(p *Payment) string {
	if p.Description != "" {
		return p.Description
	}
	return "Hospital payment #" + strconv.FormatInt(p.ID, 10)
}

// checkedOutElsewhere refuses a method switch once another method has
// handed out a pay URL; both links would otherwise stay payable.
func checkedOutElsewhere(p *Payment, method string) error {
	if p.PayURL != nil && p.Method != method {
		return fmt.Errorf("%w: %s", ErrCheckoutStarted, p.Method)
	}
	return nil
}

// checkoutRefused explains why SetCheckout matched no row.
func (s *Service) checkoutRefused(ctx context.Context, id int64, method string) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != StatusPending {
		return ErrNotPending
	}
	if err := checkedOutElsewhere(p, method); err != nil {
		return err
	}
	return ErrNotPending
}

func (s *Service) pendingForCheckout(ctx context.Context, id int64, method string) (*Payment, int64, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if p.Status != StatusPending {
		return nil, 0, ErrNotPending
	}
	if err := checkedOutElsewhere(p, method); err != nil {
		return nil, 0, err
	}
	amount, err := wholeVND(p)
	if err != nil {
		return nil, 0, err
	}
	return p, amount, nil
}

func (s *Service) recordCheckout(ctx context.Context, p *Payment, method, payURL string) (*Payment, error) {
	ok, err := s.repo.SetCheckout(ctx, p.ID, method, &payURL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.checkoutRefused(ctx, p.ID, method)
	}
	p.Method, p.PayURL = method, &payURL
	return p, nil
}

// StartMoMo registers the payment with MoMo and stores the checkout URL.
func (s *Service) StartMoMo(ctx context.Context, id int64) (*Payment, error) {
	if s.momo == nil {
		return nil, ErrGatewayDisabled
	}
	p, amount, err := s.pendingForCheckout(ctx, id, MethodMoMo)
	if err != nil {
		return nil, err
	}
	payURL, err := s.momo.CreatePayment(ctx, MoMoOrder{
		OrderID:   p.OrderRef,
		RequestID: uuid.NewString(),
		Amount:    amount,
		OrderInfo: orderInfo(p),
	})
	if err != nil {
		return nil, err
	}
	return s.recordCheckout(ctx, p, MethodMoMo, payURL)
}

// StartVNPay builds the signed VNPay checkout URL for the payment.
func (s *Service) StartVNPay(ctx context.Context, id int64, clientIP string) (*Payment, error) {
	if s.vnpay == nil {
		return nil, ErrGatewayDisabled
	}
	p, amount, err := s.pendingForCheckout(ctx, id, MethodVNPay)
	if err != nil {
		return nil, err
	}
	payURL := s.vnpay.PaymentURL(VNPayOrder{
		TxnRef:    p.OrderRef,
		Amount:    amount,
		OrderInfo: orderInfo(p),
		IPAddr:    clientIP,
	})
	return s.recordCheckout(ctx, p, MethodVNPay, payURL)
}

// settle applies a verified gateway outcome. It returns ErrNotPending, along
// with the stored payment, when the order was already settled, and
// ErrWrongGateway when the order's checkout went through another method.
func (s *Service) settle(ctx context.Context, st Settlement) (*Payment, error) {
	p, err := s.repo.GetByOrderRef(ctx, st.OrderRef)
	if err != nil {
		return nil, err
	}
	if p.PayURL != nil && p.Method != st.Gateway {
		return nil, ErrWrongGateway
	}
	if !p.Amount.Equal(st.Amount) {
		return nil, ErrAmountMismatch
	}
	if p.Status != StatusPending {
		return p, ErrNotPending
	}

	status := StatusFailed
	var paidAt *time.Time
	if st.Success {
		status = StatusPaid
		now := s.now()
		paidAt = &now
	}
	var txnID *string
	if st.TxnID != "" {
		txnID = &st.TxnID
	}

	ok, err := s.repo.Settle(ctx, p.ID, status, txnID, paidAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.repo.GetByID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return current, ErrNotPending
	}
	p.Status, p.PaidAt = status, paidAt
	if txnID != nil {
		p.GatewayTxnID = txnID
	}
	return p, nil
}

// HandleMoMoIPN applies a MoMo notification. A notification for an order
// that is already settled is accepted without change.
func (s *Service) HandleMoMoIPN(ctx context.Context, n *MoMoIPN) error {
	if s.momo == nil {
		return ErrGatewayDisabled
	}
	if !s.momo.VerifyIPN(n) {
		return ErrInvalidSignature
	}
	_, err := s.settle(ctx, Settlement{
		Gateway:  MethodMoMo,
		OrderRef: n.OrderID,
		Amount:   decimal.NewFromInt(n.Amount),
		Success:  n.ResultCode == 0,
		TxnID:    strconv.FormatInt(n.TransID, 10),
	})
	if errors.Is(err, ErrNotPending) {
		return nil
	}
	return err
}

// VNPayIPNResult is the body VNPay expects in answer to an IPN.
type VNPayIPNResult struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

func vnpaySettlement(params url.Values) (Settlement, error) {
	raw, err := strconv.ParseInt(params.Get("vnp_Amount"), 10, 64)
	if err != nil {
		return Settlement{}, invalid("vnp_Amount %q is not a number", params.Get("vnp_Amount"))
	}
	status := params.Get("vnp_TransactionStatus")
	return Settlement{
		Gateway:  MethodVNPay,
		OrderRef: params.Get("vnp_TxnRef"),
		Amount:   decimal.New(raw, -2),
		Success:  params.Get("vnp_ResponseCode") == "00" && (status == "" || status == "00"),
		TxnID:    params.Get("vnp_TransactionNo"),
	}, nil
}

// HandleVNPayIPN applies a VNPay IPN and returns the answer VNPay expects.
// The error is non-nil only for failures worth logging.
func (s *Service) HandleVNPayIPN(ctx context.Context, params url.Values) (VNPayIPNResult, error) {
	if s.vnpay == nil {
		return VNPayIPNResult{VNPayRspUnknown, "Gateway not configured"}, ErrGatewayDisabled
	}
	if !s.vnpay.Verify(params) {
		return VNPayIPNResult{VNPayRspBadChecksum, "Invalid Checksum"}, nil
	}
	st, err := vnpaySettlement(params)
	if err != nil {
		return VNPayIPNResult{VNPayRspInvalidAmount, "Invalid amount"}, nil
	}

	_, err = s.settle(ctx, st)
	switch {
	case err == nil:
		return VNPayIPNResult{VNPayRspOK, "Confirm Success"}, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrWrongGateway):
		return VNPayIPNResult{VNPayRspOrderNotFound, "Order not found"}, nil
	case errors.Is(err, ErrAmountMismatch):
		return VNPayIPNResult{VNPayRspInvalidAmount, "Invalid amount"}, nil
	case errors.Is(err, ErrNotPending):
		return VNPayIPNResult{VNPayRspAlreadySettled, "Order already confirmed"}, nil
	}
	return VNPayIPNResult{VNPayRspUnknown, "Unknown error"}, fmt.Errorf("vnpay ipn: %w", err)
}

// HandleVNPayReturn applies the browser return from VNPay and reports the
// resulting payment.
func (s *Service) HandleVNPayReturn(ctx context.Context, params url.Values) (*Payment, error) {
	if s.vnpay == nil {
		return nil, ErrGatewayDisabled
	}
	if !s.vnpay.Verify(params) {
		return nil, ErrInvalidSignature
	}
	st, err := vnpaySettlement(params)
	if err != nil {
		return nil, err
	}
	p, err := s.settle(ctx, st)
	if errors.Is(err, ErrNotPending) {
		return p, nil
	}
	return p, err
}
