package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hospital/hms/internal/config"
)

const (
	vnpVersion    = "2.1.0"
	vnpDateLayout = "20060102150405"
	vnpExpireIn   = 15 * time.Minute
)

// VNPay response codes answered to the IPN.
const (
	VNPayRspOK             = "00"
	VNPayRspOrderNotFound  = "01"
	VNPayRspAlreadySettled = "02"
	VNPayRspInvalidAmount  = "04"
	VNPayRspBadChecksum    = "97"
	VNPayRspUnknown        = "99"
)

// vnpTZ is Vietnam time; VNPay timestamps carry no zone.
var vnpTZ = time.FixedZone("GMT+7", 7*60*60)

// VNPayOrder is what the hospital asks VNPay to collect.
type VNPayOrder struct {
	TxnRef    string
	Amount    int64
	OrderInfo string
	IPAddr    string
}

// VNPay builds signed payment URLs and checks callback signatures.
type VNPay struct {
	cfg config.VNPayConfig
	now func() time.Time
}

func NewVNPay(cfg config.VNPayConfig) *VNPay {
	return &VNPay{cfg: cfg, now: time.Now}
}

// canonical renders the vnp_ parameters sorted by key and url-encoded, which
// is both the signed string and the query string.
func canonical(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if strings.HasPrefix(k, "vnp_") && k != "vnp_SecureHash" && k != "vnp_SecureHashType" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(k)))
	}
	return b.String()
}

func (v *VNPay) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(v.cfg.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// PaymentURL returns the checkout URL for o. Amount is in VND; VNPay expects
// it multiplied by 100.
func (v *VNPay) PaymentURL(o VNPayOrder) string {
	now := v.now().In(vnpTZ)
	params := url.Values{}
	params.Set("vnp_Version", vnpVersion)
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", v.cfg.TmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(o.Amount*100, 10))
	params.Set("vnp_CurrCode", "VND")
	params.Set("vnp_TxnRef", o.TxnRef)
	params.Set("vnp_OrderInfo", o.OrderInfo)
	params.Set("vnp_OrderType", "other")
	params.Set("vnp_Locale", "vn")
	params.Set("vnp_ReturnUrl", v.cfg.ReturnURL)
	params.Set("vnp_IpAddr", o.IPAddr)
	params.Set("vnp_CreateDate", now.Format(vnpDateLayout))
	params.Set("vnp_ExpireDate", now.Add(vnpExpireIn).Format(vnpDateLayout))

	query := canonical(params)
	return v.cfg.PayURL + "?" + query + "&vnp_SecureHash=" + v.sign(query)
}

// Verify checks the vnp_SecureHash of a return or IPN query.
func (v *VNPay) Verify(params url.Values) bool {
	got, err := hex.DecodeString(params.Get("vnp_SecureHash"))
	if err != nil || len(got) == 0 {
		return false
	}
	want, _ := hex.DecodeString(v.sign(canonical(params)))
	return hmac.Equal(want, got)
}
