package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/backend-food/internal/money"
)

var (
	// ErrInvalidSignature is returned when a callback hash does not verify.
	ErrInvalidSignature = errors.New("invalid payment signature")
	// ErrUnknownTransaction is returned when a callback names no known payment.
	ErrUnknownTransaction = errors.New("unknown payment transaction")
	// ErrAmountMismatch is returned when the callback amount differs from the stored one.
	ErrAmountMismatch = errors.New("payment amount mismatch")
)

const (
	vnpVersion       = "2.1.0"
	vnpCommand       = "pay"
	vnpDateLayout    = "20060102150405"
	vnpAmountScale   = 2
	vnpSecureHash    = "vnp_SecureHash"
	vnpSecureHashTyp = "vnp_SecureHashType"
	vnpSuccessCode   = "00"
)

var vietnamZone = sync.OnceValue(func() *time.Location {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		return time.FixedZone("ICT", 7*60*60)
	}
	return loc
})

// VNPay signs redirects to and verifies callbacks from the VNPay 2.1.0 gateway.
type VNPay struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
	Locale     string
	OrderType  string
	CurrCode   string
}

func (v VNPay) Name() string { return ProviderVNPay }

// BuildRedirect returns the signed payment URL for req.
func (v VNPay) BuildRedirect(req RedirectRequest) (string, error) {
	if strings.TrimSpace(v.HashSecret) == "" || strings.TrimSpace(v.TmnCode) == "" {
		return "", errors.New("vnpay: merchant credentials not configured")
	}
	if strings.TrimSpace(req.TransactionRef) == "" {
		return "", errors.New("vnpay: transaction reference is required")
	}
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("vnpay: amount must be positive, got %s", req.Amount)
	}
	created := req.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	expires := req.ExpiresAt
	if expires.IsZero() {
		expires = created.Add(15 * time.Minute)
	}
	zone := vietnamZone()

	params := url.Values{}
	params.Set("vnp_Version", vnpVersion)
	params.Set("vnp_Command", vnpCommand)
	params.Set("vnp_TmnCode", v.TmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(req.Amount.MinorUnits(vnpAmountScale), 10))
	params.Set("vnp_CurrCode", valueOr(v.CurrCode, "VND"))
	params.Set("vnp_Locale", valueOr(v.Locale, "vn"))
	params.Set("vnp_TxnRef", req.TransactionRef)
	params.Set("vnp_OrderInfo", req.OrderInfo)
	params.Set("vnp_OrderType", valueOr(v.OrderType, "other"))
	params.Set("vnp_ReturnUrl", v.ReturnURL)
	params.Set("vnp_IpAddr", valueOr(req.ClientIP, "127.0.0.1"))
	params.Set("vnp_CreateDate", created.In(zone).Format(vnpDateLayout))
	params.Set("vnp_ExpireDate", expires.In(zone).Format(vnpDateLayout))

	canonical := Canonical(params)
	query := canonical + "&" + vnpSecureHash + "=" + v.sign(canonical)
	base := strings.TrimRight(v.PayURL, "?")
	return base + "?" + query, nil
}

// VerifyCallback checks the secure hash of a return or IPN query and
// normalises its fields. Only vnp_ fields take part in the hash.
func (v VNPay) VerifyCallback(params url.Values) (CallbackResult, error) {
	provided := strings.TrimSpace(params.Get(vnpSecureHash))
	if provided == "" || strings.TrimSpace(v.HashSecret) == "" {
		return CallbackResult{}, ErrInvalidSignature
	}
	got, err := hex.DecodeString(provided)
	if err != nil {
		return CallbackResult{}, ErrInvalidSignature
	}
	want := v.mac(Canonical(params))
	if !hmac.Equal(got, want) {
		return CallbackResult{}, ErrInvalidSignature
	}

	minor, err := strconv.ParseInt(params.Get("vnp_Amount"), 10, 64)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("%w: unreadable amount %q", ErrAmountMismatch, params.Get("vnp_Amount"))
	}
	fields := make(map[string]string, len(params))
	for k := range params {
		if k == vnpSecureHash || k == vnpSecureHashTyp {
			continue
		}
		fields[k] = params.Get(k)
	}
	res := CallbackResult{
		TransactionRef:       params.Get("vnp_TxnRef"),
		Amount:               money.FromMinor(minor, vnpAmountScale),
		ResponseCode:         params.Get("vnp_ResponseCode"),
		TransactionStatus:    params.Get("vnp_TransactionStatus"),
		GatewayTransactionNo: params.Get("vnp_TransactionNo"),
		BankCode:             params.Get("vnp_BankCode"),
		PayDate:              params.Get("vnp_PayDate"),
		Fields:               fields,
	}
	res.Success = res.ResponseCode == vnpSuccessCode && res.TransactionStatus == vnpSuccessCode
	return res, nil
}

// Sign returns the lowercase hex HMAC-SHA512 of the canonical form of params.
func (v VNPay) Sign(params url.Values) string {
	return v.sign(Canonical(params))
}

func (v VNPay) sign(canonical string) string {
	return hex.EncodeToString(v.mac(canonical))
}

func (v VNPay) mac(canonical string) []byte {
	h := hmac.New(sha512.New, []byte(v.HashSecret))
	h.Write([]byte(canonical))
	return h.Sum(nil)
}

// Canonical renders the vnp_ fields of params sorted by key as k=v pairs
// joined by '&', with query-escaped values. Empty values and the hash
// fields are skipped.
func Canonical(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if !strings.HasPrefix(k, "vnp_") || k == vnpSecureHash || k == vnpSecureHashTyp {
			continue
		}
		if params.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(k)))
	}
	return b.String()
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
