package valueobject

import (
	"fmt"
	"math"

	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

const DefaultCurrency = "USD"

// MaxAmount: верхняя граница суммы в центах. Percent умножает сумму на долю до 100,
// поэтому произведение должно помещаться в int64.
const MaxAmount int64 = 1_000_000_000_000_000

// Money хранит сумму в минимальных единицах валюты (центах), чтобы исключить ошибки округления.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func NewMoney(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "сумма не может быть отрицательной")
	}
	if amount > MaxAmount {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "сумма превышает допустимый максимум")
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	if !isCurrencyCode(currency) {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "код валюты должен состоять из трёх латинских букв")
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// isCurrencyCode проверяет код ISO 4217: три заглавные латинские буквы.
func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// NewMoneyFromMajor переводит сумму в основных единицах (100.50) в центы.
func NewMoneyFromMajor(amount float64, currency string) (Money, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "некорректная сумма")
	}
	if amount*100 > float64(MaxAmount) {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "сумма превышает допустимый максимум")
	}
	return NewMoney(int64(math.Round(amount*100)), currency)
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) IsPositive() bool {
	return m.Amount > 0
}

func (m Money) Add(other Money) Money {
	return Money{Amount: m.Amount + other.Amount, Currency: m.currency()}
}

func (m Money) Sub(other Money) Money {
	return Money{Amount: m.Amount - other.Amount, Currency: m.currency()}
}

// Percent возвращает долю суммы, округлённую до цента по правилу half-up.
func (m Money) Percent(percent int64) Money {
	return Money{Amount: (m.Amount*percent + 50) / 100, Currency: m.currency()}
}

func (m Money) Major() float64 {
	return float64(m.Amount) / 100
}

func (m Money) String() string {
	return fmt.Sprintf("%s %.2f", m.currency(), m.Major())
}

func (m Money) currency() string {
	if m.Currency == "" {
		return DefaultCurrency
	}
	return m.Currency
}

// PaymentSplit описывает распределение зарезервированной суммы при разрешении спора.
type PaymentSplit struct {
	BuyerRefund   Money `json:"buyer_refund"`
	SellerPayment Money `json:"seller_payment"`
	PlatformFee   Money `json:"platform_fee"`
}

func (s PaymentSplit) Total() Money {
	return s.BuyerRefund.Add(s.SellerPayment).Add(s.PlatformFee)
}

func (s PaymentSplit) validate() error {
	if s.BuyerRefund.Amount < 0 || s.SellerPayment.Amount < 0 || s.PlatformFee.Amount < 0 {
		return apperror.New(apperror.ErrCodeValidation, "распределение суммы содержит отрицательную долю")
	}
	return nil
}

// SplitPolicy задаёт комиссию платформы и долю частичного возврата.
// Комиссия всегда удерживается из доли продавца и никогда из полного возврата покупателю.
type SplitPolicy struct {
	FeePercent           int64
	PartialRefundPercent int64
}

// DefaultSplitPolicy: комиссия 5%, частичный возврат 50% (продавец получает 45%).
var DefaultSplitPolicy = SplitPolicy{FeePercent: 5, PartialRefundPercent: 50}

func NewSplitPolicy(feePercent, partialRefundPercent int64) (SplitPolicy, error) {
	if feePercent < 0 || partialRefundPercent < 0 {
		return SplitPolicy{}, apperror.New(apperror.ErrCodeValidation, "проценты не могут быть отрицательными")
	}
	if feePercent+partialRefundPercent > 100 {
		return SplitPolicy{}, apperror.New(apperror.ErrCodeValidation, "комиссия и частичный возврат в сумме превышают 100%")
	}
	return SplitPolicy{FeePercent: feePercent, PartialRefundPercent: partialRefundPercent}, nil
}

// Split считает распределение цены по решению администратора.
// Доля продавца вычисляется как остаток, поэтому сумма частей всегда равна цене.
func (p SplitPolicy) Split(price Money, decision Decision) (PaymentSplit, error) {
	if price.Amount < 0 || price.Amount > MaxAmount {
		return PaymentSplit{}, apperror.New(apperror.ErrCodeValidation, "сумма вне допустимого диапазона")
	}
	zero := Money{Currency: price.currency()}

	var split PaymentSplit
	switch decision {
	case DecisionRefundBuyer:
		split = PaymentSplit{BuyerRefund: price, SellerPayment: zero, PlatformFee: zero}
	case DecisionPaySeller:
		fee := price.Percent(p.FeePercent)
		split = PaymentSplit{BuyerRefund: zero, SellerPayment: price.Sub(fee), PlatformFee: fee}
	case DecisionPartialRefund:
		refund := price.Percent(p.PartialRefundPercent)
		fee := price.Percent(p.FeePercent)
		split = PaymentSplit{BuyerRefund: refund, SellerPayment: price.Sub(refund).Sub(fee), PlatformFee: fee}
	default:
		return PaymentSplit{}, apperror.ErrInvalidDecision
	}
	if err := split.validate(); err != nil {
		return PaymentSplit{}, err
	}
	return split, nil
}
