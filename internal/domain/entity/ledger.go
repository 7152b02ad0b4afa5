package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

// PlatformAccountID: получатель комиссии платформы.
var PlatformAccountID = uuid.Nil

type ReservationStatus string

const (
	ReservationStatusReserved ReservationStatus = "reserved"
	ReservationStatusSettled  ReservationStatus = "settled"
)

type PartKind string

const (
	PartKindRefund PartKind = "refund"
	PartKindPayout PartKind = "payout"
	PartKindFee    PartKind = "fee"
)

// SettlementPart: одна выплата из резерва.
type SettlementPart struct {
	To     uuid.UUID         `json:"to"`
	Kind   PartKind          `json:"kind"`
	Amount valueobject.Money `json:"amount"`
}

// Reservation: удерживаемые платформой средства одной сделки.
// Распределяется ровно один раз.
type Reservation struct {
	SubjectKind valueobject.SubjectKind
	SubjectID   uuid.UUID
	PayerID     uuid.UUID
	Amount      valueobject.Money
	Status      ReservationStatus
	Reason      string
	Parts       []SettlementPart
	ReservedAt  time.Time
	SettledAt   *time.Time
	Version     int64
}

func NewReservation(kind valueobject.SubjectKind, subjectID, payerID uuid.UUID, amount valueobject.Money, now time.Time) (*Reservation, error) {
	if !kind.IsValid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный тип сделки")
	}
	if !amount.IsPositive() {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма резерва должна быть больше нуля")
	}
	return &Reservation{
		SubjectKind: kind,
		SubjectID:   subjectID,
		PayerID:     payerID,
		Amount:      amount,
		Status:      ReservationStatusReserved,
		ReservedAt:  now,
	}, nil
}

func (r *Reservation) IsSettled() bool {
	return r.Status == ReservationStatusSettled
}

// Settle распределяет резерв. Сумма частей не может превышать резерв;
// нераспределённый остаток возвращается плательщику, чтобы средства не терялись.
func (r *Reservation) Settle(parts []SettlementPart, reason string, now time.Time) error {
	if r.IsSettled() {
		return apperror.ErrAlreadySettled
	}

	var total int64
	result := make([]SettlementPart, 0, len(parts)+1)
	for _, p := range parts {
		if p.Amount.Amount < 0 {
			return apperror.New(apperror.ErrCodeValidation, "сумма выплаты не может быть отрицательной")
		}
		if p.Amount.IsZero() {
			continue
		}
		total += p.Amount.Amount
		result = append(result, p)
	}
	if total > r.Amount.Amount {
		return apperror.New(apperror.ErrCodeValidation, "сумма выплат превышает зарезервированную сумму")
	}
	if rest := r.Amount.Amount - total; rest > 0 {
		result = append(result, SettlementPart{
			To:     r.PayerID,
			Kind:   PartKindRefund,
			Amount: valueobject.Money{Amount: rest, Currency: r.Amount.Currency},
		})
	}

	r.Parts = result
	r.Reason = reason
	r.Status = ReservationStatusSettled
	r.SettledAt = &now
	return nil
}

// SettledTotal: сумма всех выплат, для проверки инварианта «выплачено не больше резерва».
func (r *Reservation) SettledTotal() valueobject.Money {
	total := valueobject.Money{Currency: r.Amount.Currency}
	for _, p := range r.Parts {
		total = total.Add(p.Amount)
	}
	return total
}

// PartsForSplit раскладывает решение по спору на выплаты сторонам.
func PartsForSplit(split valueobject.PaymentSplit, payerID, payeeID uuid.UUID) []SettlementPart {
	return []SettlementPart{
		{To: payerID, Kind: PartKindRefund, Amount: split.BuyerRefund},
		{To: payeeID, Kind: PartKindPayout, Amount: split.SellerPayment},
		{To: PlatformAccountID, Kind: PartKindFee, Amount: split.PlatformFee},
	}
}

// FullPayout: вся сумма исполнителю без комиссии (ручное и автоматическое подтверждение).
func FullPayout(payeeID uuid.UUID, amount valueobject.Money) []SettlementPart {
	return []SettlementPart{{To: payeeID, Kind: PartKindPayout, Amount: amount}}
}

// FullRefund: вся сумма обратно плательщику.
func FullRefund(payerID uuid.UUID, amount valueobject.Money) []SettlementPart {
	return []SettlementPart{{To: payerID, Kind: PartKindRefund, Amount: amount}}
}
