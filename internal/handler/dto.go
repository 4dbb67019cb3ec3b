package handler

// dto.go holds the JSON shapes of the HTTP API.  Field names follow the
// realtime events (camelCase) so clients read seats and bookings the same
// way over both transports.

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/service"
)

type seatIDsRequest struct {
	SeatIDs []uint64 `json:"seatIds"`
}

type comboLine struct {
	Combo    uint64 `json:"combo"`
	ComboID  uint64 `json:"comboId"`
	Quantity int    `json:"quantity"`
}

type customerInfoBody struct {
	CustomerID string `json:"customerId,omitempty"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// createBookingRequest is the body of POST /v1/bookings.  voucherId may be
// a number (voucher id) or a string (voucher code).
type createBookingRequest struct {
	ShowtimeID   uint64            `json:"showtimeId"`
	SeatIDs      []uint64          `json:"seatIds"`
	Combos       []comboLine       `json:"combos"`
	VoucherID    json.RawMessage   `json:"voucherId"`
	VoucherCode  string            `json:"voucherCode"`
	EmployeeMode bool              `json:"employeeMode"`
	CustomerInfo *customerInfoBody `json:"customerInfo"`
}

func (r createBookingRequest) toService() (service.CreateBookingRequest, error) {
	out := service.CreateBookingRequest{
		ShowtimeID:   r.ShowtimeID,
		SeatIDs:      r.SeatIDs,
		EmployeeMode: r.EmployeeMode,
	}
	for _, l := range r.Combos {
		id := l.Combo
		if id == 0 {
			id = l.ComboID
		}
		out.Combos = append(out.Combos, model.ComboRequest{ComboID: id, Quantity: l.Quantity})
	}
	ref, err := voucherRef(r.VoucherID, r.VoucherCode)
	if err != nil {
		return out, err
	}
	out.Voucher = ref
	if ci := r.CustomerInfo; ci != nil {
		out.Customer = &model.CustomerInfo{
			CustomerID: strings.TrimSpace(ci.CustomerID),
			Name:       strings.TrimSpace(ci.Name),
			Email:      strings.TrimSpace(ci.Email),
			Phone:      strings.TrimSpace(ci.Phone),
		}
	}
	return out, nil
}

// voucherRef reads the voucher of a request.  A numeric voucherId (or a
// numeric string) is an id; any other string is a code.
func voucherRef(raw json.RawMessage, code string) (service.VoucherRef, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return service.VoucherRef{Code: strings.TrimSpace(code)}, nil
	}
	var id uint64
	if err := json.Unmarshal(raw, &id); err == nil {
		return service.VoucherRef{ID: &id}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return service.VoucherRef{}, model.Invalidf("voucherId must be a number or a code")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return service.VoucherRef{Code: strings.TrimSpace(code)}, nil
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return service.VoucherRef{ID: &n}, nil
	}
	return service.VoucherRef{Code: s}, nil
}

type settleRequest struct {
	PaymentStatus string `json:"paymentStatus"`
	TransactionID string `json:"transactionId"`
	PaymentMethod string `json:"paymentMethod"`
}

type verifyRequest struct {
	QRCode string `json:"qrCode"`
}

type checkInRequest struct {
	BookingID string `json:"bookingId"`
}

type showtimeResponse struct {
	ID          uint64     `json:"id"`
	MovieID     uint64     `json:"movieId"`
	MovieTitle  string     `json:"movieTitle"`
	TheaterID   uint64     `json:"theaterId"`
	TheaterName string     `json:"theaterName"`
	BranchID    uint64     `json:"branchId"`
	BranchName  string     `json:"branchName"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	BasePrice   int64      `json:"basePrice"`
}

func toShowtimeResponse(s *model.Showtime) showtimeResponse {
	return showtimeResponse{
		ID: s.ID, MovieID: s.MovieID, MovieTitle: s.MovieTitle,
		TheaterID: s.TheaterID, TheaterName: s.TheaterName,
		BranchID: s.BranchID, BranchName: s.BranchName,
		StartTime: s.StartTime, EndTime: s.EndTime, BasePrice: s.BasePrice,
	}
}

type seatResponse struct {
	SeatID        uint64     `json:"seatId"`
	Label         string     `json:"label"`
	Row           string     `json:"row"`
	Number        uint32     `json:"number"`
	Category      string     `json:"category"`
	Status        string     `json:"status"`
	HolderID      string     `json:"holderId,omitempty"`
	HoldExpiresAt *time.Time `json:"holdExpiresAt,omitempty"`
	Price         int64      `json:"price"`
}

func toSeatResponses(seats []model.SeatStatus) []seatResponse {
	out := make([]seatResponse, 0, len(seats))
	for _, s := range seats {
		out = append(out, seatResponse{
			SeatID: s.SeatID, Label: s.Label(), Row: s.RowLabel, Number: s.SeatNumber,
			Category: s.Category, Status: string(s.Status), HolderID: s.HolderID,
			HoldExpiresAt: s.HoldExpiresAt, Price: s.Price,
		})
	}
	return out
}

type bookedSeatResponse struct {
	SeatID   uint64 `json:"seatId"`
	Row      string `json:"row"`
	Number   uint32 `json:"number"`
	Category string `json:"category"`
	Price    int64  `json:"price"`
}

type bookedComboResponse struct {
	ComboID   uint64 `json:"comboId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

type bookingResponse struct {
	ID             string                `json:"id"`
	CustomerID     string                `json:"customerId,omitempty"`
	StaffID        string                `json:"staffId,omitempty"`
	CustomerInfo   *customerInfoBody     `json:"customerInfo,omitempty"`
	ShowtimeID     uint64                `json:"showtimeId"`
	Seats          []bookedSeatResponse  `json:"seats"`
	Combos         []bookedComboResponse `json:"combos"`
	VoucherID      *uint64               `json:"voucherId,omitempty"`
	VoucherCode    string                `json:"voucherCode,omitempty"`
	Subtotal       int64                 `json:"subtotal"`
	DiscountAmount int64                 `json:"discountAmount"`
	TotalAmount    int64                 `json:"totalAmount"`
	PaymentStatus  string                `json:"paymentStatus"`
	BookingStatus  string                `json:"bookingStatus"`
	PaymentMethod  string                `json:"paymentMethod,omitempty"`
	TransactionID  string                `json:"transactionId,omitempty"`
	QRCode         string                `json:"qrCode"`
	CheckedIn      bool                  `json:"checkedIn"`
	CheckedInAt    *time.Time            `json:"checkedInAt,omitempty"`
	HoldExpiresAt  time.Time             `json:"holdExpiresAt"`
	SettledAt      *time.Time            `json:"settledAt,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
}

func toBookingResponse(b *model.Booking) bookingResponse {
	out := bookingResponse{
		ID:             b.ID,
		CustomerID:     b.CustomerID,
		StaffID:        b.StaffID,
		ShowtimeID:     b.ShowtimeID,
		Seats:          make([]bookedSeatResponse, 0, len(b.Seats)),
		Combos:         make([]bookedComboResponse, 0, len(b.Combos)),
		VoucherID:      b.VoucherID,
		VoucherCode:    b.VoucherCode,
		Subtotal:       b.Subtotal,
		DiscountAmount: b.DiscountAmount,
		TotalAmount:    b.TotalAmount,
		PaymentStatus:  string(b.PaymentStatus),
		BookingStatus:  string(b.BookingStatus),
		PaymentMethod:  b.PaymentMethod,
		TransactionID:  b.TransactionID,
		QRCode:         b.QRToken,
		CheckedIn:      b.CheckedIn,
		CheckedInAt:    b.CheckedInAt,
		HoldExpiresAt:  b.HoldExpiresAt,
		SettledAt:      b.SettledAt,
		CreatedAt:      b.CreatedAt,
	}
	if ci := b.Customer; ci != nil {
		out.CustomerInfo = &customerInfoBody{CustomerID: ci.CustomerID, Name: ci.Name, Email: ci.Email, Phone: ci.Phone}
	}
	for _, s := range b.Seats {
		out.Seats = append(out.Seats, bookedSeatResponse{
			SeatID: s.SeatID, Row: s.RowLabel, Number: s.SeatNumber, Category: s.Category, Price: s.Price,
		})
	}
	for _, l := range b.Combos {
		out.Combos = append(out.Combos, bookedComboResponse{
			ComboID: l.ComboID, Name: l.Name, Quantity: l.Quantity, UnitPrice: l.UnitPrice,
		})
	}
	return out
}

type verificationResponse struct {
	Valid     bool              `json:"valid"`
	Reason    string            `json:"reason,omitempty"`
	ExpiresAt *time.Time        `json:"expiresAt,omitempty"`
	Booking   bookingResponse   `json:"booking"`
	Showtime  *showtimeResponse `json:"showtime,omitempty"`
}

func toVerificationResponse(v *service.Verification) verificationResponse {
	out := verificationResponse{Valid: v.Valid, Reason: v.Reason, Booking: toBookingResponse(v.Booking)}
	if v.Showtime != nil {
		st := toShowtimeResponse(v.Showtime)
		out.Showtime = &st
	}
	if !v.ExpiresAt.IsZero() {
		exp := v.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out
}
