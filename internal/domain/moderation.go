package domain

import (
	"errors"
	"strings"
	"time"
)

// SystemActor es el issuer/reviewer usado por los sweeps automáticos.
const SystemActor int64 = 0

// ErrRecordNotFound lo devuelven los repos cuando no hay fila.
var ErrRecordNotFound = errors.New("record not found")

type PunishmentType string

const (
	VerbalWarn PunishmentType = "verbal_warn"
	Warn       PunishmentType = "warn"
	Kick       PunishmentType = "kick"
	Ban        PunishmentType = "ban"
	Timeout    PunishmentType = "timeout"
)

func (t PunishmentType) Valid() bool {
	switch t {
	case VerbalWarn, Warn, Kick, Ban, Timeout:
		return true
	}
	return false
}

// Label: "verbal_warn" -> "verbal warn"
func (t PunishmentType) Label() string {
	return strings.ReplaceAll(string(t), "_", " ")
}

func ParsePunishmentType(s string) (PunishmentType, bool) {
	t := PunishmentType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

type Punishment struct {
	ID          int64
	SubjectID   int64
	SubjectName *string
	Type        PunishmentType
	Reason      string
	IssuerID    int64
	IssuedAt    time.Time
	Active      bool
	Auto        bool // creado por el motor de escalado
	ExpiresAt   *time.Time
	RemovedBy   *int64
	RemovedAt   *time.Time
}

// NewPunishment es lo mínimo que necesita el ledger para crear un registro.
type NewPunishment struct {
	SubjectID   int64
	SubjectName *string
	Type        PunishmentType
	Reason      string
	IssuerID    int64
	Auto        bool
	ExpiresAt   *time.Time
}

type AppealStatus string

const (
	AppealPending  AppealStatus = "pending"
	AppealApproved AppealStatus = "approved"
	AppealDenied   AppealStatus = "denied"
)

type Decision string

const (
	Approve Decision = "approve"
	Deny    Decision = "deny"
)

func (d Decision) Valid() bool { return d == Approve || d == Deny }

type Appeal struct {
	ID           int64
	SubjectID    int64
	PunishmentID int64
	Text         string
	Status       AppealStatus
	ReviewerID   *int64
	ReviewedAt   *time.Time
	DecisionText *string
	CreatedAt    time.Time
}

type LoaStatus string

const (
	LoaPending  LoaStatus = "pending"
	LoaApproved LoaStatus = "approved"
	LoaDenied   LoaStatus = "denied"
	LoaExpired  LoaStatus = "expired"
)

// Loa: StartDate/EndDate son fechas (medianoche UTC).
type Loa struct {
	ID           int64
	SubjectID    int64
	StartDate    time.Time
	EndDate      time.Time
	Reason       string
	Status       LoaStatus
	ReviewerID   *int64
	ReviewedAt   *time.Time
	DecisionText *string
	CreatedAt    time.Time
}

func (l Loa) Days() int {
	return int(l.EndDate.Sub(l.StartDate).Hours() / 24)
}

// Overlaps usa intervalos cerrados [start, end].
func (l Loa) Overlaps(start, end time.Time) bool {
	return !(end.Before(l.StartDate) || start.After(l.EndDate))
}

type ActivityEntry struct {
	ID        int64
	StaffID   int64
	Action    string
	TargetID  *int64
	Details   string
	Timestamp time.Time
}

type LeaderboardRow struct {
	StaffID int64
	Total   int
}

type InactiveStaff struct {
	StaffID int64
	OnLoa   bool
}

type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

type Ticket struct {
	ID        int64
	GuildID   int64
	Number    int
	SubjectID int64
	ChannelID *int64
	Category  string
	Topic     string
	Status    TicketStatus
	CreatedAt time.Time
	ClosedAt  *time.Time
	ClosedBy  *int64
}

type TicketStats struct {
	Open       int
	Total      int
	ByCategory map[string]int
}

type StaffNote struct {
	ID        int64
	SubjectID int64
	Note      string
	AuthorID  int64
	CreatedAt time.Time
}

// AccountLink vincula un subject (Discord) con su cuenta externa (Roblox).
type AccountLink struct {
	SubjectID    int64
	ExternalID   int64
	ExternalName string
	DisplayName  string
	LinkedAt     time.Time
}

// Date trunca a medianoche UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
