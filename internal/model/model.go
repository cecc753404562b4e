// Package model содержит доменные сущности магазина учебных материалов.
package model

import "time"

// Role описывает роль пользователя.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid сообщает, входит ли роль в допустимый набор.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// User представляет зарегистрированного пользователя.
type User struct {
	ID                 int64      `json:"id"`
	Email              string     `json:"email"`
	Username           string     `json:"username"`
	PasswordHash       []byte     `json:"-"`
	Role               Role       `json:"role"`
	Phone              string     `json:"phone,omitempty"`
	MarketingConsentAt *time.Time `json:"marketingConsentAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// Audience описывает целевую аудиторию материала.
type Audience string

const (
	AudienceStudent Audience = "student"
	AudienceTeacher Audience = "teacher"
	AudienceAll     Audience = "all"
)

// FileType описывает категорию файла материала.
type FileType string

const (
	FileTypeProblem FileType = "problem"
	FileTypeEtc     FileType = "etc"
)

// Valid сообщает, является ли категория файла известной.
func (f FileType) Valid() bool {
	return f == FileTypeProblem || f == FileTypeEtc
}

// Material описывает учебный материал каталога.
type Material struct {
	MaterialID       string    `json:"materialId"`
	Type             string    `json:"type"`
	Subject          string    `json:"subject"`
	Topic            string    `json:"topic"`
	SchoolName       string    `json:"schoolName,omitempty"`
	Year             int       `json:"year,omitempty"`
	GradeNumber      int       `json:"gradeNumber,omitempty"`
	Difficulty       int       `json:"difficulty"`
	DifficultyRating int       `json:"difficultyRating"`
	TargetAudience   Audience  `json:"targetAudience"`
	IsFree           bool      `json:"isFree"`
	PriceProblem     int64     `json:"priceProblem"`
	PriceEtc         int64     `json:"priceEtc"`
	ProblemFile      string    `json:"-"`
	EtcFile          string    `json:"-"`
	DownloadCount    int64     `json:"downloadCount"`
	IsActive         bool      `json:"isActive"`
	CreatedAt        time.Time `json:"createdAt"`
}

// TopicKey возвращает ключ темы, по которой ведётся рейтинг.
func (m Material) TopicKey() string {
	if m.Topic != "" {
		return m.Topic
	}
	return m.Subject
}

// FileFor возвращает ключ объекта для указанной категории файла.
func (m Material) FileFor(ft FileType) string {
	if ft == FileTypeEtc {
		return m.EtcFile
	}
	return m.ProblemFile
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderKind различает заказы материалов и заказы повышения статуса в сообществе.
type OrderKind string

const (
	OrderKindMaterial OrderKind = "material"
	OrderKindUpgrade  OrderKind = "upgrade"
)

// Order описывает заказ и его платёжное состояние.
type Order struct {
	OrderID             string      `json:"orderId"`
	Kind                OrderKind   `json:"kind"`
	UserID              int64       `json:"userId,omitempty"`
	MaterialID          string      `json:"materialId,omitempty"`
	MaterialTitle       string      `json:"materialTitle,omitempty"`
	ProductKey          string      `json:"productKey,omitempty"`
	FileTypes           []FileType  `json:"fileTypes,omitempty"`
	Amount              int64       `json:"amount"`
	Status              OrderStatus `json:"status"`
	PaymentKey          *string     `json:"paymentKey,omitempty"`
	PaymentMethod       string      `json:"paymentMethod"`
	PaymentNote         string      `json:"paymentNote,omitempty"`
	PaidAt              *time.Time  `json:"paidAt,omitempty"`
	HasDownloaded       bool        `json:"hasDownloaded"`
	DownloadedAt        *time.Time  `json:"downloadedAt,omitempty"`
	DownloadedFileTypes []FileType  `json:"downloadedFileTypes,omitempty"`
	ApplicantName       string      `json:"applicantName,omitempty"`
	Phone               string      `json:"phone,omitempty"`
	CafeNickname        string      `json:"cafeNickname,omitempty"`
	ProcessStatus       string      `json:"processStatus,omitempty"`
	CreatedAt           time.Time   `json:"createdAt"`
	CancelledAt         *time.Time  `json:"cancelledAt,omitempty"`
}

// HasOwner сообщает, привязан ли заказ к аккаунту пользователя.
func (o Order) HasOwner() bool {
	return o.UserID != 0
}

// Covers сообщает, включает ли заказ указанную категорию файла.
func (o Order) Covers(ft FileType) bool {
	for _, t := range o.FileTypes {
		if t == ft {
			return true
		}
	}
	return false
}

// Product описывает позицию каталога повышения статуса.
type Product struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	ShortLabel string    `json:"shortLabel"`
	Amount     int64     `json:"amount"`
	SortOrder  int       `json:"sortOrder"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ConsultationType описывает категорию заявки на консультацию.
type ConsultationType string

const (
	ConsultationAdmission  ConsultationType = "admission"
	ConsultationConsulting ConsultationType = "consulting"
	ConsultationCoaching   ConsultationType = "coaching"
	ConsultationTeacher    ConsultationType = "teacher"
)

// Label возвращает человекочитаемое название категории.
func (t ConsultationType) Label() string {
	switch t {
	case ConsultationAdmission:
		return "입학 안내"
	case ConsultationConsulting:
		return "입시컨설팅"
	case ConsultationCoaching:
		return "온라인수학코칭"
	case ConsultationTeacher:
		return "수업설계컨설팅"
	}
	return string(t)
}

// Valid сообщает, является ли категория допустимой.
func (t ConsultationType) Valid() bool {
	switch t {
	case ConsultationAdmission, ConsultationConsulting, ConsultationCoaching, ConsultationTeacher:
		return true
	}
	return false
}

// ConsultationStatus описывает статус обработки заявки.
type ConsultationStatus string

const (
	ConsultationPending   ConsultationStatus = "pending"
	ConsultationContacted ConsultationStatus = "contacted"
	ConsultationScheduled ConsultationStatus = "scheduled"
	ConsultationCompleted ConsultationStatus = "completed"
	ConsultationCancelled ConsultationStatus = "cancelled"
)

// Valid сообщает, является ли статус допустимым.
func (s ConsultationStatus) Valid() bool {
	switch s {
	case ConsultationPending, ConsultationContacted, ConsultationScheduled, ConsultationCompleted, ConsultationCancelled:
		return true
	}
	return false
}

// Consultation описывает заявку на консультацию.
type Consultation struct {
	ConsultationID          string             `json:"consultationId"`
	Type                    ConsultationType   `json:"type"`
	Name                    string             `json:"name"`
	Phone                   string             `json:"phone"`
	MarketingConsent        bool               `json:"marketingConsent"`
	MarketingConsentAt      *time.Time         `json:"marketingConsentAt,omitempty"`
	MarketingConsentVersion string             `json:"marketingConsentVersion,omitempty"`
	SchoolGrade             string             `json:"schoolGrade"`
	CurrentScore            string             `json:"currentScore"`
	TargetUniv              string             `json:"targetUniv"`
	Direction               string             `json:"direction"`
	GradeLevel              string             `json:"gradeLevel"`
	Subject                 string             `json:"subject"`
	Message                 string             `json:"message"`
	Status                  ConsultationStatus `json:"status"`
	ScheduledDate           string             `json:"scheduledDate"`
	ScheduledTime           string             `json:"scheduledTime"`
	ScheduleChangeRequest   string             `json:"scheduleChangeRequest"`
	ScheduleConfirmedAt     *time.Time         `json:"scheduleConfirmedAt,omitempty"`
	AdminMemo               string             `json:"adminMemo"`
	CreatedAt               time.Time          `json:"createdAt"`
	UpdatedAt               time.Time          `json:"updatedAt"`
}

// Page описывает страницу результатов списка.
type Page[T any] struct {
	Items     []T   `json:"items"`
	Total     int64 `json:"total"`
	Page      int   `json:"page"`
	TotalPage int   `json:"totalPage"`
}

// NewPage собирает страницу результатов с вычислением числа страниц.
func NewPage[T any](items []T, total int64, page, perPage int) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPage := 0
	if perPage > 0 {
		totalPage = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return Page[T]{Items: items, Total: total, Page: page, TotalPage: totalPage}
}

// Difficulty описывает субъективную оценку сложности материала пользователем.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
)

// Valid сообщает, является ли оценка допустимой.
func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyNormal || d == DifficultyHard
}

// TopicSkill хранит рейтинг пользователя по одной теме.
type TopicSkill struct {
	Rating        int        `json:"rating"`
	Attempts      int        `json:"attempts"`
	Correct       int        `json:"correct"`
	LastAttempted *time.Time `json:"lastAttempted,omitempty"`
}

// UserSkill хранит агрегированный рейтинг пользователя и рейтинги по темам.
type UserSkill struct {
	UserID        int64                 `json:"userId"`
	OverallRating int                   `json:"overallRating"`
	TotalAttempts int                   `json:"totalAttempts"`
	TotalCorrect  int                   `json:"totalCorrect"`
	TopicSkills   map[string]TopicSkill `json:"topicSkills"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

// FeedbackRecord фиксирует одну оценку материала и фактически применённые изменения рейтингов.
type FeedbackRecord struct {
	UserID               int64      `json:"userId"`
	MaterialID           string     `json:"materialId"`
	Difficulty           Difficulty `json:"difficulty"`
	Topic                string     `json:"topic"`
	RatingBefore         int        `json:"ratingBefore"`
	RatingChange         int        `json:"ratingChange"`
	OverallChange        int        `json:"overallChange"`
	MaterialRatingBefore int        `json:"materialRatingBefore"`
	MaterialChange       int        `json:"materialChange"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// MaterialFilter задаёт условия выборки каталога.
type MaterialFilter struct {
	Subject   string
	Topic     string
	Audiences []Audience
	Query     string
	Sort      MaterialSort
	Page      int
	PerPage   int
}

// MaterialSort задаёт порядок выдачи каталога.
type MaterialSort string

const (
	SortLatest   MaterialSort = "latest"
	SortPopular  MaterialSort = "popular"
	SortDiffAsc  MaterialSort = "diff_asc"
	SortDiffDesc MaterialSort = "diff_desc"
)

// OrderFilter задаёт условия выборки заказов; нулевой UserID означает все заказы.
type OrderFilter struct {
	UserID  int64
	Kind    OrderKind
	Status  OrderStatus
	Page    int
	PerPage int
}

// ConsultationFilter задаёт условия выборки заявок.
type ConsultationFilter struct {
	Type    ConsultationType
	Status  ConsultationStatus
	Query   string
	Page    int
	PerPage int
}
