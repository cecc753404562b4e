// Package service реализует бизнес-логику магазина учебных материалов.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/academy-store/internal/metrics"
	"github.com/mmeshcher/academy-store/internal/model"
	"github.com/mmeshcher/academy-store/internal/payment"
	"github.com/mmeshcher/academy-store/internal/repository"
)

// UserStore описывает хранилище пользователей.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context, q string, page, perPage int) ([]model.User, int64, error)
	UpdateUserRole(ctx context.Context, id int64, role model.Role) error
}

// MaterialStore описывает каталог материалов.
type MaterialStore interface {
	CreateMaterial(ctx context.Context, m *model.Material) error
	GetMaterial(ctx context.Context, id string) (*model.Material, error)
	ListMaterials(ctx context.Context, f model.MaterialFilter) ([]model.Material, int64, error)
	IncrementDownloadCount(ctx context.Context, id string) error
}

// OrderStore описывает хранилище заказов. Методы, меняющие статус, условные:
// при несовпадении текущего статуса они возвращают repository.ErrNotMatched.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *model.Order) error
	ReplacePendingOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	FindPaidOrder(ctx context.Context, userID int64, materialID string, ft model.FileType) (*model.Order, error)
	MarkOrderPaid(ctx context.Context, id string, paymentKey *string, method string, paidAt time.Time) error
	CancelPaidOrder(ctx context.Context, id string, at time.Time) error
	RecordDownload(ctx context.Context, id string, ft model.FileType, at time.Time) error
	SetProcessStatus(ctx context.Context, id, status string) error
	ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, int64, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, key string) (*model.Product, error)
}

// SkillStore описывает хранилище рейтингов и выборки для рекомендаций.
type SkillStore interface {
	GetUserSkill(ctx context.Context, userID int64) (*model.UserSkill, error)
	ApplyFeedback(ctx context.Context, userID int64, materialID string, fn repository.FeedbackFunc) (*model.FeedbackRecord, error)
	RevertFeedback(ctx context.Context, userID int64, materialID string, fn repository.RevertFunc) error
	UpdateUserSkill(ctx context.Context, userID int64, fn func(skill *model.UserSkill) error) (*model.UserSkill, error)

	RecommendCandidates(ctx context.Context, userID int64, lo, hi, limit int) ([]model.Material, error)
	FallbackMaterials(ctx context.Context, userID int64, limit int) ([]model.Material, error)
	PopularMaterials(ctx context.Context, limit int) ([]model.Material, error)
	TeacherRecommendations(ctx context.Context, userID int64, since time.Time, limit int) ([]model.Material, error)
	SimilarUserMaterials(ctx context.Context, userID int64, lo, hi, limit int) ([]model.Material, error)
	AlsoBought(ctx context.Context, materialID string, excludeUserID int64, limit int) ([]model.Material, error)
}

// ConsultationStore описывает хранилище заявок и согласий на рассылку.
type ConsultationStore interface {
	CreateConsultation(ctx context.Context, c *model.Consultation) error
	GetConsultation(ctx context.Context, id string) (*model.Consultation, error)
	ListConsultations(ctx context.Context, f model.ConsultationFilter) ([]model.Consultation, int64, error)
	UpdateConsultation(ctx context.Context, id string, fn func(c *model.Consultation) error) (*model.Consultation, error)
	ConsentedPhones(ctx context.Context, phones []string) (map[string]bool, error)
	RemoveConsent(ctx context.Context, phones []string) (int64, error)
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	UserStore
	MaterialStore
	OrderStore
	SkillStore
	ConsultationStore
	Ping(ctx context.Context) error
	Close() error
}

// PaymentGateway описывает внешний платёжный шлюз.
type PaymentGateway interface {
	Confirm(ctx context.Context, in payment.ConfirmRequest) (*payment.Confirmation, error)
	Cancel(ctx context.Context, paymentKey, reason string) error
}

// Notifier принимает события для асинхронной доставки. Методы не блокируют вызывающего.
type Notifier interface {
	ConsultationCreated(c model.Consultation)
	ScheduleConfirmed(c model.Consultation)
	Broadcast(recipients []string, message string)
	RefundReconciliation(orderID, paymentKey string)
}

// Cache описывает кэш рекомендаций.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ObjectStorage выдаёт ссылки на файлы материалов.
type ObjectStorage interface {
	DownloadURL(ctx context.Context, key, filename string) (string, error)
}

// Actor описывает вызывающего пользователя; нулевой UserID означает анонимный запрос.
type Actor struct {
	UserID int64
	Role   model.Role
}

// Authenticated сообщает, выполнен ли вход.
func (a Actor) Authenticated() bool { return a.UserID != 0 }

// IsAdmin сообщает, является ли пользователь администратором.
func (a Actor) IsAdmin() bool { return a.Authenticated() && a.Role == model.RoleAdmin }

// Options задаёт внешние зависимости сервиса. Нулевые поля заменяются безопасными значениями.
type Options struct {
	Gateway        PaymentGateway
	Notifier       Notifier
	Cache          Cache
	CacheTTL       time.Duration
	Storage        ObjectStorage
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	ConsentVersion string
	Now            func() time.Time
}

// Service содержит бизнес-логику магазина.
type Service struct {
	repo           Repository
	gateway        PaymentGateway
	notifier       Notifier
	cache          Cache
	cacheTTL       time.Duration
	storage        ObjectStorage
	metrics        *metrics.Metrics
	logger         *zap.Logger
	consentVersion string
	now            func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и зависимостями.
func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:           repo,
		gateway:        opts.Gateway,
		notifier:       opts.Notifier,
		cache:          opts.Cache,
		cacheTTL:       opts.CacheTTL,
		storage:        opts.Storage,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		consentVersion: opts.ConsentVersion,
		now:            opts.Now,
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Registry("academy")
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = 5 * time.Minute
	}
	return s
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

type nopNotifier struct{}

func (nopNotifier) ConsultationCreated(model.Consultation) {}
func (nopNotifier) ScheduleConfirmed(model.Consultation) {}
func (nopNotifier) Broadcast([]string, string) {}
func (nopNotifier) RefundReconciliation(string, string) {}

func pageOrFirst(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
