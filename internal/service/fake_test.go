package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmeshcher/academy-store/internal/model"
	"github.com/mmeshcher/academy-store/internal/payment"
	"github.com/mmeshcher/academy-store/internal/rating"
	"github.com/mmeshcher/academy-store/internal/repository"
)

// memRepo хранит данные в памяти и соблюдает условные обновления и уникальность оценок.
type memRepo struct {
	mu sync.Mutex

	nextUserID    int64
	users         map[int64]*model.User
	materials     map[string]*model.Material
	orders        map[string]*model.Order
	products      map[string]*model.Product
	skills        map[int64]*model.UserSkill
	feedback      map[string]model.FeedbackRecord
	consultations map[string]*model.Consultation

	// beforeCancel вызывается перед условной отменой заказа без удержания блокировки.
	beforeCancel func(id string)
	// cancelAckLost применяет отмену, но возвращает ErrNotMatched, как повтор запроса после обрыва соединения.
	cancelAckLost bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:         map[int64]*model.User{},
		materials:     map[string]*model.Material{},
		orders:        map[string]*model.Order{},
		products:      map[string]*model.Product{},
		skills:        map[int64]*model.UserSkill{},
		feedback:      map[string]model.FeedbackRecord{},
		consultations: map[string]*model.Consultation{},
	}
}

func feedbackKey(userID int64, materialID string) string {
	return fmt.Sprintf("%d/%s", userID, materialID)
}

func cloneOrder(o *model.Order) *model.Order {
	c := *o
	c.FileTypes = append([]model.FileType(nil), o.FileTypes...)
	c.DownloadedFileTypes = append([]model.FileType(nil), o.DownloadedFileTypes...)
	return &c
}

func cloneSkill(s *model.UserSkill) *model.UserSkill {
	c := *s
	c.TopicSkills = make(map[string]model.TopicSkill, len(s.TopicSkills))
	for k, v := range s.TopicSkills {
		c.TopicSkills[k] = v
	}
	return &c
}

func (r *memRepo) addUser(role model.Role) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextUserID++
	r.users[r.nextUserID] = &model.User{
		ID:       r.nextUserID,
		Email:    fmt.Sprintf("user%d@example.com", r.nextUserID),
		Username: fmt.Sprintf("user%d", r.nextUserID),
		Role:     role,
	}
	return r.nextUserID
}

func (r *memRepo) addMaterial(m model.Material) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.DifficultyRating == 0 {
		m.DifficultyRating = rating.Default
	}
	if m.TargetAudience == "" {
		m.TargetAudience = model.AudienceStudent
	}
	m.IsActive = true
	r.materials[m.MaterialID] = &m
}

func (r *memRepo) putOrder(o model.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.OrderID] = &o
}

func (r *memRepo) order(id string) model.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *cloneOrder(r.orders[id])
}

func (r *memRepo) skill(userID int64) *model.UserSkill {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.skills[userID]
	if !ok {
		return nil
	}
	return cloneSkill(s)
}

func (r *memRepo) Ping(context.Context) error { return nil }
func (r *memRepo) Close() error               { return nil }

func (r *memRepo) CreateUser(_ context.Context, u *model.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return 0, repository.ErrUserExists
		}
	}
	r.nextUserID++
	c := *u
	c.ID = r.nextUserID
	r.users[c.ID] = &c
	return c.ID, nil
}

func (r *memRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *memRepo) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (r *memRepo) ListUsers(_ context.Context, q string, page, perPage int) ([]model.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.User
	for _, u := range r.users {
		if q == "" || strings.Contains(u.Email, q) || strings.Contains(u.Username, q) {
			res = append(res, *u)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return paginate(res, page, perPage), int64(len(res)), nil
}

func (r *memRepo) UpdateUserRole(_ context.Context, id int64, role model.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Role = role
	return nil
}

func (r *memRepo) CreateMaterial(_ context.Context, m *model.Material) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.materials[m.MaterialID]; ok {
		return repository.ErrMaterialExists
	}
	c := *m
	r.materials[m.MaterialID] = &c
	return nil
}

func (r *memRepo) GetMaterial(_ context.Context, id string) (*model.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.materials[id]
	if !ok {
		return nil, repository.ErrMaterialNotFound
	}
	c := *m
	return &c, nil
}

func (r *memRepo) ListMaterials(_ context.Context, f model.MaterialFilter) ([]model.Material, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Material
	for _, m := range r.materials {
		if !m.IsActive || (f.Subject != "" && m.Subject != f.Subject) || !audienceIn(m.TargetAudience, f.Audiences) {
			continue
		}
		res = append(res, *m)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].MaterialID < res[j].MaterialID })
	return paginate(res, f.Page, f.PerPage), int64(len(res)), nil
}

func (r *memRepo) IncrementDownloadCount(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.materials[id]; ok {
		m.DownloadCount++
	}
	return nil
}

func (r *memRepo) CreateOrder(_ context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o.CreatedAt = time.Now()
	r.orders[o.OrderID] = cloneOrder(o)
	return nil
}

func (r *memRepo) ReplacePendingOrder(_ context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.orders {
		if existing.UserID != o.UserID || existing.MaterialID != o.MaterialID {
			continue
		}
		switch existing.Status {
		case model.OrderStatusPaid:
			return repository.ErrAlreadyPurchased
		case model.OrderStatusPending:
			delete(r.orders, id)
		}
	}
	o.CreatedAt = time.Now()
	r.orders[o.OrderID] = cloneOrder(o)
	return nil
}

func (r *memRepo) GetOrder(_ context.Context, id string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *memRepo) FindPaidOrder(_ context.Context, userID int64, materialID string, ft model.FileType) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.UserID == userID && o.MaterialID == materialID && o.Status == model.OrderStatusPaid && (ft == "" || o.Covers(ft)) {
			return cloneOrder(o), nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (r *memRepo) MarkOrderPaid(_ context.Context, id string, paymentKey *string, method string, paidAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != model.OrderStatusPending {
		return repository.ErrNotMatched
	}
	o.Status = model.OrderStatusPaid
	if paymentKey != nil {
		k := *paymentKey
		o.PaymentKey = &k
	}
	o.PaymentMethod = method
	o.PaidAt = &paidAt
	return nil
}

func (r *memRepo) CancelPaidOrder(_ context.Context, id string, at time.Time) error {
	if r.beforeCancel != nil {
		r.beforeCancel(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != model.OrderStatusPaid {
		return repository.ErrNotMatched
	}
	o.Status = model.OrderStatusCancelled
	o.PaidAt = nil
	o.CancelledAt = &at
	if r.cancelAckLost {
		return repository.ErrNotMatched
	}
	return nil
}

func (r *memRepo) RecordDownload(_ context.Context, id string, ft model.FileType, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != model.OrderStatusPaid {
		return repository.ErrNotMatched
	}
	o.HasDownloaded = true
	if o.DownloadedAt == nil {
		o.DownloadedAt = &at
	}
	for _, t := range o.DownloadedFileTypes {
		if t == ft {
			return nil
		}
	}
	o.DownloadedFileTypes = append(o.DownloadedFileTypes, ft)
	return nil
}

func (r *memRepo) SetProcessStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Kind != model.OrderKindUpgrade {
		return repository.ErrOrderNotFound
	}
	o.ProcessStatus = status
	return nil
}

func (r *memRepo) ListOrders(_ context.Context, f model.OrderFilter) ([]model.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Order
	for _, o := range r.orders {
		if (f.UserID != 0 && o.UserID != f.UserID) || (f.Kind != "" && o.Kind != f.Kind) || (f.Status != "" && o.Status != f.Status) {
			continue
		}
		res = append(res, *cloneOrder(o))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].OrderID < res[j].OrderID })
	return paginate(res, f.Page, f.PerPage), int64(len(res)), nil
}

func (r *memRepo) ListProducts(context.Context) ([]model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Product
	for _, p := range r.products {
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].SortOrder < res[j].SortOrder })
	return res, nil
}

func (r *memRepo) GetProduct(_ context.Context, key string) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[key]
	if !ok || !p.IsActive {
		return nil, repository.ErrProductNotFound
	}
	c := *p
	return &c, nil
}

func (r *memRepo) GetUserSkill(_ context.Context, userID int64) (*model.UserSkill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.skills[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return cloneSkill(s), nil
}

func (r *memRepo) lockedSkill(userID int64) *model.UserSkill {
	if s, ok := r.skills[userID]; ok {
		return cloneSkill(s)
	}
	return rating.NewSkill(userID)
}

func (r *memRepo) ApplyFeedback(_ context.Context, userID int64, materialID string, fn repository.FeedbackFunc) (*model.FeedbackRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	skill := r.lockedSkill(userID)
	m, ok := r.materials[materialID]
	if !ok {
		return nil, repository.ErrMaterialNotFound
	}
	mat := *m

	rec, err := fn(skill, &mat)
	if err != nil {
		return nil, err
	}
	key := feedbackKey(userID, materialID)
	if _, dup := r.feedback[key]; dup {
		return nil, repository.ErrDuplicateFeedback
	}

	r.feedback[key] = rec
	r.skills[userID] = skill
	m.DifficultyRating = mat.DifficultyRating
	return &rec, nil
}

func (r *memRepo) RevertFeedback(_ context.Context, userID int64, materialID string, fn repository.RevertFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := feedbackKey(userID, materialID)
	rec, ok := r.feedback[key]
	if !ok {
		return repository.ErrFeedbackNotFound
	}
	m, ok := r.materials[materialID]
	if !ok {
		return repository.ErrMaterialNotFound
	}
	skill := r.lockedSkill(userID)
	mat := *m

	if err := fn(skill, &mat, rec); err != nil {
		return err
	}

	delete(r.feedback, key)
	r.skills[userID] = skill
	m.DifficultyRating = mat.DifficultyRating
	return nil
}

func (r *memRepo) UpdateUserSkill(_ context.Context, userID int64, fn func(skill *model.UserSkill) error) (*model.UserSkill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	skill := r.lockedSkill(userID)
	if err := fn(skill); err != nil {
		return nil, err
	}
	r.skills[userID] = skill
	return cloneSkill(skill), nil
}

func (r *memRepo) owned(userID int64, materialID string) bool {
	if _, ok := r.feedback[feedbackKey(userID, materialID)]; ok {
		return true
	}
	for _, o := range r.orders {
		if o.UserID == userID && o.MaterialID == materialID && o.Status == model.OrderStatusPaid {
			return true
		}
	}
	return false
}

func (r *memRepo) RecommendCandidates(_ context.Context, userID int64, lo, hi, limit int) ([]model.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Material
	for _, m := range r.materials {
		if !m.IsActive || m.TargetAudience == model.AudienceTeacher || r.owned(userID, m.MaterialID) {
			continue
		}
		if m.DifficultyRating < lo || m.DifficultyRating > hi {
			continue
		}
		res = append(res, *m)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].DifficultyRating != res[j].DifficultyRating {
			return res[i].DifficultyRating < res[j].DifficultyRating
		}
		return res[i].MaterialID < res[j].MaterialID
	})
	return head(res, limit), nil
}

func (r *memRepo) FallbackMaterials(_ context.Context, userID int64, limit int) ([]model.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Material
	for _, m := range r.materials {
		if m.IsActive && m.TargetAudience != model.AudienceTeacher && !r.owned(userID, m.MaterialID) {
			res = append(res, *m)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].DifficultyRating < res[j].DifficultyRating })
	return head(res, limit), nil
}

func (r *memRepo) PopularMaterials(_ context.Context, limit int) ([]model.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Material
	for _, m := range r.materials {
		if m.IsActive && m.TargetAudience != model.AudienceTeacher {
			res = append(res, *m)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].DownloadCount > res[j].DownloadCount })
	return head(res, limit), nil
}

func (r *memRepo) TeacherRecommendations(_ context.Context, userID int64, since time.Time, limit int) ([]model.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := map[string]int{}
	for _, o := range r.orders {
		u, ok := r.users[o.UserID]
		if !ok || o.UserID == userID || u.Role != model.RoleTeacher || o.Status != model.OrderStatusPaid {
			continue
		}
		if o.PaidAt != nil && !o.PaidAt.Before(since) {
			peers[o.MaterialID]++
		}
	}
	var res []model.Material
	for _, m := range r.materials {
		if !m.IsActive || m.TargetAudience == model.AudienceStudent {
			continue
		}
		bought := false
		for _, o := range r.orders {
			if o.UserID == userID && userID != 0 && o.MaterialID == m.MaterialID && o.Status == model.OrderStatusPaid {
				bought = true
			}
		}
		if !bought {
			res = append(res, *m)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if peers[res[i].MaterialID] != peers[res[j].MaterialID] {
			return peers[res[i].MaterialID] > peers[res[j].MaterialID]
		}
		return res[i].DownloadCount > res[j].DownloadCount
	})
	return head(res, limit), nil
}

func (r *memRepo) SimilarUserMaterials(_ context.Context, userID int64, lo, hi, limit int) ([]model.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buyers := map[string]int{}
	for _, o := range r.orders {
		s, ok := r.skills[o.UserID]
		if !ok || o.UserID == userID || o.Status != model.OrderStatusPaid {
			continue
		}
		if s.OverallRating >= lo && s.OverallRating <= hi {
			buyers[o.MaterialID]++
		}
	}
	var res []model.Material
	for id := range buyers {
		if m, ok := r.materials[id]; ok && m.IsActive && !r.owned(userID, id) {
			res = append(res, *m)
		}
	}
	sort.Slice(res, func(i, j int) bool { return buyers[res[i].MaterialID] > buyers[res[j].MaterialID] })
	return head(res, limit), nil
}

func (r *memRepo) AlsoBought(_ context.Context, materialID string, excludeUserID int64, limit int) ([]model.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buyers := map[int64]bool{}
	for _, o := range r.orders {
		if o.MaterialID == materialID && o.Status == model.OrderStatusPaid && o.UserID != 0 {
			buyers[o.UserID] = true
		}
	}
	together := map[string]int{}
	for _, o := range r.orders {
		if buyers[o.UserID] && o.Status == model.OrderStatusPaid && o.MaterialID != materialID {
			together[o.MaterialID]++
		}
	}
	var res []model.Material
	for id := range together {
		if m, ok := r.materials[id]; ok && m.IsActive && !r.owned(excludeUserID, id) {
			res = append(res, *m)
		}
	}
	sort.Slice(res, func(i, j int) bool { return together[res[i].MaterialID] > together[res[j].MaterialID] })
	return head(res, limit), nil
}

func (r *memRepo) CreateConsultation(_ context.Context, c *model.Consultation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.consultations[c.ConsultationID] = &cp
	return nil
}

func (r *memRepo) GetConsultation(_ context.Context, id string) (*model.Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consultations[id]
	if !ok {
		return nil, repository.ErrConsultationNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) ListConsultations(_ context.Context, f model.ConsultationFilter) ([]model.Consultation, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Consultation
	for _, c := range r.consultations {
		if (f.Type != "" && c.Type != f.Type) || (f.Status != "" && c.Status != f.Status) {
			continue
		}
		if f.Query != "" && !strings.Contains(c.Name, f.Query) && !strings.Contains(c.Phone, f.Query) && !strings.Contains(c.Message, f.Query) {
			continue
		}
		res = append(res, *c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ConsultationID < res[j].ConsultationID })
	return paginate(res, f.Page, f.PerPage), int64(len(res)), nil
}

func (r *memRepo) UpdateConsultation(_ context.Context, id string, fn func(c *model.Consultation) error) (*model.Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consultations[id]
	if !ok {
		return nil, repository.ErrConsultationNotFound
	}
	cp := *c
	if err := fn(&cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now()
	r.consultations[id] = &cp
	out := cp
	return &out, nil
}

func (r *memRepo) ConsentedPhones(_ context.Context, phones []string) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := map[string]bool{}
	for _, p := range phones {
		for _, u := range r.users {
			if u.Phone == p && u.MarketingConsentAt != nil {
				res[p] = true
			}
		}
		for _, c := range r.consultations {
			if c.Phone == p && c.MarketingConsent && c.Status != model.ConsultationCancelled {
				res[p] = true
			}
		}
	}
	return res, nil
}

func (r *memRepo) RemoveConsent(_ context.Context, phones []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range phones {
		for _, u := range r.users {
			if u.Phone == p && u.MarketingConsentAt != nil {
				u.MarketingConsentAt = nil
				n++
			}
		}
		for _, c := range r.consultations {
			if c.Phone == p && c.MarketingConsent {
				c.MarketingConsent = false
				c.MarketingConsentAt = nil
				n++
			}
		}
	}
	return n, nil
}

func audienceIn(a model.Audience, set []model.Audience) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == a {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, page, perPage int) []T {
	if perPage <= 0 {
		return items
	}
	start := (pageOrFirst(page) - 1) * perPage
	if start >= len(items) {
		return nil
	}
	return items[start:min(start+perPage, len(items))]
}

func head(items []model.Material, limit int) []model.Material {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

// fakeGateway считает вызовы шлюза и возвращает заданные ошибки.
type fakeGateway struct {
	mu         sync.Mutex
	confirms   int
	cancels    int
	method     string
	confirmErr error
	cancelErr  error
	lastReason string
}

func (g *fakeGateway) Confirm(_ context.Context, in payment.ConfirmRequest) (*payment.Confirmation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirms++
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	return &payment.Confirmation{PaymentKey: in.PaymentKey, OrderID: in.OrderID, Method: g.method, Status: "DONE"}, nil
}

func (g *fakeGateway) Cancel(_ context.Context, _ string, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels++
	g.lastReason = reason
	return g.cancelErr
}

// recordingNotifier запоминает события вместо отправки.
type recordingNotifier struct {
	mu         sync.Mutex
	created    []model.Consultation
	scheduled  []model.Consultation
	broadcasts [][]string
	reconciled []string
}

func (n *recordingNotifier) ConsultationCreated(c model.Consultation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, c)
}

func (n *recordingNotifier) ScheduleConfirmed(c model.Consultation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scheduled = append(n.scheduled, c)
}

func (n *recordingNotifier) Broadcast(recipients []string, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, recipients)
}

func (n *recordingNotifier) RefundReconciliation(orderID, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reconciled = append(n.reconciled, orderID)
}

// memCache хранит JSON в памяти.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *memCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

type fakeStorage struct{}

func (fakeStorage) DownloadURL(_ context.Context, key, filename string) (string, error) {
	return "https://files.example.com/" + key + "?name=" + filename, nil
}

// storageFunc позволяет вмешаться в выдачу ссылки между проверкой заказа и записью скачивания.
type storageFunc func(ctx context.Context, key, filename string) (string, error)

func (f storageFunc) DownloadURL(ctx context.Context, key, filename string) (string, error) {
	return f(ctx, key, filename)
}

type testEnv struct {
	repo     *memRepo
	gateway  *fakeGateway
	notifier *recordingNotifier
	cache    *memCache
	svc      *Service
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:     newMemRepo(),
		gateway:  &fakeGateway{method: "카드"},
		notifier: &recordingNotifier{},
		cache:    newMemCache(),
	}
	env.svc = NewService(env.repo, Options{
		Gateway:        env.gateway,
		Notifier:       env.notifier,
		Cache:          env.cache,
		Storage:        fakeStorage{},
		ConsentVersion: "2024-01",
	})
	return env
}
