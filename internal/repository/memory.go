package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sportsreg_app/internal/apperrors"
	"sportsreg_app/internal/models"
)

// MemoryStore is an in-memory Store used by unit tests. Individual
// operations take the store mutex, so conditional updates (seat
// reservation, promo consumption) behave atomically under concurrent use.
// Atomically does not provide rollback; tests assert end states only.
type MemoryStore struct {
	mu sync.Mutex

	users        map[uint]models.User
	children     map[uint]models.Child
	classes      map[uint]models.Class
	orders       map[uint]models.Order
	lineOrder    map[uint]uint // line item id -> order id
	codes        map[uint]models.DiscountCode
	usages       []models.DiscountCodeUsage
	scholarships []models.Scholarship
	enrollments  map[uint]models.Enrollment
	payments     map[uint]models.Payment
	plans        map[uint]models.InstallmentPlan
	installments map[uint]models.InstallmentPayment
	processed    map[string]bool
	callbacks    []models.GatewayCallback

	nextID uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[uint]models.User),
		children:     make(map[uint]models.Child),
		classes:      make(map[uint]models.Class),
		orders:       make(map[uint]models.Order),
		lineOrder:    make(map[uint]uint),
		codes:        make(map[uint]models.DiscountCode),
		enrollments:  make(map[uint]models.Enrollment),
		payments:     make(map[uint]models.Payment),
		plans:        make(map[uint]models.InstallmentPlan),
		installments: make(map[uint]models.InstallmentPayment),
		processed:    make(map[string]bool),
	}
}

func (s *MemoryStore) id() uint {
	s.nextID++
	return s.nextID
}

// Seed helpers for tests.

func (s *MemoryStore) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	s.users[u.ID] = u
	return u
}

func (s *MemoryStore) AddChild(c models.Child) models.Child {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.id()
	}
	s.children[c.ID] = c
	return c
}

func (s *MemoryStore) AddClass(c models.Class) models.Class {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.id()
	}
	s.classes[c.ID] = c
	return c
}

func (s *MemoryStore) AddCode(c models.DiscountCode) models.DiscountCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.id()
	}
	c.Code = models.NormalizeCode(c.Code)
	s.codes[c.ID] = c
	return c
}

func (s *MemoryStore) AddScholarship(sc models.Scholarship) models.Scholarship {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc.ID == 0 {
		sc.ID = s.id()
	}
	s.scholarships = append(s.scholarships, sc)
	return sc
}

// Store interface.

func (s *MemoryStore) Users() UserRepo               { return (*memUsers)(s) }
func (s *MemoryStore) Children() ChildRepo           { return (*memChildren)(s) }
func (s *MemoryStore) Catalog() CatalogRepo          { return (*memCatalog)(s) }
func (s *MemoryStore) Orders() OrderRepo             { return (*memOrders)(s) }
func (s *MemoryStore) Discounts() DiscountRepo       { return (*memDiscounts)(s) }
func (s *MemoryStore) Scholarships() ScholarshipRepo { return (*memScholarships)(s) }
func (s *MemoryStore) Enrollments() EnrollmentRepo   { return (*memEnrollments)(s) }
func (s *MemoryStore) Payments() PaymentRepo         { return (*memPayments)(s) }
func (s *MemoryStore) Plans() PlanRepo               { return (*memPlans)(s) }
func (s *MemoryStore) Events() EventRepo             { return (*memEvents)(s) }

func (s *MemoryStore) Atomically(ctx context.Context, fn func(tx Store) error) error {
	return fn(s)
}

type memUsers MemoryStore

func (m *memUsers) Get(ctx context.Context, id uint) (*models.User, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Resource: "user", ID: fmt.Sprint(id)}
	}
	return &u, nil
}

type memChildren MemoryStore

func (m *memChildren) Get(ctx context.Context, id uint) (*models.Child, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.children[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Resource: "child", ID: fmt.Sprint(id)}
	}
	return &c, nil
}

type memCatalog MemoryStore

func (m *memCatalog) GetClass(ctx context.Context, id uint) (*models.Class, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Resource: "class", ID: fmt.Sprint(id)}
	}
	return &c, nil
}

func (m *memCatalog) ListClasses(ctx context.Context) ([]models.Class, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Class
	for _, c := range s.classes {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memCatalog) ReserveSeat(ctx context.Context, classID uint) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[classID]
	if !ok {
		return &apperrors.NotFoundError{Resource: "class", ID: fmt.Sprint(classID)}
	}
	if !c.HasCapacity() {
		return &apperrors.CapacityExceededError{ClassID: classID, ClassName: c.Name}
	}
	c.Enrolled++
	s.classes[classID] = c
	return nil
}

func (m *memCatalog) ReleaseSeats(ctx context.Context, classID uint, n int) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[classID]
	if ok && c.Enrolled >= n {
		c.Enrolled -= n
		s.classes[classID] = c
	}
	return nil
}

type memOrders MemoryStore

func (m *memOrders) Create(ctx context.Context, order *models.Order) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = s.id()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	for i := range order.LineItems {
		order.LineItems[i].ID = s.id()
		order.LineItems[i].OrderID = order.ID
		s.lineOrder[order.LineItems[i].ID] = order.ID
	}
	s.orders[order.ID] = *order
	return nil
}

func (m *memOrders) Get(ctx context.Context, id uint) (*models.Order, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Resource: "order", ID: fmt.Sprint(id)}
	}
	return &o, nil
}

func (m *memOrders) GetByUUID(ctx context.Context, uuid string) (*models.Order, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.UUID == uuid {
			return &o, nil
		}
	}
	return nil, &apperrors.NotFoundError{Resource: "order", ID: uuid}
}

func (m *memOrders) GetByUUIDForUpdate(ctx context.Context, uuid string) (*models.Order, error) {
	return m.GetByUUID(ctx, uuid)
}

func (m *memOrders) Update(ctx context.Context, order *models.Order) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; !ok {
		return &apperrors.NotFoundError{Resource: "order", ID: fmt.Sprint(order.ID)}
	}
	s.orders[order.ID] = *order
	return nil
}

func (m *memOrders) ListByUser(ctx context.Context, userID uint) ([]models.Order, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memDiscounts MemoryStore

func (m *memDiscounts) GetByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	norm := models.NormalizeCode(code)
	for _, c := range s.codes {
		if c.Code == norm {
			return &c, nil
		}
	}
	return nil, &apperrors.NotFoundError{Resource: "discount code", ID: code}
}

func (m *memDiscounts) CountUserUses(ctx context.Context, codeID, userID uint) (int, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.usages {
		if u.DiscountCodeID == codeID && u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memDiscounts) Consume(ctx context.Context, codeID, userID, orderID uint) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[codeID]
	if !ok {
		return &apperrors.NotFoundError{Resource: "discount code", ID: fmt.Sprint(codeID)}
	}
	if c.MaxUses != nil && c.CurrentUses >= *c.MaxUses {
		return &apperrors.ConflictError{Reason: "discount code has reached its usage limit"}
	}
	if c.MaxUsesPerUser != nil {
		n := 0
		for _, u := range s.usages {
			if u.DiscountCodeID == codeID && u.UserID == userID {
				n++
			}
		}
		if n >= *c.MaxUsesPerUser {
			return &apperrors.ConflictError{Reason: "discount code already used the maximum number of times by this user"}
		}
	}
	c.CurrentUses++
	s.codes[codeID] = c
	s.usages = append(s.usages, models.DiscountCodeUsage{
		DiscountCodeID: codeID, UserID: userID, OrderID: orderID, CreatedAt: time.Now(),
	})
	return nil
}

type memScholarships MemoryStore

func (m *memScholarships) ListActiveForUser(ctx context.Context, userID uint, now time.Time) ([]models.Scholarship, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Scholarship
	for _, sc := range s.scholarships {
		if sc.UserID == userID && sc.ActiveAt(now) {
			out = append(out, sc)
		}
	}
	return out, nil
}

type memEnrollments MemoryStore

func (m *memEnrollments) CreateBatch(ctx context.Context, enrollments []models.Enrollment) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range enrollments {
		enrollments[i].ID = s.id()
		s.enrollments[enrollments[i].ID] = enrollments[i]
	}
	return nil
}

func (m *memEnrollments) ListByOrder(ctx context.Context, orderID uint) ([]models.Enrollment, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Enrollment
	for _, e := range s.enrollments {
		if s.lineOrder[e.OrderLineItemID] == orderID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memEnrollments) ListByUser(ctx context.Context, userID uint) ([]models.Enrollment, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Enrollment
	for _, e := range s.enrollments {
		if c, ok := s.children[e.ChildID]; ok && c.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memEnrollments) Update(ctx context.Context, enrollment *models.Enrollment) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (m *memEnrollments) HasActive(ctx context.Context, childID, classID uint) (bool, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.enrollments {
		if e.ChildID == childID && e.ClassID == classID &&
			(e.Status == models.EnrollmentStatusPending || e.Status == models.EnrollmentStatusActive) {
			return true, nil
		}
	}
	return false, nil
}

type memPayments MemoryStore

func (m *memPayments) Create(ctx context.Context, payment *models.Payment) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	payment.ID = s.id()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now()
	}
	s.payments[payment.ID] = *payment
	return nil
}

func (m *memPayments) Get(ctx context.Context, id uint) (*models.Payment, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Resource: "payment", ID: fmt.Sprint(id)}
	}
	return &p, nil
}

func (m *memPayments) GetForUpdate(ctx context.Context, id uint) (*models.Payment, error) {
	return m.Get(ctx, id)
}

func (m *memPayments) GetByExternalRef(ctx context.Context, ref string) (*models.Payment, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.ExternalRef == ref {
			return &p, nil
		}
	}
	return nil, &apperrors.NotFoundError{Resource: "payment", ID: ref}
}

func (m *memPayments) GetByExternalRefForUpdate(ctx context.Context, ref string) (*models.Payment, error) {
	return m.GetByExternalRef(ctx, ref)
}

func (m *memPayments) Update(ctx context.Context, payment *models.Payment) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[payment.ID] = *payment
	return nil
}

func (m *memPayments) ListStalePending(ctx context.Context, cutoff time.Time) ([]models.Payment, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payment
	for _, p := range s.payments {
		if p.Status == models.PaymentStatusPending && p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

type memPlans MemoryStore

func (m *memPlans) Create(ctx context.Context, plan *models.InstallmentPlan) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	plan.ID = s.id()
	for i := range plan.Installments {
		plan.Installments[i].ID = s.id()
		plan.Installments[i].PlanID = plan.ID
		s.installments[plan.Installments[i].ID] = plan.Installments[i]
	}
	s.plans[plan.ID] = *plan
	return nil
}

func (m *memPlans) Get(ctx context.Context, id uint) (*models.InstallmentPlan, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.getLocked(id)
}

func (m *memPlans) getLocked(id uint) (*models.InstallmentPlan, error) {
	s := (*MemoryStore)(m)
	p, ok := s.plans[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Resource: "installment plan", ID: fmt.Sprint(id)}
	}
	p.Installments = nil
	for _, ip := range s.installments {
		if ip.PlanID == id {
			p.Installments = append(p.Installments, ip)
		}
	}
	sort.Slice(p.Installments, func(i, j int) bool {
		return p.Installments[i].InstallmentNumber < p.Installments[j].InstallmentNumber
	})
	return &p, nil
}

func (m *memPlans) GetForUpdate(ctx context.Context, id uint) (*models.InstallmentPlan, error) {
	return m.Get(ctx, id)
}

func (m *memPlans) HasActiveForOrder(ctx context.Context, orderID uint) (bool, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plans {
		if p.OrderID == orderID && p.Status == models.PlanStatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (m *memPlans) GetByScheduleRef(ctx context.Context, ref string) (*models.InstallmentPlan, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.plans {
		if p.ExternalScheduleRef == ref {
			return m.getLocked(id)
		}
	}
	return nil, &apperrors.NotFoundError{Resource: "installment plan", ID: ref}
}

func (m *memPlans) Update(ctx context.Context, plan *models.InstallmentPlan) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *plan
	stored.Installments = nil
	s.plans[plan.ID] = stored
	return nil
}

func (m *memPlans) GetInstallment(ctx context.Context, planID uint, number int) (*models.InstallmentPayment, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ip := range s.installments {
		if ip.PlanID == planID && ip.InstallmentNumber == number {
			return &ip, nil
		}
	}
	return nil, &apperrors.NotFoundError{Resource: "installment", ID: fmt.Sprintf("%d/%d", planID, number)}
}

func (m *memPlans) NextPendingInstallment(ctx context.Context, planID uint) (*models.InstallmentPayment, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.InstallmentPayment
	for _, ip := range s.installments {
		ip := ip
		if ip.PlanID == planID && ip.Status == models.InstallmentStatusPending {
			if best == nil || ip.InstallmentNumber < best.InstallmentNumber {
				best = &ip
			}
		}
	}
	if best == nil {
		return nil, &apperrors.NotFoundError{Resource: "pending installment", ID: fmt.Sprint(planID)}
	}
	return best, nil
}

func (m *memPlans) UpdateInstallment(ctx context.Context, ip *models.InstallmentPayment) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installments[ip.ID] = *ip
	return nil
}

func (m *memPlans) CountPendingInstallments(ctx context.Context, planID uint) (int, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ip := range s.installments {
		if ip.PlanID == planID && ip.Status == models.InstallmentStatusPending {
			n++
		}
	}
	return n, nil
}

func (m *memPlans) SkipPendingInstallments(ctx context.Context, planID uint) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ip := range s.installments {
		if ip.PlanID == planID && ip.Status == models.InstallmentStatusPending {
			ip.Status = models.InstallmentStatusSkipped
			s.installments[id] = ip
		}
	}
	return nil
}

func (m *memPlans) InstallmentsDueBetween(ctx context.Context, from, to time.Time) ([]models.InstallmentPayment, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.InstallmentPayment
	for _, ip := range s.installments {
		if ip.Status == models.InstallmentStatusPending && !ip.DueDate.Before(from) && ip.DueDate.Before(to) {
			ip.Plan = s.plans[ip.PlanID]
			out = append(out, ip)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

type memEvents MemoryStore

func (m *memEvents) MarkProcessed(ctx context.Context, eventID string, now time.Time) (bool, error) {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processed[eventID] {
		return false, nil
	}
	s.processed[eventID] = true
	return true, nil
}

func (m *memEvents) SaveCallback(ctx context.Context, cb *models.GatewayCallback) error {
	s := (*MemoryStore)(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	cb.ID = s.id()
	s.callbacks = append(s.callbacks, *cb)
	return nil
}
