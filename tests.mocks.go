package main

import (
	"context"
	"io"
	"sync"
	"time"
)

// This file contains mocks definitions needed to perform unit tests.

// MockBookService mocks the catalog service.
type MockBookService struct {
	AddFunc         func(ctx context.Context, book Book) (Book, error)
	GetOneFunc      func(ctx context.Context, id string) (Book, error)
	SearchFunc      func(ctx context.Context, query BookQuery) ([]Book, *Pagination, error)
	UpdateFunc      func(ctx context.Context, id string, update BookUpdate) (Book, error)
	UpdateCoverFunc func(ctx context.Context, id string, coverPath string) (Book, error)
	DeleteFunc      func(ctx context.Context, id string) (Book, error)
}

func (m *MockBookService) Add(ctx context.Context, book Book) (Book, error) {
	return m.AddFunc(ctx, book)
}

func (m *MockBookService) GetOne(ctx context.Context, id string) (Book, error) {
	return m.GetOneFunc(ctx, id)
}

func (m *MockBookService) Search(ctx context.Context, query BookQuery) ([]Book, *Pagination, error) {
	return m.SearchFunc(ctx, query)
}

func (m *MockBookService) Update(ctx context.Context, id string, update BookUpdate) (Book, error) {
	return m.UpdateFunc(ctx, id, update)
}

func (m *MockBookService) UpdateCover(ctx context.Context, id string, coverPath string) (Book, error) {
	return m.UpdateCoverFunc(ctx, id, coverPath)
}

func (m *MockBookService) Delete(ctx context.Context, id string) (Book, error) {
	return m.DeleteFunc(ctx, id)
}

// MockLedgerService mocks the borrow and return service.
type MockLedgerService struct {
	BorrowFunc               func(ctx context.Context, bookID, userID string) (BookTransaction, error)
	ReturnFunc               func(ctx context.Context, bookID, userID string) (BookTransaction, error)
	GetBookTransactionsFunc  func(ctx context.Context, bookID string) ([]BookTransaction, error)
	GetUserBorrowedBooksFunc func(ctx context.Context, userID string) ([]BookTransaction, error)
	GetAvailabilityFunc      func(ctx context.Context, bookID string) (Availability, error)
}

func (m *MockLedgerService) Borrow(ctx context.Context, bookID, userID string) (BookTransaction, error) {
	return m.BorrowFunc(ctx, bookID, userID)
}

func (m *MockLedgerService) Return(ctx context.Context, bookID, userID string) (BookTransaction, error) {
	return m.ReturnFunc(ctx, bookID, userID)
}

func (m *MockLedgerService) GetBookTransactions(ctx context.Context, bookID string) ([]BookTransaction, error) {
	return m.GetBookTransactionsFunc(ctx, bookID)
}

func (m *MockLedgerService) GetUserBorrowedBooks(ctx context.Context, userID string) ([]BookTransaction, error) {
	return m.GetUserBorrowedBooksFunc(ctx, userID)
}

func (m *MockLedgerService) GetAvailability(ctx context.Context, bookID string) (Availability, error) {
	return m.GetAvailabilityFunc(ctx, bookID)
}

// MockAuthService mocks the accounts service.
type MockAuthService struct {
	RegisterFunc     func(ctx context.Context, creds Credentials) (AuthResult, error)
	LoginFunc        func(ctx context.Context, creds Credentials) (AuthResult, error)
	AuthenticateFunc func(ctx context.Context, token string) (User, error)
}

func (m *MockAuthService) Register(ctx context.Context, creds Credentials) (AuthResult, error) {
	return m.RegisterFunc(ctx, creds)
}

func (m *MockAuthService) Login(ctx context.Context, creds Credentials) (AuthResult, error) {
	return m.LoginFunc(ctx, creds)
}

func (m *MockAuthService) Authenticate(ctx context.Context, token string) (User, error) {
	return m.AuthenticateFunc(ctx, token)
}

// MockBookCache is an in-memory BookCache. Failing methods can be
// forced with the error fields.
type MockBookCache struct {
	mu            sync.Mutex
	books         map[string]Book
	versions      map[string]int64
	invalidated   []string
	GetErr        error
	SetErr        error
	InvalidateErr error
}

func NewMockBookCache() *MockBookCache {
	return &MockBookCache{books: make(map[string]Book), versions: make(map[string]int64)}
}

func (m *MockBookCache) Get(_ context.Context, id string) (Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return Book{}, m.GetErr
	}
	book, ok := m.books[id]
	if !ok {
		return Book{}, ErrBookNotFound
	}
	return book, nil
}

func (m *MockBookCache) Version(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[id], nil
}

func (m *MockBookCache) Set(_ context.Context, book Book, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	if m.versions[book.ID] != version {
		return nil
	}
	m.books[book.ID] = book
	return nil
}

func (m *MockBookCache) Invalidate(_ context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InvalidateErr != nil {
		return m.InvalidateErr
	}
	for _, id := range ids {
		delete(m.books, id)
		m.versions[id]++
		m.invalidated = append(m.invalidated, id)
	}
	return nil
}

// Invalidated returns the ids removed from the cache so far.
func (m *MockBookCache) Invalidated() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.invalidated...)
}

// MockQueuer mocks the ledger events queue.
type MockQueuer struct {
	PushFunc func(ctx context.Context, qid string, event LedgerEvent) error
	PopFunc  func(ctx context.Context, qids ...string) (string, LedgerEvent, error)
}

func (m *MockQueuer) Push(ctx context.Context, qid string, event LedgerEvent) error {
	return m.PushFunc(ctx, qid, event)
}

func (m *MockQueuer) Pop(ctx context.Context, qids ...string) (string, LedgerEvent, error) {
	return m.PopFunc(ctx, qids...)
}

// RecordingQueuer keeps the pushed events in memory.
type RecordingQueuer struct {
	mu     sync.Mutex
	events []LedgerEvent
}

func (q *RecordingQueuer) Push(_ context.Context, _ string, event LedgerEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, event)
	return nil
}

func (q *RecordingQueuer) Pop(ctx context.Context, _ ...string) (string, LedgerEvent, error) {
	<-ctx.Done()
	return "", LedgerEvent{}, ctx.Err()
}

// Events returns the pushed events in order.
func (q *RecordingQueuer) Events() []LedgerEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]LedgerEvent(nil), q.events...)
}

// MockCoverStorage mocks the covers storage.
type MockCoverStorage struct {
	SaveFunc   func(src io.Reader) (string, error)
	RemoveFunc func(relativePath string) error
}

func (m *MockCoverStorage) Save(src io.Reader) (string, error) {
	return m.SaveFunc(src)
}

func (m *MockCoverStorage) Remove(relativePath string) error {
	return m.RemoveFunc(relativePath)
}

// MockLedgerArchive mocks the ledger events archive.
type MockLedgerArchive struct {
	AddFunc    func(ctx context.Context, event LedgerEvent) error
	GetAllFunc func(ctx context.Context) ([]LedgerEvent, error)
}

func (m *MockLedgerArchive) Add(ctx context.Context, event LedgerEvent) error {
	return m.AddFunc(ctx, event)
}

func (m *MockLedgerArchive) GetAll(ctx context.Context) ([]LedgerEvent, error) {
	return m.GetAllFunc(ctx)
}

// MockClocker implements a fake Clocker.
type MockClocker struct {
	MockNow time.Time
}

// NewMockClocker returns a mocked instance with fixed time.
func NewMockClocker() *MockClocker {
	return &MockClocker{time.Date(2023, 0o7, 0o2, 0o0, 0o0, 0o0, 0o00000000, time.UTC)}
}

// Now returns an already defined time to be used as mock. This
// equals to `Sun, 02 Jul 2023 00:00:00 UTC` in time.RFC1123 format.
// equals to `2023-07-02 00:00:00 +0000 UTC` in String format.
func (mck *MockClocker) Now() time.Time {
	return mck.MockNow
}

// StepClocker returns a time moving forward by a fixed step on each call.
type StepClocker struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStepClocker starts at the mocked time and moves one second per call.
func NewStepClocker() *StepClocker {
	return &StepClocker{now: NewMockClocker().Now(), step: time.Second}
}

func (sc *StepClocker) Now() time.Time {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.now = sc.now.Add(sc.step)
	return sc.now
}

// MockUIDHandler implements a fake UIDHandler.
type MockUIDHandler struct {
	MockedUID string
	Valid     bool
}

// NewMockUIDHandler returns a mocked instance with predictable id.
func NewMockUIDHandler(id string, valid bool) *MockUIDHandler {
	return &MockUIDHandler{MockedUID: id, Valid: valid}
}

// Generate constructs a predictable id to be used as mock.
func (muid *MockUIDHandler) Generate(prefix string) string {
	return prefix + ":" + muid.MockedUID
}

// IsValid mocks IsValid behavior by providing configured status.
func (muid *MockUIDHandler) IsValid(_, _ string) bool {
	return muid.Valid
}
