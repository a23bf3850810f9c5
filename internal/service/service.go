// Package service реализует регистрацию продаж и выплат и уведомляет кассовую смену.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/pos-till/internal/model"
)

// ErrInvalidAmount возвращается, если сумма выплаты не положительна.
var (
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrEmptyCategory возвращается, если у выплаты не указан получатель или назначение.
	ErrEmptyCategory = errors.New("payment category is required")
	// ErrEmptySale возвращается при попытке провести продажу без позиций.
	ErrEmptySale = errors.New("sale has no items")
	// ErrInvalidItem возвращается для позиции с отрицательной ценой или неположительным количеством.
	ErrInvalidItem = errors.New("invalid sale item")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateSale(ctx context.Context, sale model.Sale) (int64, error)
	CreatePayment(ctx context.Context, p model.Payment) (int64, error)
	DeletePayment(ctx context.Context, id int64) (*model.Payment, error)
	ListPayments(ctx context.Context, isSupplier bool, limit int) ([]model.Payment, error)
}

// ShiftNotifier получает уведомления о продажах и выплатах.
type ShiftNotifier interface {
	OnSale(amount int64)
	OnPaymentRegistered(amount int64, isSupplier bool)
	OnPaymentDeleted(amount int64, isSupplier bool)
}

// Service содержит бизнес-логику продаж и выплат.
type Service struct {
	repo     Repository
	notifier ShiftNotifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и получателем уведомлений смены.
func NewService(repo Repository, notifier ShiftNotifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// SaleTotal считает сумму продажи как сумму price*quantity с округлением до целого.
func SaleTotal(items []model.SaleItem) int64 {
	total := decimal.Zero
	for _, item := range items {
		line := decimal.NewFromInt(item.Price).Mul(decimal.NewFromFloat(item.Quantity))
		total = total.Add(line)
	}
	return total.Round(0).IntPart()
}

// RecordSale сохраняет продажу и сообщает её сумму открытой смене.
func (s *Service) RecordSale(ctx context.Context, items []model.SaleItem) (*model.Sale, error) {
	if len(items) == 0 {
		return nil, ErrEmptySale
	}
	for i, item := range items {
		if item.Price < 0 || item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: position %d", ErrInvalidItem, i+1)
		}
	}

	sale := model.Sale{
		SoldAt: s.now(),
		Total:  SaleTotal(items),
		Items:  items,
	}

	id, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return nil, fmt.Errorf("record sale: %w", err)
	}
	sale.ID = id

	s.notifier.OnSale(sale.Total)
	return &sale, nil
}

// RegisterPayment сохраняет выплату поставщику или прочую выплату.
func (s *Service) RegisterPayment(ctx context.Context, amount int64, category string, isSupplier bool) (*model.Payment, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, ErrEmptyCategory
	}

	p := model.Payment{
		PaidAt:     s.now(),
		Amount:     amount,
		Category:   category,
		IsSupplier: isSupplier,
	}

	id, err := s.repo.CreatePayment(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("register payment: %w", err)
	}
	p.ID = id

	s.notifier.OnPaymentRegistered(p.Amount, p.IsSupplier)
	return &p, nil
}

// DeletePayment удаляет выплату и сообщает об этом смене.
func (s *Service) DeletePayment(ctx context.Context, id int64) (*model.Payment, error) {
	p, err := s.repo.DeletePayment(ctx, id)
	if err != nil {
		return nil, err
	}

	s.notifier.OnPaymentDeleted(p.Amount, p.IsSupplier)
	return p, nil
}

// ListPayments возвращает выплаты указанного вида.
func (s *Service) ListPayments(ctx context.Context, isSupplier bool, limit int) ([]model.Payment, error) {
	return s.repo.ListPayments(ctx, isSupplier, limit)
}
