package notifications

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/urbanfoods/backend/internal/users"
	"github.com/urbanfoods/backend/pkg/config"
	"github.com/urbanfoods/backend/pkg/db/models"
	pkgerrors "github.com/urbanfoods/backend/pkg/errors"
	"github.com/urbanfoods/backend/pkg/logger"
)

const (
	kindOperatorChat  = "operator_chat"
	kindOperatorEmail = "operator_email"
	kindCustomerEmail = "customer_email"
)

// Repository records outbound messages for the delivery workers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a notifications repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// ServiceParams wires the notification fan-out dependencies.
type ServiceParams struct {
	Repo   Repository
	Users  users.Repository
	Config config.NotificationsConfig
	Logger *logger.Logger
}

// Service records the post-confirmation fan-out: operator chat ping, operator
// email and customer email. Every channel is attempted; errors are combined
// and returned to the caller for logging, never for rollback.
type Service struct {
	repo   Repository
	users  users.Repository
	cfg    config.NotificationsConfig
	logger *logger.Logger
}

// NewService validates and wires the notification fan-out.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications repo required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repo required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		repo:   params.Repo,
		users:  params.Users,
		cfg:    params.Config,
		logger: params.Logger,
	}, nil
}

// OrderConfirmed fans out the confirmation messages for a settled order.
func (s *Service) OrderConfirmed(ctx context.Context, order *models.Order) error {
	subject := fmt.Sprintf("Order %s confirmed", order.OrderNumber)
	body := fmt.Sprintf("Order %s for KES %s is confirmed and queued for delivery to %s, room %s.",
		order.OrderNumber, order.Total.StringFixed(2), order.Hostel, order.RoomNumber)

	var errs error

	if s.cfg.OperatorChat != "" {
		errs = multierr.Append(errs, s.record(ctx, kindOperatorChat, s.cfg.OperatorChat, subject, body, order))
	}
	if s.cfg.OperatorEmail != "" {
		errs = multierr.Append(errs, s.record(ctx, kindOperatorEmail, s.cfg.OperatorEmail, subject, body, order))
	}

	customer, err := s.users.FindByID(ctx, order.UserID)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("load customer for notification: %w", err))
	} else if customer.Email != "" {
		errs = multierr.Append(errs, s.record(ctx, kindCustomerEmail, customer.Email, subject, body, order))
	}

	return errs
}

func (s *Service) record(ctx context.Context, kind, recipient, subject, body string, order *models.Order) error {
	err := s.repo.Create(ctx, &models.Notification{
		Kind:      kind,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		OrderID:   &order.ID,
	})
	if err != nil {
		return fmt.Errorf("record %s notification: %w", kind, err)
	}
	return nil
}
