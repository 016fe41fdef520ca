package payment

import (
	"context"
	"log/slog"
)

// SystemService manages payment system instances.
type SystemService struct {
	repo     RepositoryAPI
	gateways *GatewayRegistry
	logger   *slog.Logger
}

func NewSystemService(repo RepositoryAPI, gateways *GatewayRegistry, logger *slog.Logger) *SystemService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemService{repo: repo, gateways: gateways, logger: logger}
}

func (s *SystemService) prepare(in *SystemInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	gw, ok := s.gateways.Find(in.GatewayType)
	if !ok {
		return ErrUnknownGatewayKind.WithDetails(map[string]string{"gateway_type": in.GatewayType})
	}

	in.Options = ApplyFieldDefaults(gw.InstanceFields(), in.Options)
	if err := ValidateFields(gw.InstanceFields(), in.Options); err != nil {
		return err
	}
	if cv, ok := gw.(ConfigValidator); ok {
		if err := cv.ValidateConfig(in.Options); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemService) Create(ctx context.Context, in SystemInput) (*PaymentSystem, error) {
	if err := s.prepare(&in); err != nil {
		return nil, err
	}

	sys := &PaymentSystem{
		Code:        in.Code,
		GatewayType: in.GatewayType,
		Name:        in.Name,
		Description: in.Description,
		IsEnabled:   in.IsEnabled,
		MinPay:      in.MinPay,
		PayTimeout:  in.PayTimeout,
		Options:     in.Options,
	}
	if err := s.repo.CreateSystem(ctx, sys); err != nil {
		s.logger.Error("failed to create payment system", "error", err, "code", in.Code)
		return nil, err
	}

	s.logger.Info("payment system created", "system_id", sys.ID, "code", sys.Code, "gateway_type", sys.GatewayType)
	return sys, nil
}

func (s *SystemService) Update(ctx context.Context, id int64, in SystemInput) (*PaymentSystem, error) {
	sys, err := s.repo.GetSystem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.prepare(&in); err != nil {
		return nil, err
	}

	sys.Code = in.Code
	sys.GatewayType = in.GatewayType
	sys.Name = in.Name
	sys.Description = in.Description
	sys.IsEnabled = in.IsEnabled
	sys.MinPay = in.MinPay
	sys.PayTimeout = in.PayTimeout
	sys.Options = in.Options

	if err := s.repo.UpdateSystem(ctx, sys); err != nil {
		s.logger.Error("failed to update payment system", "error", err, "system_id", id)
		return nil, err
	}
	return sys, nil
}

// Delete removes a payment system that no payment references.
func (s *SystemService) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.GetSystem(ctx, id); err != nil {
		return err
	}
	count, err := s.repo.CountPaymentsBySystem(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrSystemInUse
	}
	if err := s.repo.DeleteSystem(ctx, id); err != nil {
		return err
	}
	s.logger.Info("payment system deleted", "system_id", id)
	return nil
}

func (s *SystemService) Get(ctx context.Context, id int64) (*PaymentSystem, error) {
	return s.repo.GetSystem(ctx, id)
}

func (s *SystemService) List(ctx context.Context) ([]*PaymentSystem, error) {
	return s.repo.ListSystems(ctx)
}
