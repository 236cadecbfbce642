package persistence

import (
	"portfolio-persist/core/deadletter"
	"portfolio-persist/core/persist"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates the persistence feature.
func NewFeature(r Reconciler, store persist.Store, classify *persist.Classifier, archive *deadletter.Archive, logger *zap.Logger) *Feature {
	svc := NewService(r, store, classify, archive, logger)
	return &Feature{service: svc, handler: NewHandler(svc)}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "persistence"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return f.service.store != nil && f.service.reconciler != nil
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}

// Service returns the feature's service.
func (f *Feature) Service() *Service {
	return f.service
}
