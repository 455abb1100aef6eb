package approvals

import (
	approvalspersistence "github.com/quarry-data/quarry/modules/approvals/infrastructure/persistence"
	"github.com/quarry-data/quarry/modules/approvals/presentation/controllers"
	"github.com/quarry-data/quarry/modules/approvals/services"
	catalogpersistence "github.com/quarry-data/quarry/modules/catalog/infrastructure/persistence"
	catalogservices "github.com/quarry-data/quarry/modules/catalog/services"
	"github.com/quarry-data/quarry/pkg/application"
	"github.com/quarry-data/quarry/pkg/outbox"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	requests := approvalspersistence.NewApprovalRequestRepository()
	entries := approvalspersistence.NewLedgerRepository()
	datasets := catalogpersistence.NewDatasetRepository()

	app.RegisterServices(
		services.NewApprovalService(
			requests,
			entries,
			datasets,
			outbox.NewPublisher(),
			catalogservices.OutboxTable,
			app.EventPublisher(),
			app.Logger(),
		),
		services.NewAccessService(requests, datasets),
	)
	app.RegisterControllers(
		controllers.NewApprovalsController(app),
		controllers.NewAccessController(app),
	)
	return nil
}

func (m *Module) Name() string {
	return "approvals"
}
