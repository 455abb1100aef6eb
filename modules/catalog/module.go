package catalog

import (
	"github.com/quarry-data/quarry/modules/catalog/infrastructure/persistence"
	"github.com/quarry-data/quarry/modules/catalog/infrastructure/search"
	"github.com/quarry-data/quarry/modules/catalog/presentation/controllers"
	"github.com/quarry-data/quarry/modules/catalog/services"
	"github.com/quarry-data/quarry/pkg/application"
	"github.com/quarry-data/quarry/pkg/configuration"
	"github.com/quarry-data/quarry/pkg/outbox"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	conf := configuration.Use()

	client, err := search.NewElasticClient(search.Config{
		Addresses: conf.Search.AddressList(),
		Username:  conf.Search.Username,
		Password:  conf.Search.Password,
	})
	if err != nil {
		return err
	}

	datasets := persistence.NewDatasetRepository()
	indexer := services.NewIndexService(client, conf.Search.IndexName, datasets, app.Logger())

	app.RegisterServices(
		indexer,
		services.NewDatasetService(
			datasets,
			indexer,
			outbox.NewPublisher(),
			services.OutboxTable,
			app.Logger(),
		),
	)
	app.RegisterControllers(
		controllers.NewDatasetsController(app),
	)
	return nil
}

func (m *Module) Name() string {
	return "catalog"
}
