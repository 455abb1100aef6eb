package modules

import (
	"github.com/quarry-data/quarry/modules/approvals"
	"github.com/quarry-data/quarry/modules/catalog"
	"github.com/quarry-data/quarry/pkg/application"
)

// BuiltInModules lists every module loaded into the server, in dependency
// order: the catalog registers dataset services the approvals module reads.
var BuiltInModules = []application.Module{
	catalog.NewModule(),
	approvals.NewModule(),
}

func Load(app application.Application) error {
	return application.Load(app, BuiltInModules...)
}
