package application

import (
	"fmt"
	"reflect"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/quarry-data/quarry/pkg/eventbus"
)

// Controller registers a set of routes on the shared router.
type Controller interface {
	Key() string
	Register(r *mux.Router)
}

// Module wires its services and controllers into the application.
type Module interface {
	Name() string
	Register(app Application) error
}

// Application is the composition root shared by modules: a service registry
// keyed by concrete type, the database pool, the event bus and the logger.
type Application interface {
	Pool() *pgxpool.Pool
	EventPublisher() eventbus.EventBus
	Logger() *logrus.Logger

	RegisterServices(services ...interface{})
	Service(service interface{}) interface{}

	RegisterControllers(controllers ...Controller)
	Controllers() []Controller

	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	Middleware() []mux.MiddlewareFunc
}

type ApplicationOptions struct {
	Pool     *pgxpool.Pool
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	return &application{
		pool:           opts.Pool,
		eventPublisher: opts.EventBus,
		logger:         opts.Logger,
		controllers:    make(map[string]Controller),
		services:       make(map[reflect.Type]interface{}),
	}
}

type application struct {
	pool           *pgxpool.Pool
	eventPublisher eventbus.EventBus
	logger         *logrus.Logger
	services       map[reflect.Type]interface{}
	controllers    map[string]Controller
	controllerKeys []string
	middleware     []mux.MiddlewareFunc
}

func (a *application) Pool() *pgxpool.Pool {
	return a.pool
}

func (a *application) EventPublisher() eventbus.EventBus {
	return a.eventPublisher
}

func (a *application) Logger() *logrus.Logger {
	return a.logger
}

func (a *application) RegisterServices(services ...interface{}) {
	for _, svc := range services {
		a.services[reflect.TypeOf(svc).Elem()] = svc
	}
}

// Service resolves a registered service by example value, e.g.
// app.Service(services.ApprovalService{}).(*services.ApprovalService).
func (a *application) Service(service interface{}) interface{} {
	svc, ok := a.services[reflect.TypeOf(service)]
	if !ok {
		panic(fmt.Sprintf("service %s not registered", reflect.TypeOf(service).Name()))
	}
	return svc
}

func (a *application) RegisterControllers(controllers ...Controller) {
	for _, c := range controllers {
		if _, exists := a.controllers[c.Key()]; !exists {
			a.controllerKeys = append(a.controllerKeys, c.Key())
		}
		a.controllers[c.Key()] = c
	}
}

func (a *application) Controllers() []Controller {
	out := make([]Controller, 0, len(a.controllerKeys))
	for _, key := range a.controllerKeys {
		out = append(out, a.controllers[key])
	}
	return out
}

func (a *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	a.middleware = append(a.middleware, middleware...)
}

func (a *application) Middleware() []mux.MiddlewareFunc {
	return a.middleware
}

// Load registers every module, failing fast on the first error.
func Load(app Application, modules ...Module) error {
	for _, m := range modules {
		if err := m.Register(app); err != nil {
			return fmt.Errorf("failed to register module %s: %w", m.Name(), err)
		}
	}
	return nil
}
