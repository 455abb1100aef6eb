package constants

import "github.com/go-playground/validator/v10"

type ContextKey string

const (
	PoolKey      ContextKey = "pool"
	TxKey        ContextKey = "tx"
	LoggerKey    ContextKey = "logger"
	ActorIDKey   ContextKey = "actorID"
	RequestStart ContextKey = "requestStart"
)

var Validate = validator.New()
