package middlewares

type ctxKey string

const (
	CtxRequestID ctxKey = "requestID"
	CtxUsername  ctxKey = "username"
)
