package handlers

import "context"

// contextKey тип для ключей контекста
type contextKey string

const (
	// ActorIDKey ключ для хранения actor_id в контексте
	ActorIDKey contextKey = "actor_id"
	// ActorNameKey ключ для хранения отображаемого имени актора в контексте
	ActorNameKey contextKey = "actor_name"
)

// WithActor кладет идентичность актора в контекст
func WithActor(ctx context.Context, actorID, actorName string) context.Context {
	ctx = context.WithValue(ctx, ActorIDKey, actorID)
	return context.WithValue(ctx, ActorNameKey, actorName)
}

// GetActorID извлекает actor_id из контекста запроса
func GetActorID(ctx context.Context) (string, bool) {
	actorID, ok := ctx.Value(ActorIDKey).(string)
	return actorID, ok && actorID != ""
}

// GetActorName извлекает отображаемое имя актора из контекста запроса
func GetActorName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(ActorNameKey).(string)
	return name, ok
}
