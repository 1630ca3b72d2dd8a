package logger

import "go.uber.org/zap"

// Standard field constructors, so every component logs the same keys.

func App(v string) zap.Field       { return zap.String("app", v) }
func EventID(v string) zap.Field   { return zap.String("event_id", v) }
func EventType(v string) zap.Field { return zap.String("event_type", v) }
func Outcome(v string) zap.Field   { return zap.String("outcome", v) }
func Provider(v string) zap.Field  { return zap.String("provider", v) }
func Component(v string) zap.Field { return zap.String("component", v) }
