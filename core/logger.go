package core

// Logger is the application logger. Extra args may carry errors, maps of extra data or the
// authenticated user.User; implementations decide how to report them.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
